// Copyright (c) 2025, the AILinux project.
//
// The AILinux project licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package sinks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ailinux/analysis-gateway/pkg/config"
	"github.com/ailinux/analysis-gateway/pkg/core"
	"github.com/ailinux/analysis-gateway/pkg/sinks/kafka"
	"github.com/ailinux/analysis-gateway/pkg/sinks/rabbitmq"
)

// Publisher fans audit events out to every healthy sink. A sink that
// fails to connect or publish is logged and skipped; it can never stall
// a job.
type Publisher struct {
	mu      sync.RWMutex
	sinks   map[string]core.EventSink
	healthy map[string]bool
	logger  *slog.Logger
}

func NewPublisher(logger *slog.Logger) *Publisher {
	return &Publisher{
		sinks:   make(map[string]core.EventSink),
		healthy: make(map[string]bool),
		logger:  logger,
	}
}

func (p *Publisher) Register(s core.EventSink) {
	p.mu.Lock()
	p.sinks[s.Name()] = s
	p.mu.Unlock()
	p.logger.Info("registered sink", "name", s.Name(), "type", s.Type())
}

// ConnectAll connects every registered sink and returns how many came
// up. Connection failures mark the sink unhealthy but are not fatal.
func (p *Publisher) ConnectAll(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	connected := 0
	for name, s := range p.sinks {
		if err := s.Connect(ctx); err != nil {
			p.logger.Error("sink connect failed", "name", name, "error", err)
			p.healthy[name] = false
		} else {
			p.healthy[name] = true
			connected++
		}
	}
	return connected
}

// Publish delivers the event to every healthy sink, best-effort.
func (p *Publisher) Publish(ctx context.Context, evt core.AuditEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name, s := range p.sinks {
		if !p.healthy[name] {
			continue
		}
		if err := s.Publish(ctx, evt); err != nil {
			p.logger.Warn("sink publish failed", "name", name, "job_id", evt.JobID, "error", err)
		}
	}
}

func (p *Publisher) CloseAll(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, s := range p.sinks {
		if err := s.Close(ctx); err != nil {
			p.logger.Warn("sink close failed", "name", name, "error", err)
		}
	}
}

// FromConfig builds a publisher with every configured sink registered
// but not yet connected.
func FromConfig(cfgs []config.SinkConfig, logger *slog.Logger) (*Publisher, error) {
	pub := NewPublisher(logger)
	for _, sc := range cfgs {
		switch sc.Type {
		case "kafka":
			brokers := strings.Split(sc.Config["brokers"], ",")
			pub.Register(kafka.New(sc.Name, brokers, sc.Config["topic"], logger))
		case "rabbitmq":
			pub.Register(rabbitmq.New(sc.Name, sc.Config["url"], sc.Config["queue"], logger))
		default:
			return nil, fmt.Errorf("unknown sink type: %s", sc.Type)
		}
	}
	return pub, nil
}
