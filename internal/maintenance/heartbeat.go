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

package maintenance

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ailinux/analysis-gateway/internal/session"
	"github.com/ailinux/analysis-gateway/pkg/core"
)

// Heartbeat probes sessions that have been quiet for a while so half-dead
// connections surface as write failures instead of lingering until the
// reaper. Delivery is best effort; a probe that cannot be queued is not
// an error.
type Heartbeat struct {
	sessions  *session.Registry
	interval  time.Duration
	idleAfter time.Duration
	stopChan  chan struct{}
	logger    *slog.Logger
}

func NewHeartbeat(sessions *session.Registry, interval, idleAfter time.Duration, logger *slog.Logger) *Heartbeat {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Heartbeat{
		sessions:  sessions,
		interval:  interval,
		idleAfter: idleAfter,
		stopChan:  make(chan struct{}),
		logger:    logger,
	}
}

func (h *Heartbeat) Start(ctx context.Context) {
	h.logger.Info("heartbeat service started", "interval", h.interval, "idle_after", h.idleAfter)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case <-ticker.C:
			h.probeIdle()
		}
	}
}

func (h *Heartbeat) Stop() {
	close(h.stopChan)
}

func (h *Heartbeat) probeIdle() {
	now := time.Now().UTC()
	payload, err := json.Marshal(core.Heartbeat{
		Type:       core.TypeHeartbeat,
		Timestamp:  core.UnixSeconds(now),
		ServerTime: core.UnixSeconds(now),
	})
	if err != nil {
		h.logger.Error("marshal heartbeat", "error", err)
		return
	}

	for _, sess := range h.sessions.Snapshot() {
		if now.Sub(sess.LastActivityAt) < h.idleAfter {
			continue
		}
		if err := h.sessions.Push(sess.ID, payload); err != nil {
			h.logger.Debug("heartbeat not delivered", "session_id", sess.ID, "error", err)
		}
	}
}
