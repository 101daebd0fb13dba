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
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/ailinux/analysis-gateway/pkg/config"
	"github.com/ailinux/analysis-gateway/pkg/core"
)

type mockSink struct {
	name       string
	connectErr error
	publishErr error
	mu         sync.Mutex
	events     []core.AuditEvent
}

func (m *mockSink) Name() string { return m.name }
func (m *mockSink) Type() string { return "mock" }

func (m *mockSink) Connect(ctx context.Context) error { return m.connectErr }

func (m *mockSink) Publish(ctx context.Context, evt core.AuditEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	m.events = append(m.events, evt)
	m.mu.Unlock()
	return nil
}

func (m *mockSink) Close(ctx context.Context) error { return nil }

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishFansOut(t *testing.T) {
	pub := NewPublisher(testLogger())
	a := &mockSink{name: "a"}
	b := &mockSink{name: "b"}
	pub.Register(a)
	pub.Register(b)

	ctx := context.Background()
	if got := pub.ConnectAll(ctx); got != 2 {
		t.Fatalf("expected 2 connected sinks, got %d", got)
	}

	pub.Publish(ctx, core.AuditEvent{JobID: "job-1", Kind: "queued"})
	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d/%d", a.count(), b.count())
	}
}

func TestUnhealthySinkSkipped(t *testing.T) {
	pub := NewPublisher(testLogger())
	up := &mockSink{name: "up"}
	down := &mockSink{name: "down", connectErr: errors.New("refused")}
	pub.Register(up)
	pub.Register(down)

	ctx := context.Background()
	if got := pub.ConnectAll(ctx); got != 1 {
		t.Fatalf("expected 1 connected sink, got %d", got)
	}

	pub.Publish(ctx, core.AuditEvent{JobID: "job-1", Kind: "completed"})
	if up.count() != 1 {
		t.Fatalf("healthy sink must receive the event, got %d", up.count())
	}
	if down.count() != 0 {
		t.Fatalf("unhealthy sink must be skipped, got %d", down.count())
	}
}

func TestPublishFailureIsolated(t *testing.T) {
	pub := NewPublisher(testLogger())
	flaky := &mockSink{name: "flaky", publishErr: errors.New("broken pipe")}
	solid := &mockSink{name: "solid"}
	pub.Register(flaky)
	pub.Register(solid)

	ctx := context.Background()
	pub.ConnectAll(ctx)

	// Must not panic or block; the solid sink still gets the event.
	pub.Publish(ctx, core.AuditEvent{JobID: "job-1", Kind: "failed"})
	if solid.count() != 1 {
		t.Fatalf("expected solid sink to receive the event, got %d", solid.count())
	}
}

func TestFromConfigUnknownType(t *testing.T) {
	_, err := FromConfig([]config.SinkConfig{{Name: "x", Type: "carrier-pigeon"}}, testLogger())
	if err == nil {
		t.Fatal("expected error for unknown sink type")
	}
}
