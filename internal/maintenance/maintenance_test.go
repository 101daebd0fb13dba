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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ailinux/analysis-gateway/internal/job"
	"github.com/ailinux/analysis-gateway/internal/ratelimit"
	"github.com/ailinux/analysis-gateway/internal/session"
	"github.com/ailinux/analysis-gateway/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHeartbeatProbesIdleSessions(t *testing.T) {
	sessions := session.NewRegistry(testLogger())
	outbound := make(chan []byte, 8)
	sessions.Register("192.0.2.1", "terminal", "1.0", "", outbound, nil)

	// Zero idle threshold makes every session a probe target.
	h := NewHeartbeat(sessions, time.Minute, 0, testLogger())
	h.probeIdle()

	select {
	case payload := <-outbound:
		var hb core.Heartbeat
		require.NoError(t, json.Unmarshal(payload, &hb))
		assert.Equal(t, core.TypeHeartbeat, hb.Type)
		assert.Greater(t, hb.ServerTime, 0.0)
	default:
		t.Fatal("expected a heartbeat frame")
	}
}

func TestHeartbeatSkipsActiveSessions(t *testing.T) {
	sessions := session.NewRegistry(testLogger())
	outbound := make(chan []byte, 8)
	sessions.Register("192.0.2.1", "terminal", "1.0", "", outbound, nil)

	h := NewHeartbeat(sessions, time.Minute, time.Hour, testLogger())
	h.probeIdle()

	assert.Empty(t, outbound)
}

func TestHeartbeatDoesNotBlockOnFullQueue(t *testing.T) {
	sessions := session.NewRegistry(testLogger())
	outbound := make(chan []byte) // no reader, no capacity
	sessions.Register("192.0.2.1", "terminal", "1.0", "", outbound, nil)

	h := NewHeartbeat(sessions, time.Minute, 0, testLogger())

	done := make(chan struct{})
	go func() {
		h.probeIdle()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("probeIdle blocked on a full outbound queue")
	}
}

func TestReaperEvictsIdleSessions(t *testing.T) {
	sessions := session.NewRegistry(testLogger())
	limiter := ratelimit.New(time.Second)
	tracker := job.NewTracker(job.NewMemoryStore(), testLogger())

	connCtx, cancel := context.WithCancel(context.Background())
	id := sessions.Register("192.0.2.1", "terminal", "1.0", "", make(chan []byte, 1), cancel)

	r := NewReaper(sessions, limiter, tracker, time.Minute, 30*time.Millisecond, time.Hour, testLogger())
	time.Sleep(50 * time.Millisecond)
	r.Sweep(context.Background())

	assert.Equal(t, 0, sessions.Count())
	_, ok := sessions.Get(id)
	assert.False(t, ok)

	// Eviction tears the connection down through its cancel func.
	select {
	case <-connCtx.Done():
	default:
		t.Fatal("expected eviction to cancel the connection context")
	}
}

func TestReaperKeepsActiveSessions(t *testing.T) {
	sessions := session.NewRegistry(testLogger())
	limiter := ratelimit.New(time.Second)
	tracker := job.NewTracker(job.NewMemoryStore(), testLogger())
	sessions.Register("192.0.2.1", "terminal", "1.0", "", make(chan []byte, 1), nil)

	r := NewReaper(sessions, limiter, tracker, time.Minute, time.Hour, time.Hour, testLogger())
	r.Sweep(context.Background())

	assert.Equal(t, 1, sessions.Count())
}

func TestReaperPurgesTerminalJobs(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewRegistry(testLogger())
	limiter := ratelimit.New(time.Second)
	tracker := job.NewTracker(job.NewMemoryStore(), testLogger())

	finished, err := tracker.Create(ctx, "sess-1", "stub", "", 10)
	require.NoError(t, err)
	require.NoError(t, tracker.MarkRunning(ctx, finished.ID))
	require.NoError(t, tracker.Complete(ctx, finished.ID, 0.5))

	running, err := tracker.Create(ctx, "sess-1", "stub", "", 10)
	require.NoError(t, err)
	require.NoError(t, tracker.MarkRunning(ctx, running.ID))

	// Zero retention: any terminal job is eligible on the next sweep.
	r := NewReaper(sessions, limiter, tracker, time.Minute, time.Hour, 0, testLogger())
	r.Sweep(ctx)

	_, err = tracker.Get(ctx, finished.ID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)

	kept, err := tracker.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobRunning, kept.Status)
}

func TestReaperRetentionKeepsRecentJobs(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewRegistry(testLogger())
	limiter := ratelimit.New(time.Second)
	tracker := job.NewTracker(job.NewMemoryStore(), testLogger())

	finished, err := tracker.Create(ctx, "sess-1", "stub", "", 10)
	require.NoError(t, err)
	require.NoError(t, tracker.MarkRunning(ctx, finished.ID))
	require.NoError(t, tracker.Complete(ctx, finished.ID, 0.5))

	r := NewReaper(sessions, limiter, tracker, time.Minute, time.Hour, time.Hour, testLogger())
	r.Sweep(ctx)

	_, err = tracker.Get(ctx, finished.ID)
	assert.NoError(t, err)
}
