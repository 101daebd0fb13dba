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

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ailinux/analysis-gateway/internal/admission"
	"github.com/ailinux/analysis-gateway/internal/engine"
	"github.com/ailinux/analysis-gateway/internal/job"
	"github.com/ailinux/analysis-gateway/internal/session"
	"github.com/ailinux/analysis-gateway/pkg/core"
)

type fakeEngine struct {
	name    string
	result  string
	err     error
	block   chan struct{} // Analyze waits on this when non-nil
	mu      sync.Mutex
	running int
	maxSeen int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Analyze(ctx context.Context, logText, instruction string) (string, error) {
	f.mu.Lock()
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.running--
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeEngine) Info(ctx context.Context) core.ModelInfo {
	return core.ModelInfo{Name: f.name, Available: true, Type: "fake"}
}

func (f *fakeEngine) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

type harness struct {
	dispatcher *Dispatcher
	tracker    *job.Tracker
	sessions   *session.Registry
	sessionID  string
	outbound   chan []byte
}

func newHarness(t *testing.T, eng core.Engine, maxConcurrent int) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	tracker := job.NewTracker(job.NewMemoryStore(), logger)
	sessions := session.NewRegistry(logger)
	engines := engine.NewRegistry(eng.Name())
	engines.Register(eng)

	outbound := make(chan []byte, 64)
	sessionID := sessions.Register("192.0.2.1", "test", "0.0", "", outbound, nil)

	return &harness{
		dispatcher: New(tracker, sessions, engines, admission.New(maxConcurrent), nil, logger),
		tracker:    tracker,
		sessions:   sessions,
		sessionID:  sessionID,
		outbound:   outbound,
	}
}

func (h *harness) nextMessage(t *testing.T) map[string]any {
	t.Helper()
	select {
	case payload := <-h.outbound:
		var msg map[string]any
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

func TestEmptyLogRejected(t *testing.T) {
	h := newHarness(t, &fakeEngine{name: "local"}, 2)

	_, err := h.dispatcher.Submit(context.Background(), h.sessionID, core.Inbound{Type: core.TypeAnalyzeLog})
	assert.ErrorIs(t, err, core.ErrEmptyLog)
	assert.Equal(t, 0, h.tracker.ActiveCount(context.Background()))
}

func TestAckPrecedesJobMessages(t *testing.T) {
	h := newHarness(t, &fakeEngine{name: "local", result: "Disk cleanup needed"}, 2)

	jobID, err := h.dispatcher.Submit(context.Background(), h.sessionID, core.Inbound{
		Type:  core.TypeAnalyzeLog,
		Log:   "ERROR disk full",
		Model: "local",
	})
	require.NoError(t, err)

	ack := h.nextMessage(t)
	assert.Equal(t, core.TypeRequestReceived, ack["type"])
	assert.Equal(t, jobID, ack["request_id"])

	status := h.nextMessage(t)
	assert.Equal(t, core.TypeAnalysisStatus, status["type"])
	assert.Equal(t, "processing", status["status"])

	result := h.nextMessage(t)
	assert.Equal(t, core.TypeAnalysisResult, result["type"])
	assert.Equal(t, jobID, result["request_id"])
	assert.Equal(t, "Disk cleanup needed", result["analysis"])
	assert.Equal(t, "local", result["model"])
}

func TestDistinctJobIDsForIdenticalRequests(t *testing.T) {
	h := newHarness(t, &fakeEngine{name: "local", result: "ok"}, 2)
	req := core.Inbound{Type: core.TypeAnalyzeLog, Log: "same text", Model: "local"}

	first, err := h.dispatcher.Submit(context.Background(), h.sessionID, req)
	require.NoError(t, err)
	second, err := h.dispatcher.Submit(context.Background(), h.sessionID, req)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestAdmissionBound(t *testing.T) {
	eng := &fakeEngine{name: "local", result: "ok", block: make(chan struct{})}
	h := newHarness(t, eng, 2)
	ctx := context.Background()
	req := core.Inbound{Type: core.TypeAnalyzeLog, Log: "log", Model: "local"}

	for i := 0; i < 3; i++ {
		_, err := h.dispatcher.Submit(ctx, h.sessionID, req)
		require.NoError(t, err)
	}

	// Two jobs reach the engine; the third stays queued behind the pool.
	assert.Eventually(t, func() bool {
		return h.tracker.CountByStatus(ctx, core.JobRunning) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.tracker.CountByStatus(ctx, core.JobQueued))
	assert.Equal(t, 2, eng.peakConcurrency())

	// Finishing the running jobs lets the queued one through.
	close(eng.block)
	assert.Eventually(t, func() bool {
		return h.tracker.CountByStatus(ctx, core.JobCompleted) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, eng.peakConcurrency())
}

func TestTicketReleasedOnEngineFailure(t *testing.T) {
	eng := &fakeEngine{name: "local", err: errors.New("model crashed")}
	h := newHarness(t, eng, 1)
	ctx := context.Background()
	req := core.Inbound{Type: core.TypeAnalyzeLog, Log: "log", Model: "local"}

	first, err := h.dispatcher.Submit(ctx, h.sessionID, req)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		j, err := h.tracker.Get(ctx, first)
		return err == nil && j.Status == core.JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	// The failed job must have released its ticket: a second job still runs.
	eng.err = nil
	eng.result = "recovered"
	second, err := h.dispatcher.Submit(ctx, h.sessionID, req)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		j, err := h.tracker.Get(ctx, second)
		return err == nil && j.Status == core.JobCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFailureReportedAgainstJob(t *testing.T) {
	eng := &fakeEngine{name: "local", err: errors.New("model crashed")}
	h := newHarness(t, eng, 1)

	jobID, err := h.dispatcher.Submit(context.Background(), h.sessionID, core.Inbound{
		Type: core.TypeAnalyzeLog, Log: "log", Model: "local",
	})
	require.NoError(t, err)

	h.nextMessage(t) // ack
	h.nextMessage(t) // running status

	errMsg := h.nextMessage(t)
	assert.Equal(t, core.TypeError, errMsg["type"])
	assert.Equal(t, jobID, errMsg["request_id"])
	assert.Equal(t, float64(core.CodeInternal), errMsg["code"])
	assert.Contains(t, errMsg["message"], "model crashed")
}

func TestResultUndeliverableAfterSessionGone(t *testing.T) {
	eng := &fakeEngine{name: "local", result: "ok", block: make(chan struct{})}
	h := newHarness(t, eng, 1)
	ctx := context.Background()

	jobID, err := h.dispatcher.Submit(ctx, h.sessionID, core.Inbound{
		Type: core.TypeAnalyzeLog, Log: "log", Model: "local",
	})
	require.NoError(t, err)

	// Client disconnects while the job is in flight.
	h.sessions.Remove(h.sessionID)
	close(eng.block)

	// The job still completes; its result is simply dropped.
	assert.Eventually(t, func() bool {
		j, err := h.tracker.Get(ctx, jobID)
		return err == nil && j.Status == core.JobCompleted
	}, 2*time.Second, 10*time.Millisecond)
}
