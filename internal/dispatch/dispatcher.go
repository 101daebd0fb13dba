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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ailinux/analysis-gateway/internal/admission"
	"github.com/ailinux/analysis-gateway/internal/engine"
	"github.com/ailinux/analysis-gateway/internal/job"
	"github.com/ailinux/analysis-gateway/internal/metrics"
	"github.com/ailinux/analysis-gateway/internal/session"
	"github.com/ailinux/analysis-gateway/pkg/core"
	"github.com/ailinux/analysis-gateway/pkg/sinks"
)

// Dispatcher turns accepted analyze requests into jobs and executes
// them off the connection's read path. Each job runs in its own
// goroutine gated by the admission controller; a slow engine call can
// only ever delay jobs, never a connection loop.
type Dispatcher struct {
	tracker   *job.Tracker
	sessions  *session.Registry
	engines   *engine.Registry
	admission *admission.Controller
	publisher *sinks.Publisher
	logger    *slog.Logger
}

func New(
	tracker *job.Tracker,
	sessions *session.Registry,
	engines *engine.Registry,
	admission *admission.Controller,
	publisher *sinks.Publisher,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		tracker:   tracker,
		sessions:  sessions,
		engines:   engines,
		admission: admission,
		publisher: publisher,
		logger:    logger,
	}
}

// Submit validates an analyze request, records the job, queues the
// request_received ack on the session's outbound channel, and schedules
// the job body. The ack is queued before the goroutine starts so it
// always precedes the job's own messages. ctx must outlive the
// connection: dispatched jobs run to completion even if the client
// disconnects.
func (d *Dispatcher) Submit(ctx context.Context, sessionID string, req core.Inbound) (string, error) {
	if strings.TrimSpace(req.Log) == "" {
		return "", core.ErrEmptyLog
	}

	model := req.Model
	if model == "" {
		model = d.engines.DefaultModel()
	}

	j, err := d.tracker.Create(ctx, sessionID, model, req.Instruction, len(req.Log))
	if err != nil {
		return "", err
	}

	d.push(sessionID, j.ID, core.RequestReceived{
		Type:      core.TypeRequestReceived,
		RequestID: j.ID,
		Message:   "Log analysis request received and being processed",
	})
	d.audit(ctx, j.ID, sessionID, "queued", model, "")

	go d.run(ctx, j.ID, sessionID, model, req.Log, req.Instruction)

	return j.ID, nil
}

func (d *Dispatcher) run(ctx context.Context, jobID, sessionID, model, logText, instruction string) {
	if err := d.admission.Acquire(ctx); err != nil {
		d.fail(ctx, jobID, sessionID, model, err)
		return
	}
	defer d.admission.Release()

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	if err := d.tracker.MarkRunning(ctx, jobID); err != nil {
		d.logger.Error("mark running", "job_id", jobID, "error", err)
		return
	}
	// The wire status is "processing", not the internal state name.
	d.push(sessionID, jobID, core.AnalysisStatus{
		Type:      core.TypeAnalysisStatus,
		RequestID: jobID,
		Status:    "processing",
		Message:   "Processing log with " + model + " model",
	})
	d.audit(ctx, jobID, sessionID, "running", model, "")

	eng, err := d.engines.Resolve(model)
	if err != nil {
		d.fail(ctx, jobID, sessionID, model, err)
		return
	}

	start := time.Now()
	analysis, err := eng.Analyze(ctx, logText, instruction)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		d.fail(ctx, jobID, sessionID, model, err)
		return
	}

	if err := d.tracker.Complete(ctx, jobID, elapsed); err != nil {
		d.logger.Error("complete job", "job_id", jobID, "error", err)
		return
	}
	metrics.JobsTotal.WithLabelValues("completed").Inc()
	metrics.AnalysisDuration.Observe(elapsed)

	d.push(sessionID, jobID, core.AnalysisResult{
		Type:           core.TypeAnalysisResult,
		RequestID:      jobID,
		Analysis:       analysis,
		ProcessingTime: elapsed,
		Model:          model,
	})
	d.audit(ctx, jobID, sessionID, "completed", model, "")

	d.logger.Info("analysis completed",
		"job_id", jobID,
		"session_id", sessionID,
		"model", model,
		"seconds", elapsed,
	)
}

func (d *Dispatcher) fail(ctx context.Context, jobID, sessionID, model string, cause error) {
	if err := d.tracker.Fail(ctx, jobID, cause); err != nil {
		d.logger.Error("fail job", "job_id", jobID, "error", err)
	}
	metrics.JobsTotal.WithLabelValues("failed").Inc()

	d.push(sessionID, jobID, core.NewJobError(jobID, "Error analyzing log: "+cause.Error(), core.CodeInternal))
	d.audit(ctx, jobID, sessionID, "failed", model, cause.Error())

	d.logger.Error("analysis failed", "job_id", jobID, "session_id", sessionID, "error", cause)
}

// push marshals and queues a message for the owning session. A closed
// session makes the result undeliverable; that is logged, not retried.
func (d *Dispatcher) push(sessionID, jobID string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		d.logger.Error("marshal push message", "job_id", jobID, "error", err)
		return
	}
	if err := d.sessions.Push(sessionID, payload); err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			d.logger.Info("result undeliverable, session gone", "job_id", jobID, "session_id", sessionID)
			return
		}
		d.logger.Warn("push failed", "job_id", jobID, "error", err)
	}
}

func (d *Dispatcher) audit(ctx context.Context, jobID, sessionID, kind, model, cause string) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(ctx, core.AuditEvent{
		ID:        uuid.New().String(),
		JobID:     jobID,
		SessionID: sessionID,
		Kind:      kind,
		Model:     model,
		Error:     cause,
		Timestamp: time.Now().UTC(),
	})
}
