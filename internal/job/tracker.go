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

package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ailinux/analysis-gateway/pkg/core"
)

// Tracker owns the lifecycle of analysis jobs. All mutations are
// serialized here so the forward-only status invariant holds no matter
// which store backs it.
type Tracker struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
}

func NewTracker(store Store, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// Create records a freshly accepted analyze request in Queued state.
// The log text itself is not retained, only its length.
func (t *Tracker) Create(ctx context.Context, ownerSessionID, model, instruction string, logTextLength int) (*core.AnalysisJob, error) {
	job := &core.AnalysisJob{
		ID:             uuid.New().String(),
		OwnerSessionID: ownerSessionID,
		Model:          model,
		Instruction:    instruction,
		LogTextLength:  logTextLength,
		Status:         core.JobQueued,
		SubmittedAt:    time.Now().UTC(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	return job, nil
}

func (t *Tracker) Get(ctx context.Context, jobID string) (*core.AnalysisJob, error) {
	return t.store.Get(ctx, jobID)
}

// MarkRunning transitions a queued job to Running.
func (t *Tracker) MarkRunning(ctx context.Context, jobID string) error {
	return t.transition(ctx, jobID, core.JobRunning, func(job *core.AnalysisJob) {})
}

// Complete transitions a running job to Completed and records timing.
func (t *Tracker) Complete(ctx context.Context, jobID string, processingSeconds float64) error {
	return t.transition(ctx, jobID, core.JobCompleted, func(job *core.AnalysisJob) {
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.ProcessingSeconds = processingSeconds
	})
}

// Fail transitions a job to Failed from either Queued or Running and
// records the cause.
func (t *Tracker) Fail(ctx context.Context, jobID string, cause error) error {
	return t.transition(ctx, jobID, core.JobFailed, func(job *core.AnalysisJob) {
		now := time.Now().UTC()
		job.CompletedAt = &now
		if cause != nil {
			job.Error = cause.Error()
		}
	})
}

func (t *Tracker) transition(ctx context.Context, jobID string, next core.JobStatus, apply func(*core.AnalysisJob)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, job.Status, next)
	}
	job.Status = next
	apply(job)
	if err := t.store.Save(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// ActiveCount returns the number of jobs that are queued or running.
func (t *Tracker) ActiveCount(ctx context.Context) int {
	jobs, err := t.store.List(ctx)
	if err != nil {
		t.logger.Error("list jobs", "error", err)
		return 0
	}
	count := 0
	for _, job := range jobs {
		if !job.Status.Terminal() {
			count++
		}
	}
	return count
}

// CountByStatus returns how many jobs are currently in the given state.
func (t *Tracker) CountByStatus(ctx context.Context, status core.JobStatus) int {
	jobs, err := t.store.List(ctx)
	if err != nil {
		t.logger.Error("list jobs", "error", err)
		return 0
	}
	count := 0
	for _, job := range jobs {
		if job.Status == status {
			count++
		}
	}
	return count
}

// PurgeTerminal deletes terminal jobs that completed before the cutoff
// and returns how many were removed.
func (t *Tracker) PurgeTerminal(ctx context.Context, cutoff time.Time) int {
	jobs, err := t.store.List(ctx)
	if err != nil {
		t.logger.Error("list jobs", "error", err)
		return 0
	}

	purged := 0
	for _, job := range jobs {
		if !job.Status.Terminal() {
			continue
		}
		if job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
			continue
		}
		if err := t.store.Delete(ctx, job.ID); err != nil {
			t.logger.Warn("purge job failed", "job_id", job.ID, "error", err)
			continue
		}
		purged++
	}
	return purged
}

// Close releases the backing store.
func (t *Tracker) Close() error {
	return t.store.Close()
}
