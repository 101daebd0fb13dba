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
	"log/slog"
	"time"

	"github.com/ailinux/analysis-gateway/internal/job"
	"github.com/ailinux/analysis-gateway/internal/metrics"
	"github.com/ailinux/analysis-gateway/internal/ratelimit"
	"github.com/ailinux/analysis-gateway/internal/session"
)

// Reaper periodically evicts sessions that have been idle past the
// configured threshold and purges terminal jobs past their retention
// window. Running jobs are never touched, whatever their age.
type Reaper struct {
	sessions     *session.Registry
	limiter      *ratelimit.Limiter
	tracker      *job.Tracker
	interval     time.Duration
	idleAfter    time.Duration
	jobRetention time.Duration
	stopChan     chan struct{}
	logger       *slog.Logger
}

func NewReaper(
	sessions *session.Registry,
	limiter *ratelimit.Limiter,
	tracker *job.Tracker,
	interval, idleAfter, jobRetention time.Duration,
	logger *slog.Logger,
) *Reaper {
	if interval == 0 {
		interval = 15 * time.Minute
	}
	return &Reaper{
		sessions:     sessions,
		limiter:      limiter,
		tracker:      tracker,
		interval:     interval,
		idleAfter:    idleAfter,
		jobRetention: jobRetention,
		stopChan:     make(chan struct{}),
		logger:       logger,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	r.logger.Info("reaper service started",
		"interval", r.interval,
		"session_idle_after", r.idleAfter,
		"job_retention", r.jobRetention,
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Reaper) Stop() {
	close(r.stopChan)
}

// Sweep runs one eviction and purge pass.
func (r *Reaper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	evicted := 0
	for _, sess := range r.sessions.Snapshot() {
		if now.Sub(sess.LastActivityAt) < r.idleAfter {
			continue
		}
		if r.sessions.Evict(sess.ID) {
			r.limiter.Forget(sess.ID)
			metrics.SessionsEvicted.Inc()
			evicted++
			r.logger.Info("session evicted",
				"session_id", sess.ID,
				"idle", now.Sub(sess.LastActivityAt).String(),
			)
		}
	}

	purged := r.tracker.PurgeTerminal(ctx, now.Add(-r.jobRetention))
	if purged > 0 {
		metrics.JobsPurged.Add(float64(purged))
	}

	if evicted > 0 || purged > 0 {
		r.logger.Info("sweep finished", "sessions_evicted", evicted, "jobs_purged", purged)
	}
}
