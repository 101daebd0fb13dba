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
	"sync"

	"github.com/ailinux/analysis-gateway/pkg/core"
)

// Store persists AnalysisJob records. The tracker layers status
// transition rules on top; stores only move bytes.
type Store interface {
	Save(ctx context.Context, job *core.AnalysisJob) error
	Get(ctx context.Context, jobID string) (*core.AnalysisJob, error)
	Delete(ctx context.Context, jobID string) error
	List(ctx context.Context) ([]*core.AnalysisJob, error)
	Close() error
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]core.AnalysisJob
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]core.AnalysisJob)}
}

func (m *MemoryStore) Save(ctx context.Context, job *core.AnalysisJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreClosed
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, jobID string) (*core.AnalysisJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, core.ErrStoreClosed
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	cp := job
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreClosed
	}
	delete(m.jobs, jobID)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*core.AnalysisJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, core.ErrStoreClosed
	}
	out := make([]*core.AnalysisJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		cp := job
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.jobs = nil
	return nil
}
