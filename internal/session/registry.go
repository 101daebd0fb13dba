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

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ailinux/analysis-gateway/pkg/core"
)

type entry struct {
	session  *core.ClientSession
	outbound chan []byte
	cancel   context.CancelFunc
}

// Registry owns every ClientSession. Callers address sessions by ID and
// receive copies on reads; the mutable record never leaves this package.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		logger:   logger,
	}
}

// Register creates a session for an authenticated connection and
// returns its id. The outbound channel is the connection's write queue;
// cancel tears the connection down when the reaper evicts the session.
func (r *Registry) Register(remoteAddr, clientType, clientVersion, userAgent string, outbound chan []byte, cancel context.CancelFunc) string {
	now := time.Now().UTC()
	sess := &core.ClientSession{
		ID:             uuid.New().String(),
		RemoteAddr:     remoteAddr,
		ClientType:     clientType,
		ClientVersion:  clientVersion,
		UserAgent:      userAgent,
		ConnectedAt:    now,
		LastActivityAt: now,
	}

	r.mu.Lock()
	r.sessions[sess.ID] = &entry{session: sess, outbound: outbound, cancel: cancel}
	r.mu.Unlock()

	r.logger.Info("session registered",
		"session_id", sess.ID,
		"remote_addr", remoteAddr,
		"client_type", clientType,
	)
	return sess.ID
}

// Get returns a copy of the session record.
func (r *Registry) Get(sessionID string) (core.ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return core.ClientSession{}, false
	}
	return *e.session, true
}

// Touch marks the session active now. Called for every accepted
// inbound message.
func (r *Registry) Touch(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	e.session.LastActivityAt = time.Now().UTC()
	return true
}

// Remove deregisters a session on connection close. It does not cancel
// anything: the connection is already going away.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	_, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if ok {
		r.logger.Info("session removed", "session_id", sessionID)
	}
	return ok
}

// Evict removes a session and cancels its connection. Used by the
// reaper for sessions idle past the eviction threshold.
func (r *Registry) Evict(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	r.logger.Info("session evicted", "session_id", sessionID)
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns copies of every session record, for the heartbeat
// and reaper scans.
func (r *Registry) Snapshot() []core.ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ClientSession, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, *e.session)
	}
	return out
}

// Push queues a payload on the session's outbound channel without
// blocking. Delivery is best-effort: a full queue drops the payload, a
// missing session reports ErrSessionNotFound so callers can log it.
func (r *Registry) Push(sessionID string, payload []byte) error {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return core.ErrSessionNotFound
	}

	select {
	case e.outbound <- payload:
	default:
		r.logger.Warn("outbound queue full, dropping message", "session_id", sessionID)
	}
	return nil
}
