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

package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a minimum interval between accepted messages per
// session. It sits on the connection read path, so every decision is a
// single map access under a mutex.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether a message at now is within the session's rate.
// Accepted messages update the session's timestamp; rejected ones leave
// it untouched, so rejections carry no penalty beyond the interval.
func (l *Limiter) Allow(sessionID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.last[sessionID]
	if ok && now.Sub(last) < l.interval {
		return false
	}
	l.last[sessionID] = now
	return true
}

// Forget drops the session's state when its connection closes.
func (l *Limiter) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.last, sessionID)
	l.mu.Unlock()
}
