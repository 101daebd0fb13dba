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

package core

import "time"

type JobStatus int

const (
	JobQueued JobStatus = iota
	JobRunning
	JobCompleted
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether a job may move from s to next.
// Transitions only ever move forward: queued -> running -> completed/failed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobQueued:
		return next == JobRunning || next == JobFailed
	case JobRunning:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// ClientSession is the registry's record of one authenticated connection.
// Only the SessionRegistry holds a mutable reference; everything else
// addresses a session by ID.
type ClientSession struct {
	ID             string    `json:"id"`
	RemoteAddr     string    `json:"remote_addr"`
	ClientType     string    `json:"client_type"`
	ClientVersion  string    `json:"client_version"`
	UserAgent      string    `json:"user_agent,omitempty"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// AnalysisJob is one analyze request's lifecycle record. The raw log
// text is not retained after dispatch, only its length.
type AnalysisJob struct {
	ID                string     `json:"id"`
	OwnerSessionID    string     `json:"owner_session_id"`
	Model             string     `json:"model"`
	Instruction       string     `json:"instruction,omitempty"`
	LogTextLength     int        `json:"log_text_length"`
	Status            JobStatus  `json:"status"`
	Error             string     `json:"error,omitempty"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ProcessingSeconds float64    `json:"processing_seconds,omitempty"`
}

// AuditEvent mirrors a job lifecycle change onto the configured sinks.
type AuditEvent struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Model     string    `json:"model"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ModelInfo describes one inference backend as reported to clients.
type ModelInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Type      string `json:"type"`
	Model     string `json:"model,omitempty"`
	File      string `json:"file,omitempty"`
	Error     string `json:"error,omitempty"`
}
