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

// Message types exchanged over a client connection. Every frame is a
// self-contained JSON object with a "type" field.
const (
	TypeAuthentication  = "authentication"
	TypePing            = "ping"
	TypePong            = "pong"
	TypeAnalyzeLog      = "analyze_log"
	TypeGetModels       = "get_models"
	TypeServerStatus    = "server_status"
	TypeRequestReceived = "request_received"
	TypeAnalysisStatus  = "analysis_status"
	TypeAnalysisResult  = "analysis_result"
	TypeModelsInfo      = "models_info"
	TypeError           = "error"
	TypeHeartbeat       = "heartbeat"
)

// Stable protocol error codes.
const (
	CodeMalformed    = 400
	CodeUnauthorized = 401
	CodeAuthTimeout  = 408
	CodeTooLarge     = 413
	CodeRateLimited  = 429
	CodeInternal     = 500
)

// Inbound is the superset of fields a client may send. The type field
// decides which of the rest are meaningful.
type Inbound struct {
	Type        string  `json:"type"`
	AuthKey     string  `json:"auth_key,omitempty"`
	ClientType  string  `json:"client_type,omitempty"`
	Version     string  `json:"version,omitempty"`
	UserAgent   string  `json:"user_agent,omitempty"`
	Timestamp   float64 `json:"timestamp,omitempty"`
	Log         string  `json:"log,omitempty"`
	Model       string  `json:"model,omitempty"`
	Instruction string  `json:"instruction,omitempty"`
}

type AuthResult struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

type Pong struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

type RequestReceived struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Message   string `json:"message,omitempty"`
}

type AnalysisStatus struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

type AnalysisResult struct {
	Type           string  `json:"type"`
	RequestID      string  `json:"request_id"`
	Analysis       string  `json:"analysis"`
	ProcessingTime float64 `json:"processing_time"`
	Model          string  `json:"model"`
}

type ModelsInfo struct {
	Type   string      `json:"type"`
	Models []ModelInfo `json:"models"`
}

type ServerStatus struct {
	Type   string           `json:"type"`
	Status ServerStatusInfo `json:"status"`
}

type ServerStatusInfo struct {
	Uptime           float64 `json:"uptime"`
	ClientsConnected int     `json:"clients_connected"`
	ActiveJobs       int     `json:"active_jobs"`
	ServerTime       float64 `json:"server_time"`
}

type ErrorMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

type Heartbeat struct {
	Type       string  `json:"type"`
	Timestamp  float64 `json:"timestamp"`
	ServerTime float64 `json:"server_time"`
}

func NewError(message string, code int) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message, Code: code}
}

func NewJobError(jobID, message string, code int) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message, Code: code, RequestID: jobID}
}

// UnixSeconds renders a timestamp the way the wire protocol expects:
// fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
