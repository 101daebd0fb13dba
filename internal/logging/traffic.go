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

package logging

import "log/slog"

// TrafficLogger records one line per protocol frame when enabled.
// Payload contents are never logged, only sizes and types.
type TrafficLogger struct {
	logger *slog.Logger
}

func NewTrafficLogger(logger *slog.Logger) *TrafficLogger {
	return &TrafficLogger{logger: logger}
}

func (t *TrafficLogger) Log(sessionID, msgType, direction string, size int) {
	t.logger.Info("frame",
		"session_id", sessionID,
		"msg_type", msgType,
		"direction", direction,
		"payload_size", size,
	)
}
