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

import "context"

// Engine is one inference backend. Analyze turns a log text and an
// optional instruction into an analysis string, or fails.
type Engine interface {
	Name() string
	Analyze(ctx context.Context, logText, instruction string) (string, error)
	Info(ctx context.Context) ModelInfo
}

// EventSink receives job lifecycle audit events. Publishing is
// fire-and-forget from the caller's perspective; a failing sink must
// never stall a job.
type EventSink interface {
	Name() string
	Type() string
	Connect(ctx context.Context) error
	Publish(ctx context.Context, evt AuditEvent) error
	Close(ctx context.Context) error
}
