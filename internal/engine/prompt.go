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

package engine

const defaultInstruction = "You are an expert Linux system administrator. " +
	"Analyze the following log output, identify errors and their likely causes, " +
	"and suggest concrete fixes. Keep the analysis concise."

// systemPrompt builds the system message for an analysis call. A
// client-supplied instruction replaces the default wholesale.
func systemPrompt(instruction string) string {
	if instruction != "" {
		return instruction
	}
	return defaultInstruction
}
