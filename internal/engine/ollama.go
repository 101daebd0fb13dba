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

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ailinux/analysis-gateway/pkg/core"
)

// Ollama runs analyses against a local Ollama server.
type Ollama struct {
	name   string
	url    string
	model  string
	client *http.Client
}

func NewOllama(name, url, model string) *Ollama {
	if url == "" {
		url = "http://localhost:11434"
	}
	return &Ollama{
		name:   name,
		url:    url,
		model:  model,
		client: &http.Client{},
	}
}

func (o *Ollama) Name() string { return o.name }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

func (o *Ollama) Analyze(ctx context.Context, logText, instruction string) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model: o.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt(instruction)},
			{Role: "user", Content: logText},
		},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, errBody)
	}

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return chat.Message.Content, nil
}

// Info probes the Ollama server so clients see live availability.
func (o *Ollama) Info(ctx context.Context) core.ModelInfo {
	info := core.ModelInfo{
		Name:  o.name,
		Type:  "local",
		Model: o.model,
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, o.url+"/api/tags", nil)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	resp, err := o.client.Do(req)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	resp.Body.Close()

	info.Available = resp.StatusCode == http.StatusOK
	if !info.Available {
		info.Error = fmt.Sprintf("ollama status %d", resp.StatusCode)
	}
	return info
}
