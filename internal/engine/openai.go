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
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/ailinux/analysis-gateway/pkg/core"
)

// OpenAI runs analyses against the OpenAI chat completions API.
type OpenAI struct {
	name   string
	model  string
	apiKey string
	client openai.Client
}

func NewOpenAI(name, model, apiKey string) *OpenAI {
	if model == "" {
		model = "gpt-4"
	}
	return &OpenAI{
		name:   name,
		model:  model,
		apiKey: apiKey,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Analyze(ctx context.Context, logText, instruction string) (string, error) {
	if o.apiKey == "" {
		return "", errors.New("openai api key not configured")
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(instruction)),
			openai.UserMessage(logText),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Info(ctx context.Context) core.ModelInfo {
	info := core.ModelInfo{
		Name:      o.name,
		Type:      "api",
		Model:     o.model,
		Available: o.apiKey != "",
	}
	if !info.Available {
		info.Error = "api key not configured"
	}
	return info
}
