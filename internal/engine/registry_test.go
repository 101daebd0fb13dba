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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ailinux/analysis-gateway/pkg/core"
)

type stubEngine struct {
	name   string
	result string
	err    error
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Analyze(ctx context.Context, logText, instruction string) (string, error) {
	return s.result, s.err
}

func (s *stubEngine) Info(ctx context.Context) core.ModelInfo {
	return core.ModelInfo{Name: s.name, Available: s.err == nil, Type: "stub"}
}

func TestResolveExact(t *testing.T) {
	reg := NewRegistry("local")
	reg.Register(&stubEngine{name: "local"})
	reg.Register(&stubEngine{name: "openai"})

	e, err := reg.Resolve("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", e.Name())
}

func TestResolveFallback(t *testing.T) {
	reg := NewRegistry("local")
	reg.Register(&stubEngine{name: "local"})

	e, err := reg.Resolve("nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "local", e.Name())
}

func TestResolveNoBackends(t *testing.T) {
	reg := NewRegistry("local")
	_, err := reg.Resolve("anything")
	assert.True(t, errors.Is(err, core.ErrEngineNotFound))
}

func TestModelsSorted(t *testing.T) {
	reg := NewRegistry("local")
	reg.Register(&stubEngine{name: "openai"})
	reg.Register(&stubEngine{name: "local"})
	reg.Register(&stubEngine{name: "gemini", err: errors.New("down")})

	models := reg.Models(context.Background())
	require.Len(t, models, 3)
	assert.Equal(t, "gemini", models[0].Name)
	assert.False(t, models[0].Available)
	assert.Equal(t, "local", models[1].Name)
	assert.Equal(t, "openai", models[2].Name)
}
