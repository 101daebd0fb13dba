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
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/ailinux/analysis-gateway/pkg/config"
	"github.com/ailinux/analysis-gateway/pkg/core"
)

// Registry maps model names to inference backends, with a fallback
// used when a client asks for a model nobody registered.
type Registry struct {
	backends map[string]core.Engine
	fallback string
}

func NewRegistry(fallback string) *Registry {
	return &Registry{
		backends: make(map[string]core.Engine),
		fallback: fallback,
	}
}

func (r *Registry) Register(e core.Engine) {
	r.backends[e.Name()] = e
}

// Resolve returns the backend for the requested model, falling back to
// the default backend when the name is unknown.
func (r *Registry) Resolve(model string) (core.Engine, error) {
	if e, ok := r.backends[model]; ok {
		return e, nil
	}
	if e, ok := r.backends[r.fallback]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", core.ErrEngineNotFound, model)
}

// Models reports every registered backend's availability, sorted by
// name for stable responses.
func (r *Registry) Models(ctx context.Context) []core.ModelInfo {
	out := make([]core.ModelInfo, 0, len(r.backends))
	for _, e := range r.backends {
		out = append(out, e.Info(ctx))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultModel is the fallback backend's name, used when a client
// omits the model field.
func (r *Registry) DefaultModel() string {
	return r.fallback
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds the registry from the engines section. The first
// configured engine becomes the fallback.
func FromConfig(cfgs []config.EngineConfig, logger *slog.Logger) (*Registry, error) {
	fallback := ""
	if len(cfgs) > 0 {
		fallback = cfgs[0].Name
	}
	reg := NewRegistry(fallback)

	for _, ec := range cfgs {
		switch ec.Type {
		case "ollama":
			reg.Register(NewOllama(ec.Name, ec.Config["url"], ec.Config["model"]))
		case "openai":
			apiKey := ec.Config["api_key"]
			if apiKey == "" {
				apiKey = os.Getenv("OPENAI_API_KEY")
			}
			reg.Register(NewOpenAI(ec.Name, ec.Config["model"], apiKey))
		default:
			return nil, fmt.Errorf("unknown engine type: %s", ec.Type)
		}
		logger.Info("registered engine", "name", ec.Name, "type", ec.Type)
	}
	return reg, nil
}
