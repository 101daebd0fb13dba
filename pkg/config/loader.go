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

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can use values like
// "30s" or "15m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Limits      LimitsConfig      `yaml:"limits"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Engines     []EngineConfig    `yaml:"engines"`
	JobStore    JobStoreConfig    `yaml:"job_store"`
	Sinks       []SinkConfig      `yaml:"sinks"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	TLSCert    string `yaml:"tls_cert"`
	TLSKey     string `yaml:"tls_key"`
	LogTraffic bool   `yaml:"log_traffic"`
}

// AuthConfig carries the optional shared secret. An empty key is an
// explicit configuration state: every client that reaches the port is
// accepted as a session.
type AuthConfig struct {
	Key              string   `yaml:"key"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
}

type LimitsConfig struct {
	RateInterval      Duration `yaml:"rate_interval"`
	MaxMessageSize    int      `yaml:"max_message_size"`
	MaxConcurrentJobs int      `yaml:"max_concurrent_jobs"`
}

type MaintenanceConfig struct {
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	IdleProbeAfter    Duration `yaml:"idle_probe_after"`
	ReaperInterval    Duration `yaml:"reaper_interval"`
	SessionIdleAfter  Duration `yaml:"session_idle_after"`
	JobRetention      Duration `yaml:"job_retention"`
}

type EngineConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

type JobStoreConfig struct {
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string   `yaml:"addr"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
	TTL       Duration `yaml:"ttl"`
}

type SinkConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

// Load reads the config file, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied, for deployments
// that run without a config file at all.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8082
	}
	if c.Auth.HandshakeTimeout == 0 {
		c.Auth.HandshakeTimeout = Duration(10 * time.Second)
	}
	if c.Limits.RateInterval == 0 {
		c.Limits.RateInterval = Duration(time.Second)
	}
	if c.Limits.MaxMessageSize == 0 {
		c.Limits.MaxMessageSize = 1 << 20
	}
	if c.Limits.MaxConcurrentJobs == 0 {
		c.Limits.MaxConcurrentJobs = 4
	}
	if c.Maintenance.HeartbeatInterval == 0 {
		c.Maintenance.HeartbeatInterval = Duration(30 * time.Second)
	}
	if c.Maintenance.IdleProbeAfter == 0 {
		c.Maintenance.IdleProbeAfter = Duration(30 * time.Second)
	}
	if c.Maintenance.ReaperInterval == 0 {
		c.Maintenance.ReaperInterval = Duration(15 * time.Minute)
	}
	if c.Maintenance.SessionIdleAfter == 0 {
		c.Maintenance.SessionIdleAfter = Duration(time.Hour)
	}
	if c.Maintenance.JobRetention == 0 {
		c.Maintenance.JobRetention = Duration(time.Hour)
	}
	if c.JobStore.Type == "" {
		c.JobStore.Type = "memory"
	}
	if len(c.Engines) == 0 {
		c.Engines = []EngineConfig{{
			Name: "local",
			Type: "ollama",
			Config: map[string]string{
				"url":   "http://127.0.0.1:11434",
				"model": "llama3",
			},
		}}
	}
}

func (c *Config) applyEnv() {
	if key := os.Getenv("WS_AUTH_KEY"); key != "" {
		c.Auth.Key = key
	}
	if host := os.Getenv("WS_HOST"); host != "" {
		c.Server.Host = host
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	if c.Limits.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be positive")
	}
	for _, e := range c.Engines {
		if e.Name == "" || e.Type == "" {
			return fmt.Errorf("engine entries need both name and type")
		}
	}
	return nil
}
