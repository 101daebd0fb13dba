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

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ailinux/analysis-gateway/internal/admission"
	"github.com/ailinux/analysis-gateway/internal/dispatch"
	"github.com/ailinux/analysis-gateway/internal/engine"
	"github.com/ailinux/analysis-gateway/internal/job"
	"github.com/ailinux/analysis-gateway/internal/logging"
	"github.com/ailinux/analysis-gateway/internal/maintenance"
	"github.com/ailinux/analysis-gateway/internal/ratelimit"
	"github.com/ailinux/analysis-gateway/internal/session"
	"github.com/ailinux/analysis-gateway/internal/ws"
	"github.com/ailinux/analysis-gateway/pkg/config"
	"github.com/ailinux/analysis-gateway/pkg/sinks"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		logger.Info("config loaded", "path", configPath)
	} else {
		cfg = config.Default()
		logger.Info("no CONFIG_PATH set, using defaults")
	}

	store, err := job.NewStore(cfg.JobStore)
	if err != nil {
		logger.Error("failed to open job store", "type", cfg.JobStore.Type, "error", err)
		os.Exit(1)
	}
	tracker := job.NewTracker(store, logger.With("component", "tracker"))

	engines, err := engine.FromConfig(cfg.Engines, logger.With("component", "engine"))
	if err != nil {
		logger.Error("failed to build engines", "error", err)
		os.Exit(1)
	}

	publisher, err := sinks.FromConfig(cfg.Sinks, logger.With("component", "sinks"))
	if err != nil {
		logger.Error("failed to build audit sinks", "error", err)
		os.Exit(1)
	}

	sessions := session.NewRegistry(logger.With("component", "session"))
	limiter := ratelimit.New(cfg.Limits.RateInterval.Std())
	controller := admission.New(cfg.Limits.MaxConcurrentJobs)

	var traffic *logging.TrafficLogger
	if cfg.Server.LogTraffic {
		traffic = logging.NewTrafficLogger(logger.With("component", "traffic"))
	}

	dispatcher := dispatch.New(tracker, sessions, engines, controller, publisher,
		logger.With("component", "dispatch"))

	server := ws.NewServer(cfg, sessions, limiter, tracker, engines, dispatcher, traffic,
		logger.With("component", "ws"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Unreachable sinks are logged and skipped; the gateway serves
	// without them.
	publisher.ConnectAll(ctx)

	heartbeat := maintenance.NewHeartbeat(sessions,
		cfg.Maintenance.HeartbeatInterval.Std(),
		cfg.Maintenance.IdleProbeAfter.Std(),
		logger.With("component", "heartbeat"))
	go heartbeat.Start(ctx)

	reaper := maintenance.NewReaper(sessions, limiter, tracker,
		cfg.Maintenance.ReaperInterval.Std(),
		cfg.Maintenance.SessionIdleAfter.Std(),
		cfg.Maintenance.JobRetention.Std(),
		logger.With("component", "reaper"))
	go reaper.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		// Failing to bind the listen address is the one fatal error.
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	cancel()
	heartbeat.Stop()
	reaper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	server.Stop(shutdownCtx)
	publisher.CloseAll(shutdownCtx)
	if err := tracker.Close(); err != nil {
		logger.Warn("job store close failed", "error", err)
	}

	logger.Info("analysis gateway stopped")
}
