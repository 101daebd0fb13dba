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

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ailinux/analysis-gateway/internal/dispatch"
	"github.com/ailinux/analysis-gateway/internal/engine"
	"github.com/ailinux/analysis-gateway/internal/job"
	"github.com/ailinux/analysis-gateway/internal/logging"
	"github.com/ailinux/analysis-gateway/internal/metrics"
	"github.com/ailinux/analysis-gateway/internal/ratelimit"
	"github.com/ailinux/analysis-gateway/internal/session"
	"github.com/ailinux/analysis-gateway/pkg/config"
	"github.com/ailinux/analysis-gateway/pkg/core"
)

const outboundQueueSize = 64

// Server owns the WebSocket endpoint and the per-connection loops.
// Each accepted connection runs one reader and one writer goroutine;
// everything pushed to a session goes through its outbound channel so
// frames leave in the order they were queued.
type Server struct {
	cfg        *config.Config
	upgrader   websocket.Upgrader
	sessions   *session.Registry
	limiter    *ratelimit.Limiter
	tracker    *job.Tracker
	engines    *engine.Registry
	dispatcher *dispatch.Dispatcher
	traffic    *logging.TrafficLogger
	logger     *slog.Logger

	server    *http.Server
	rootCtx   context.Context
	startedAt time.Time
}

func NewServer(
	cfg *config.Config,
	sessions *session.Registry,
	limiter *ratelimit.Limiter,
	tracker *job.Tracker,
	engines *engine.Registry,
	dispatcher *dispatch.Dispatcher,
	traffic *logging.TrafficLogger,
	logger *slog.Logger,
) *Server {
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16384,
			WriteBufferSize: 16384,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions:   sessions,
		limiter:    limiter,
		tracker:    tracker,
		engines:    engines,
		dispatcher: dispatcher,
		traffic:    traffic,
		logger:     logger,
	}
}

// Start blocks serving connections until ctx is cancelled. A listen
// failure is the only error it returns.
func (s *Server) Start(ctx context.Context) error {
	s.rootCtx = ctx
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnection)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:    net.JoinHostPort(s.cfg.Server.Host, fmt.Sprintf("%d", s.cfg.Server.Port)),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	var err error
	if s.tlsUsable() {
		s.logger.Info("websocket server starting", "addr", s.server.Addr, "tls", true)
		err = s.server.ListenAndServeTLS(s.cfg.Server.TLSCert, s.cfg.Server.TLSKey)
	} else {
		s.logger.Info("websocket server starting", "addr", s.server.Addr, "tls", false)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// tlsUsable reports whether a configured cert and key pair actually
// exists on disk. A missing file downgrades the server to plaintext
// with a warning rather than refusing to start.
func (s *Server) tlsUsable() bool {
	if s.cfg.Server.TLSCert == "" {
		return false
	}
	for _, path := range []string{s.cfg.Server.TLSCert, s.cfg.Server.TLSKey} {
		if _, err := os.Stat(path); err != nil {
			s.logger.Warn("tls material unreadable, serving plaintext", "path", path, "error", err)
			return false
		}
	}
	return true
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"uptime":  time.Since(s.startedAt).Seconds(),
		"clients": s.sessions.Count(),
	})
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	metrics.ConnectionsTotal.Inc()

	// Hard cap at twice the protocol limit, installed before any frame
	// is read so the unauthenticated handshake frame is bounded too.
	// Messages between the two limits get a 413 and the connection
	// survives; beyond the cap gorilla tears the connection down, which
	// is the only sane response to a client that ignores the limit
	// entirely.
	conn.SetReadLimit(int64(2 * s.cfg.Limits.MaxMessageSize))

	hello, ok := s.handshake(conn, r)
	if !ok {
		return
	}

	connCtx, cancel := context.WithCancel(s.rootCtx)
	defer cancel()

	outbound := make(chan []byte, outboundQueueSize)
	sessionID := s.sessions.Register(core.RemoteHost(r), hello.ClientType, hello.Version, hello.UserAgent, outbound, cancel)

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()
	defer func() {
		s.sessions.Remove(sessionID)
		s.limiter.Forget(sessionID)
		s.logger.Info("ws client disconnected", "session_id", sessionID)
	}()

	go s.writeLoop(connCtx, conn, sessionID, outbound)

	s.push(sessionID, core.TypeAuthentication, core.AuthResult{
		Type:     core.TypeAuthentication,
		Status:   "success",
		ClientID: sessionID,
		Message:  "Connection established",
	})

	s.readLoop(conn, sessionID)
}

// handshake reads the first frame under the auth deadline and checks
// the shared secret. It writes the error frame itself because no
// session exists yet; a false return means the connection is done.
func (s *Server) handshake(conn *websocket.Conn, r *http.Request) (core.Inbound, bool) {
	conn.SetReadDeadline(time.Now().Add(s.cfg.Auth.HandshakeTimeout.Std()))

	_, payload, err := conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			conn.WriteJSON(core.NewError("Authentication timeout", core.CodeAuthTimeout))
			s.logger.Warn("authentication timeout", "remote_addr", r.RemoteAddr)
		}
		return core.Inbound{}, false
	}

	if len(payload) > s.cfg.Limits.MaxMessageSize {
		conn.WriteJSON(core.NewError(
			fmt.Sprintf("Message too large (max %d bytes)", s.cfg.Limits.MaxMessageSize), core.CodeTooLarge))
		metrics.Rejections.WithLabelValues("oversized").Inc()
		return core.Inbound{}, false
	}

	var hello core.Inbound
	if err := json.Unmarshal(payload, &hello); err != nil {
		conn.WriteJSON(core.NewError("Invalid JSON message", core.CodeMalformed))
		return core.Inbound{}, false
	}
	if hello.Type != core.TypeAuthentication {
		conn.WriteJSON(core.NewError("Expected authentication message", core.CodeMalformed))
		return core.Inbound{}, false
	}
	if s.cfg.Auth.Key != "" && hello.AuthKey != s.cfg.Auth.Key {
		conn.WriteJSON(core.NewError("Invalid authentication key", core.CodeUnauthorized))
		metrics.Rejections.WithLabelValues("auth").Inc()
		s.logger.Warn("authentication rejected", "remote_addr", r.RemoteAddr)
		return core.Inbound{}, false
	}

	conn.SetReadDeadline(time.Time{})
	return hello, true
}

func (s *Server) readLoop(conn *websocket.Conn, sessionID string) {
	maxSize := s.cfg.Limits.MaxMessageSize

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("ws read error", "session_id", sessionID, "error", err)
			}
			return
		}

		if len(payload) > maxSize {
			metrics.Rejections.WithLabelValues("oversized").Inc()
			s.push(sessionID, core.TypeError, core.NewError(
				fmt.Sprintf("Message too large (max %d bytes)", maxSize), core.CodeTooLarge))
			continue
		}

		// Rejected messages do not advance the rate window and do not
		// count as session activity.
		if !s.limiter.Allow(sessionID, time.Now()) {
			metrics.Rejections.WithLabelValues("rate_limit").Inc()
			s.push(sessionID, core.TypeError, core.NewError(
				"Rate limit exceeded. Please wait before sending more messages.", core.CodeRateLimited))
			continue
		}
		s.sessions.Touch(sessionID)

		var msg core.Inbound
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.push(sessionID, core.TypeError, core.NewError("Invalid JSON message", core.CodeMalformed))
			continue
		}
		if s.traffic != nil {
			s.traffic.Log(sessionID, msg.Type, "inbound", len(payload))
		}

		s.route(sessionID, msg)
	}
}

func (s *Server) route(sessionID string, msg core.Inbound) {
	switch msg.Type {
	case core.TypePing:
		s.push(sessionID, core.TypePong, core.Pong{
			Type:      core.TypePong,
			Timestamp: core.UnixSeconds(time.Now()),
		})

	case core.TypeAnalyzeLog:
		// Jobs run on the server context, not the connection's: a
		// disconnect must not abort an analysis in flight.
		if _, err := s.dispatcher.Submit(s.rootCtx, sessionID, msg); err != nil {
			if errors.Is(err, core.ErrEmptyLog) {
				s.push(sessionID, core.TypeError, core.NewError("No log content provided", core.CodeMalformed))
				return
			}
			s.logger.Error("job submission failed", "session_id", sessionID, "error", err)
			s.push(sessionID, core.TypeError, core.NewError("Internal server error", core.CodeInternal))
		}

	case core.TypeGetModels:
		s.push(sessionID, core.TypeModelsInfo, core.ModelsInfo{
			Type:   core.TypeModelsInfo,
			Models: s.engines.Models(s.rootCtx),
		})

	case core.TypeServerStatus:
		now := time.Now()
		s.push(sessionID, core.TypeServerStatus, core.ServerStatus{
			Type: core.TypeServerStatus,
			Status: core.ServerStatusInfo{
				Uptime:           now.Sub(s.startedAt).Seconds(),
				ClientsConnected: s.sessions.Count(),
				ActiveJobs:       s.tracker.ActiveCount(s.rootCtx),
				ServerTime:       core.UnixSeconds(now),
			},
		})

	default:
		s.push(sessionID, core.TypeError, core.NewError(
			"Unknown message type: "+msg.Type, core.CodeMalformed))
	}
}

// push queues an outbound frame on the session's channel.
func (s *Server) push(sessionID, msgType string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal outbound frame", "session_id", sessionID, "error", err)
		return
	}
	if err := s.sessions.Push(sessionID, payload); err != nil {
		s.logger.Warn("outbound push failed", "session_id", sessionID, "error", err)
		return
	}
	if s.traffic != nil {
		s.traffic.Log(sessionID, msgType, "outbound", len(payload))
	}
}

// writeLoop is the connection's single writer. When the context is
// cancelled, by shutdown or by the reaper evicting the session, it
// sends a close frame and drops the connection so the read loop
// unblocks.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sessionID string, outbound <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case payload := <-outbound:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Error("ws write failed", "session_id", sessionID, "error", err)
				return
			}
		}
	}
}
