package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpgate/mcpgate/internal/bridge"
	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/engine"
	"github.com/mcpgate/mcpgate/internal/jsonrpc"
	"github.com/mcpgate/mcpgate/internal/logx"
	"github.com/mcpgate/mcpgate/internal/metrics"
	"github.com/mcpgate/mcpgate/internal/serverstate"
)

// Server exposes the bridge over HTTP.
type Server struct {
	bridge   *bridge.Bridge
	sup      *engine.Supervisor
	notifier *engine.Notifier
	cfg      config.Config
}

// New constructs the HTTP handler for the gateway.
func New(br *bridge.Bridge, sup *engine.Supervisor, notifier *engine.Notifier, cfg config.Config) http.Handler {
	s := &Server{bridge: br, sup: sup, notifier: notifier, cfg: cfg}
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/status", s.statusHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(bearerAuth(cfg.APIKey))
		}
		r.Post("/mcp", s.mcpHandler)
		r.Get("/mcp/ws", s.wsHandler)
	})
	return r
}

// bearerAuth requires callers to present the configured API key.
func bearerAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(h), "bearer ") || strings.TrimSpace(h[7:]) != key {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// mcpHandler bridges one JSON-RPC request body into the engine session.
func (s *Server) mcpHandler(w http.ResponseWriter, req *http.Request) {
	if serverstate.IsDraining() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	reqID := uuid.NewString()
	req.Body = http.MaxBytesReader(w, req.Body, s.cfg.MaxReqBytes)
	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeRPCError(w, nil, http.StatusRequestEntityTooLarge, jsonrpc.ErrLimitExceeded, "request too large", reqID)
		return
	}
	id, method, ok := jsonrpc.ValidateEnvelope(body)
	if !ok {
		logx.Log.Warn().Str("component", "server.http").Str("req_id", reqID).Str("error_code", jsonrpc.ErrSchema).Msg("invalid json-rpc")
		writeRPCError(w, nil, http.StatusBadRequest, jsonrpc.ErrSchema, "invalid json-rpc request", reqID)
		return
	}

	start := time.Now()
	payload, err := s.bridge.Call(req.Context(), body)
	if err != nil {
		code, status := errorCode(err)
		metrics.RecordRequest(method, strings.ToLower(strings.TrimPrefix(code, "MCP_")))
		logx.Log.Warn().Str("component", "server.http").Str("req_id", reqID).Str("method", method).Str("error_code", code).Uint64("generation", s.sup.Generation()).Msg("bridge call failed")
		writeRPCError(w, id, status, code, err.Error(), reqID)
		return
	}
	if int64(len(payload)) > s.cfg.MaxRespBytes {
		metrics.RecordRequest(method, "limit_exceeded")
		logx.Log.Warn().Str("component", "server.http").Str("req_id", reqID).Str("method", method).Str("error_code", jsonrpc.ErrLimitExceeded).Msg("response too large")
		writeRPCError(w, id, http.StatusOK, jsonrpc.ErrLimitExceeded, "response too large", reqID)
		return
	}

	outcome := "success"
	if jsonrpc.IsErrorResponse(payload) {
		outcome = "upstream_error"
	}
	metrics.RecordRequest(method, outcome)
	metrics.ObserveRequestDuration(method, time.Since(start))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
	logx.Log.Info().Str("component", "server.http").Str("req_id", reqID).Str("method", method).Str("outcome", outcome).Dur("duration", time.Since(start)).Msg("mcp request complete")
}

// errorCode maps a bridge failure to its canonical code and HTTP status.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, bridge.ErrProtocol):
		return jsonrpc.ErrSchema, http.StatusBadRequest
	case errors.Is(err, bridge.ErrEngineUnavailable):
		return jsonrpc.ErrEngineUnavailable, http.StatusServiceUnavailable
	case errors.Is(err, bridge.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return jsonrpc.ErrTimeout, http.StatusGatewayTimeout
	case errors.Is(err, bridge.ErrConnectionLost):
		return jsonrpc.ErrConnectionLost, http.StatusGatewayTimeout
	default:
		return jsonrpc.ErrEngineUnavailable, http.StatusServiceUnavailable
	}
}

func writeRPCError(w http.ResponseWriter, id any, status int, code, msg, reqID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	errObj := map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      id,
		"error": map[string]any{
			"code":    -32000,
			"message": msg,
			"data": map[string]any{
				"mcp":    code,
				"req_id": reqID,
			},
		},
	}
	_ = json.NewEncoder(w).Encode(errObj)
}
