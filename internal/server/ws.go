package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mcpgate/mcpgate/internal/jsonrpc"
	"github.com/mcpgate/mcpgate/internal/logx"
	"github.com/mcpgate/mcpgate/internal/metrics"
	"github.com/mcpgate/mcpgate/internal/serverstate"
)

// wsHandler runs a websocket session: each inbound text frame is a
// JSON-RPC request relayed through the bridge, and engine notifications
// are streamed to the client as they arrive. Requests still take the
// session gate one at a time like every other caller.
func (s *Server) wsHandler(w http.ResponseWriter, req *http.Request) {
	if serverstate.IsDraining() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		return
	}
	clientID := uuid.NewString()
	logx.Log.Info().Str("component", "server.ws").Str("client_id", clientID).Msg("ws client connected")

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	// Notifications and responses race for the socket; writes must be
	// serialized.
	var wmu sync.Mutex
	write := func(data []byte) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.Write(ctx, websocket.MessageText, data)
	}

	notes, unsubscribe := s.notifier.Subscribe()
	defer func() {
		unsubscribe()
		metrics.SetWSClients(s.notifier.Count())
		_ = conn.Close(websocket.StatusNormalClosure, "closing")
		logx.Log.Info().Str("component", "server.ws").Str("client_id", clientID).Msg("ws client disconnected")
	}()
	metrics.SetWSClients(s.notifier.Count())

	go func() {
		for {
			select {
			case n := <-notes:
				if err := write(n); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		payload, err := s.bridge.Call(ctx, data)
		if err != nil {
			code, _ := errorCode(err)
			id, _, _ := jsonrpc.ValidateEnvelope(data)
			if write(wsErrorEnvelope(id, code, err.Error())) != nil {
				return
			}
			continue
		}
		if write(payload) != nil {
			return
		}
	}
}

func wsErrorEnvelope(id any, code, msg string) []byte {
	b, _ := json.Marshal(map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      id,
		"error": map[string]any{
			"code":    -32000,
			"message": msg,
			"data":    map[string]any{"mcp": code},
		},
	})
	return b
}
