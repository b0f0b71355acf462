package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mcpgate/mcpgate/internal/bridge"
	"github.com/mcpgate/mcpgate/internal/engine"
)

func TestWSRoundTripAndNotifications(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	notifier := engine.NewNotifier()
	sup := engine.NewSupervisor(engine.Options{Command: "cat", Notify: notifier.Publish})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx) }()
	deadline := time.Now().Add(5 * time.Second)
	for sup.State() != engine.StateReady {
		if time.Now().After(deadline) {
			t.Fatal("engine never became ready")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cfg := testConfig()
	h := New(bridge.New(sup, cfg.RequestTimeout), sup, notifier, cfg)
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/mcp/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","id":"ws-1","method":"tools/list"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(data, &resp) != nil || resp.ID != "ws-1" {
		t.Fatalf("unexpected ws response %s", data)
	}

	// An id-less line on the engine stream reaches ws subscribers.
	note := `{"jsonrpc":"2.0","method":"notifications/progress","params":{"progress":1}}`
	sess, _ := sup.Session()
	if err := sess.Endpoint.WriteLine([]byte(note)); err != nil {
		t.Fatalf("inject notification: %v", err)
	}
	noteCtx, noteCancel := context.WithTimeout(ctx, 5*time.Second)
	defer noteCancel()
	_, data, err = conn.Read(noteCtx)
	if err != nil {
		t.Fatalf("read notification: %v", err)
	}
	var n struct {
		Method string `json:"method"`
	}
	if json.Unmarshal(data, &n) != nil || n.Method != "notifications/progress" {
		t.Fatalf("unexpected notification %s", data)
	}

	// A malformed ws request gets an error envelope, not a dropped
	// connection.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","method":"no-id"}`)); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	errCtx, errCancel := context.WithTimeout(ctx, 5*time.Second)
	defer errCancel()
	_, data, err = conn.Read(errCtx)
	if err != nil {
		t.Fatalf("read error envelope: %v", err)
	}
	var envl struct {
		Error struct {
			Data struct {
				MCP string `json:"mcp"`
			} `json:"data"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envl) != nil || envl.Error.Data.MCP != "MCP_SCHEMA_ERROR" {
		t.Fatalf("unexpected error envelope %s", data)
	}
}
