package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcpgate/mcpgate/internal/engine"
	"github.com/mcpgate/mcpgate/internal/jsonrpc"
)

// Caller-visible failure kinds. Engine instability (EOF, process exit,
// malformed line storms) is contained below and only ever surfaces as
// one of these.
var (
	// ErrProtocol: malformed or un-correlatable request. Caller's fault.
	ErrProtocol = errors.New("invalid json-rpc request")
	// ErrEngineUnavailable: no ready session. Retry after backoff.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrTimeout: no response within budget. The engine may still act
	// on the call.
	ErrTimeout = errors.New("engine call timed out")
	// ErrConnectionLost: the pipe or process died mid-call.
	ErrConnectionLost = engine.ErrConnectionLost
)

// SessionSource yields the current engine session. Implemented by the
// engine Supervisor; faked in tests.
type SessionSource interface {
	Session() (*engine.Session, bool)
}

// Bridge is the public entry point: it turns one JSON-RPC request body
// into one response payload against the live engine session, holding
// the session gate for the full write-to-response turn.
type Bridge struct {
	source  SessionSource
	gate    *engine.Gate
	timeout time.Duration
}

// New constructs a Bridge with the given per-call response budget.
func New(source SessionSource, timeout time.Duration) *Bridge {
	return &Bridge{source: source, gate: engine.NewGate(), timeout: timeout}
}

// Call sends body to the engine and blocks for the matching response.
// The payload is returned verbatim; an upstream JSON-RPC error member
// is the engine's answer, not a bridge failure.
func (b *Bridge) Call(ctx context.Context, body []byte) (json.RawMessage, error) {
	id, _, ok := jsonrpc.ValidateEnvelope(body)
	if !ok {
		return nil, ErrProtocol
	}
	key, ok := jsonrpc.IDKey(id)
	if !ok {
		return nil, ErrProtocol
	}
	line := &bytes.Buffer{}
	if err := json.Compact(line, body); err != nil {
		return nil, ErrProtocol
	}

	if err := b.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer b.gate.Release()

	sess, ready := b.source.Session()
	if !ready {
		return nil, ErrEngineUnavailable
	}
	ch, err := sess.Correlator.Register(key)
	if err != nil {
		// A closed correlator means the read side died under us; that
		// is engine instability, never the caller's fault.
		if errors.Is(err, ErrConnectionLost) {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if err := sess.Endpoint.WriteLine(line.Bytes()); err != nil {
		sess.Correlator.Cancel(key, err)
		<-ch
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case out := <-ch:
		return out.Payload, out.Err
	case <-timer.C:
		// A stray late response for this id resolves nothing: the
		// waiter is gone and the correlator drops unknown ids.
		if sess.Correlator.Cancel(key, ErrTimeout) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, b.timeout)
		}
		out := <-ch
		return out.Payload, out.Err
	case <-ctx.Done():
		if sess.Correlator.Cancel(key, ctx.Err()) {
			return nil, ctx.Err()
		}
		out := <-ch
		return out.Payload, out.Err
	}
}

// Timeout returns the configured per-call response budget.
func (b *Bridge) Timeout() time.Duration { return b.timeout }
