package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mcpgate/mcpgate/internal/jsonrpc"
	"github.com/mcpgate/mcpgate/internal/logx"
)

// ErrConnectionLost reports that the engine pipe closed or the process
// exited while a call was pending.
var ErrConnectionLost = errors.New("engine connection lost")

// Outcome is the single resolution of a pending call: a verbatim
// response payload or a failure.
type Outcome struct {
	Payload json.RawMessage
	Err     error
}

// Correlator matches outgoing request ids to incoming response lines.
// The gate keeps the map at zero or one live entries, but the by-id
// shape is kept so relaxing to pipelined calls later needs no redesign.
type Correlator struct {
	mu      sync.Mutex
	closed  error
	pending map[string]chan Outcome

	// notify receives id-less lines (notifications). Optional.
	notify func(json.RawMessage)
}

// NewCorrelator constructs a Correlator. notify may be nil, in which
// case notifications are dropped after a debug log.
func NewCorrelator(notify func(json.RawMessage)) *Correlator {
	return &Correlator{pending: map[string]chan Outcome{}, notify: notify}
}

// Register creates a waiter for id. It fails if the id is already
// pending or the session is gone; the waiter channel is buffered so a
// resolution never blocks the read pump.
func (c *Correlator) Register(id string) (<-chan Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed != nil {
		return nil, c.closed
	}
	if _, ok := c.pending[id]; ok {
		return nil, fmt.Errorf("id %q already pending", id)
	}
	ch := make(chan Outcome, 1)
	c.pending[id] = ch
	return ch, nil
}

// Resolve completes the waiter for id with payload. It reports false
// when the id is unknown: either a stray late response for an abandoned
// call or engine noise; orphans resolve nothing.
func (c *Correlator) Resolve(id string, payload json.RawMessage) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- Outcome{Payload: payload}
	return true
}

// Cancel completes the waiter for id with a failure instead of a
// result.
func (c *Correlator) Cancel(id string, reason error) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- Outcome{Err: reason}
	return true
}

// CancelAll fails every pending waiter and rejects future Registers
// with reason. Called once when the session's read side dies.
func (c *Correlator) CancelAll(reason error) {
	c.mu.Lock()
	if c.closed == nil {
		c.closed = reason
	}
	pending := c.pending
	c.pending = map[string]chan Outcome{}
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- Outcome{Err: reason}
	}
}

// ReadPump drains the endpoint's read side for the life of a session.
// Non-JSON lines are engine diagnostics and are discarded; id-less
// messages are notifications and go to the notify sink; everything else
// resolves its waiter. Returns the read error after cancelling all
// pending calls.
func (c *Correlator) ReadPump(ep *Endpoint) error {
	for {
		line, err := ep.ReadLine()
		if err != nil {
			c.CancelAll(ErrConnectionLost)
			return err
		}
		if len(line) == 0 || !json.Valid(line) {
			logx.Log.Debug().Str("component", "engine.pump").Int("bytes", len(line)).Msg("discarding non-protocol line")
			continue
		}
		id, ok := jsonrpc.ExtractID(line)
		if !ok {
			if c.notify != nil {
				c.notify(json.RawMessage(line))
			} else {
				logx.Log.Debug().Str("component", "engine.pump").Msg("dropping notification")
			}
			continue
		}
		if !c.Resolve(id, json.RawMessage(line)) {
			logx.Log.Debug().Str("component", "engine.pump").Str("id", id).Msg("orphan response discarded")
		}
	}
}
