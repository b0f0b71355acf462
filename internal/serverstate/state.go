package serverstate

import (
	"sync/atomic"
	"time"
)

// State is the externally visible snapshot of the gateway.
type State struct {
	Status     string    `json:"status"`
	Generation uint64    `json:"generation"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}

// Store persists gateway state for external observers.
type Store interface {
	Load() State
	Store(State)
}

var current atomic.Value
var draining atomic.Bool

func init() {
	current.Store(State{Status: "not_ready"})
}

// Set records the gateway state snapshot.
func Set(s State) {
	current.Store(s)
}

// Get returns the current gateway state snapshot.
func Get() State {
	if v, ok := current.Load().(State); ok {
		return v
	}
	return State{Status: "unknown"}
}

// StartDrain marks the gateway as draining.
func StartDrain() {
	draining.Store(true)
	s := Get()
	s.Status = "draining"
	Set(s)
}

// IsDraining reports whether the gateway is draining.
func IsDraining() bool {
	return draining.Load()
}
