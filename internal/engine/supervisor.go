package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpgate/mcpgate/internal/jsonrpc"
	"github.com/mcpgate/mcpgate/internal/logx"
	"github.com/mcpgate/mcpgate/internal/reconnect"
)

// State describes the lifecycle of the current engine session.
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateBroken   State = "broken"
	StateStopped  State = "stopped"
)

// Session is one live incarnation of the engine process. A fresh
// Correlator per incarnation guarantees a stale response line from a
// dead generation can never resolve a call in a newer one.
type Session struct {
	Generation uint64
	Endpoint   *Endpoint
	Correlator *Correlator

	pid       int
	startedAt time.Time
}

// PID returns the engine process id for this session.
func (s *Session) PID() int { return s.pid }

// StartedAt returns when this session's process was spawned.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Options configure the Supervisor.
type Options struct {
	Command string
	Args    []string
	Env     []string // extra KEY=VALUE entries appended to the child env
	Dir     string

	// AutoInitialize runs the MCP initialize handshake before the
	// session is marked ready. When false the first caller is expected
	// to initialize, as a fresh session always starts uninitialized.
	AutoInitialize    bool
	InitializeTimeout time.Duration
	ClientName        string
	ClientVersion     string

	// Notify receives engine notifications (id-less lines). Optional.
	Notify func(json.RawMessage)

	// OnState is invoked on every state transition. Optional.
	OnState func(State, *Session)
	// OnExit is invoked each time the engine process terminates.
	OnExit func(generation uint64, err error)
}

// Supervisor owns the engine process: it launches it, exposes its pipes
// as a Session, and restarts it with backoff when it dies. It is the
// only component that mutates the session.
type Supervisor struct {
	opts Options
	gen  atomic.Uint64

	mu    sync.RWMutex
	sess  *Session
	state State
}

// NewSupervisor constructs a Supervisor; call Run to start the engine.
func NewSupervisor(opts Options) *Supervisor {
	if opts.InitializeTimeout <= 0 {
		opts.InitializeTimeout = 30 * time.Second
	}
	return &Supervisor{opts: opts, state: StateStopped}
}

// Session returns the current session and whether it is ready for
// calls. Callers must hold the gate before trusting the answer.
func (s *Supervisor) Session() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess, s.state == StateReady
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Generation returns the generation counter of the latest start.
func (s *Supervisor) Generation() uint64 { return s.gen.Load() }

// markBroken flags sess as broken unless a newer session has already
// replaced it or the supervisor is shutting down.
func (s *Supervisor) markBroken(sess *Session) {
	s.mu.Lock()
	if s.sess != sess || s.state == StateBroken || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateBroken
	s.mu.Unlock()
	if s.opts.OnState != nil {
		s.opts.OnState(StateBroken, sess)
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	sess := s.sess
	s.mu.Unlock()
	if s.opts.OnState != nil {
		s.opts.OnState(st, sess)
	}
}

// Run supervises the engine until ctx is done: start, wait for exit,
// back off, start again with a fresh generation. Consecutive failed
// starts stretch the backoff; a session that reached ready resets it.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		ready, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StateStopped)
			return ctx.Err()
		}
		if ready {
			attempt = 0
		}
		delay := reconnect.Delay(attempt)
		attempt++
		logx.Log.Warn().Err(err).Uint64("generation", s.gen.Load()).Dur("backoff", delay).Msg("engine exited; restarting")
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runOnce spawns one engine incarnation and blocks until it exits or
// ctx is cancelled. ready reports whether the session reached StateReady.
func (s *Supervisor) runOnce(ctx context.Context) (ready bool, err error) {
	gen := s.gen.Add(1)
	cmd := exec.Command(s.opts.Command, s.opts.Args...)
	cmd.Dir = s.opts.Dir
	cmd.Env = append(os.Environ(), s.opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return false, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return false, err
	}
	if err := cmd.Start(); err != nil {
		return false, err
	}

	sess := &Session{
		Generation: gen,
		Endpoint:   NewEndpoint(stdin, stdout),
		Correlator: NewCorrelator(s.opts.Notify),
		pid:        cmd.Process.Pid,
		startedAt:  time.Now(),
	}
	s.mu.Lock()
	s.sess = sess
	s.state = StateStarting
	s.mu.Unlock()
	if s.opts.OnState != nil {
		s.opts.OnState(StateStarting, sess)
	}
	logx.Log.Info().Uint64("generation", gen).Int("pid", sess.pid).Str("command", s.opts.Command).Msg("engine started")

	go drainStderr(gen, stderr)
	go func() {
		_ = sess.Correlator.ReadPump(sess.Endpoint)
		// stdout can close while the process lingers. A session that
		// can no longer read responses is broken; kill the process so
		// the restart loop takes over.
		s.markBroken(sess)
		_ = cmd.Process.Kill()
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	if s.opts.AutoInitialize {
		if err := s.initialize(ctx, sess); err != nil {
			logx.Log.Error().Err(err).Uint64("generation", gen).Msg("engine handshake failed")
			_ = cmd.Process.Kill()
			<-waitCh
			sess.Correlator.CancelAll(ErrConnectionLost)
			s.setState(StateBroken)
			if s.opts.OnExit != nil {
				s.opts.OnExit(gen, err)
			}
			return false, err
		}
	}
	s.setState(StateReady)

	select {
	case err = <-waitCh:
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitCh
		err = ctx.Err()
	}
	// The pump cancels pending calls when stdout closes; cancel again
	// here so a call can never outlive its generation.
	sess.Correlator.CancelAll(ErrConnectionLost)
	s.setState(StateBroken)
	if s.opts.OnExit != nil {
		s.opts.OnExit(gen, err)
	}
	return true, err
}

// initialize performs the MCP handshake on a fresh session: initialize
// request, then the initialized notification.
func (s *Supervisor) initialize(ctx context.Context, sess *Session) error {
	id := fmt.Sprintf("mcpgate-init-%d", sess.Generation)
	key, _ := jsonrpc.IDKeyValue(id)
	ch, err := sess.Correlator.Register(key)
	if err != nil {
		return err
	}
	params := mcp.InitializeParams{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		Capabilities:    mcp.ClientCapabilities{},
		ClientInfo:      mcp.Implementation{Name: s.opts.ClientName, Version: s.opts.ClientVersion},
	}
	req, _ := json.Marshal(jsonrpc.NewRequest(id, string(mcp.MethodInitialize), params))
	if err := sess.Endpoint.WriteLine(req); err != nil {
		sess.Correlator.Cancel(key, err)
		return err
	}
	select {
	case out := <-ch:
		if out.Err != nil {
			return out.Err
		}
		if jsonrpc.IsErrorResponse(out.Payload) {
			return fmt.Errorf("initialize rejected: %s", out.Payload)
		}
	case <-time.After(s.opts.InitializeTimeout):
		sess.Correlator.Cancel(key, ErrConnectionLost)
		return fmt.Errorf("initialize timed out after %s", s.opts.InitializeTimeout)
	case <-ctx.Done():
		sess.Correlator.Cancel(key, ctx.Err())
		return ctx.Err()
	}
	note, _ := json.Marshal(jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "notifications/initialized"})
	return sess.Endpoint.WriteLine(note)
}

// drainStderr forwards engine diagnostics to the log so they never mix
// into the protocol stream handling.
func drainStderr(gen uint64, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		logx.Log.Debug().Uint64("generation", gen).Str("component", "engine.stderr").Msg(sc.Text())
	}
	if err := sc.Err(); err != nil {
		// An oversized line aborts the scanner. Keep draining raw
		// bytes so the engine never blocks on a full stderr pipe.
		logx.Log.Warn().Err(err).Uint64("generation", gen).Str("component", "engine.stderr").Msg("stderr line dropped; draining raw")
		_, _ = io.Copy(io.Discard, r)
	}
}
