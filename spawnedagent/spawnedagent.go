// Package spawnedagent implements the SpawnedAgent (C7): a handle that
// exclusively owns a child process's reap handle, stdio, and the
// one-shot exit/interrupt signalling around it, plus a shared reference
// to the session's LogStore.
//
// Grounded on the reference service's internal/acp/process.go
// (AgentProcess: pipe wiring, Stop/Wait shape) generalized from a
// docker-exec'd child to a directly exec'd one running under
// internal/procgroup containment, and on internal/acp/session_host.go's
// interrupt handling for the soft/term/kill cascade shape.
package spawnedagent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/internal/procgroup"
	"github.com/workspace/agentcore/protocol"
)

// State is a SpawnedAgent's lifecycle stage.
type State string

const (
	StateSpawned      State = "spawned"
	StateInterrupting State = "interrupting"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// ExitReason classifies how a SpawnedAgent reached a terminal state.
type ExitReason string

const (
	ExitSuccess     ExitReason = "success"
	ExitFailure     ExitReason = "failure"
	ExitInterrupted ExitReason = "interrupted"
)

// ExitResult is what Wait resolves with.
type ExitResult struct {
	Reason   ExitReason
	ExitCode int
	// KillReason is set only when Reason == ExitInterrupted, e.g.
	// "timeout" or "host_requested".
	KillReason string
}

// NormalizeFunc turns one raw passthrough line into zero or more
// NormalizedEvents. Parse failures must be reported as an Error event,
// not a returned error — see eventlog.NewErrorEvent.
type NormalizeFunc func(line []byte, ts time.Time, agentType string) []eventlog.NormalizedEvent

// Config bundles everything Spawn needs to launch and wire a child.
type Config struct {
	SessionID string
	AgentType string
	Cmd       *exec.Cmd // not yet started
	LogStore  *eventlog.Store
	Normalize NormalizeFunc

	// Handler is non-nil for bindings with BidirectionalControl: Spawn
	// constructs a protocol.Peer over the child's stdio and dispatches
	// inbound control_requests to Handler. Nil selects the one-shot
	// streaming shape (stdin written once then closed, no Peer).
	Handler protocol.RequestHandler

	// InitialPrompt is written to stdin, followed by a newline, and stdin
	// is then closed. Only meaningful when Handler is nil: bindings with a
	// Peer instead send the prompt via SendUserMessage after Spawn
	// returns.
	InitialPrompt string

	Options agentcore.Options
}

// SpawnedAgent is the C7 handle returned by a spawn.
type SpawnedAgent struct {
	sessionID string
	agentType string
	cmd       *exec.Cmd
	logStore  *eventlog.Store
	peer      *protocol.Peer
	options   agentcore.Options
	logger    *slog.Logger

	stateMu sync.Mutex
	state   State

	interruptOnce sync.Once
	cancelCh      chan struct{}

	exitOnce sync.Once
	exitCh   chan ExitResult

	killReason string
}

// Spawn starts cfg.Cmd under process-group containment, wires its stdio
// per cfg.Handler's presence, and returns once the child is running with
// its output already flowing into cfg.LogStore.
func Spawn(ctx context.Context, cfg Config) (*SpawnedAgent, error) {
	opts := cfg.Options.WithDefaults()
	logger := opts.Logger.With("session_id", cfg.SessionID, "agent_type", cfg.AgentType)

	stdin, err := cfg.Cmd.StdinPipe()
	if err != nil {
		return nil, &agentcore.SpawnError{AgentType: cfg.AgentType, Reason: "stdin pipe", Cause: err}
	}
	stdout, err := cfg.Cmd.StdoutPipe()
	if err != nil {
		return nil, &agentcore.SpawnError{AgentType: cfg.AgentType, Reason: "stdout pipe", Cause: err}
	}
	stderr, err := cfg.Cmd.StderrPipe()
	if err != nil {
		return nil, &agentcore.SpawnError{AgentType: cfg.AgentType, Reason: "stderr pipe", Cause: err}
	}

	procgroup.Prepare(cfg.Cmd)
	if err := cfg.Cmd.Start(); err != nil {
		return nil, &agentcore.SpawnError{AgentType: cfg.AgentType, Reason: "start child process", Cause: err}
	}
	if err := procgroup.AssignJob(cfg.Cmd); err != nil {
		logger.Warn("spawnedagent: failed to assign child to containment group", "error", err)
	}

	sa := &SpawnedAgent{
		sessionID: cfg.SessionID,
		agentType: cfg.AgentType,
		cmd:       cfg.Cmd,
		logStore:  cfg.LogStore,
		options:   opts,
		logger:    logger,
		state:     StateSpawned,
		cancelCh:  make(chan struct{}),
		exitCh:    make(chan ExitResult, 1),
	}

	passthrough := make(chan protocol.PassthroughLine, 64)

	if cfg.Handler != nil {
		sa.peer = protocol.NewPeer(stdin, stdout, cfg.Handler, passthrough, logger, cfg.AgentType, sa.cancelCh)
		go sa.peer.Run(ctx)
	} else {
		go scanLinesInto(stdout, passthrough)
		if _, err := io.WriteString(stdin, cfg.InitialPrompt+"\n"); err != nil {
			logger.Warn("spawnedagent: failed to write initial prompt", "error", err)
		}
		if err := stdin.Close(); err != nil {
			logger.Warn("spawnedagent: failed to close stdin", "error", err)
		}
	}

	go sa.drainPassthrough(passthrough, cfg.Normalize)
	go sa.drainStderr(stderr)
	go sa.monitorExit()

	logger.Info("spawnedagent: spawned", "pid", pidOf(cfg.Cmd))
	return sa, nil
}

// PTYConfig bundles what SpawnPTY needs for a terminal-shaped child.
// Unlike Config/Spawn, the child must already be running: a pty-backed
// process (agents/shellbridge's InteractiveTTY capability) is started via
// creack/pty.StartWithSize, which owns process creation itself in order to
// allocate the pty's slave side and attach it to the child before exec.
// Master is the pty's master end, serving as both stdin and stdout; there
// is no separate stderr stream for a pty-backed child.
type PTYConfig struct {
	SessionID string
	AgentType string
	Cmd       *exec.Cmd // already started under pty.StartWithSize
	Master    io.ReadWriteCloser
	LogStore  *eventlog.Store
	Normalize NormalizeFunc

	// InitialPrompt, if non-empty, is written to Master followed by a
	// newline once the read loop is attached. A pty-backed child has no
	// ProtocolPeer, so this is the only way to deliver the initial prompt.
	InitialPrompt string

	Options agentcore.Options
}

// SpawnPTY wraps an already-started pty-backed child in a SpawnedAgent.
// It reuses the same passthrough/normalize/exit-monitor/interrupt-cascade
// machinery as Spawn; only stdio wiring differs, since a pty's master end
// is a single combined read/write stream rather than three separate
// pipes.
func SpawnPTY(ctx context.Context, cfg PTYConfig) (*SpawnedAgent, error) {
	opts := cfg.Options.WithDefaults()
	logger := opts.Logger.With("session_id", cfg.SessionID, "agent_type", cfg.AgentType)

	if err := procgroup.AssignJob(cfg.Cmd); err != nil {
		logger.Warn("spawnedagent: failed to assign pty child to containment group", "error", err)
	}

	sa := &SpawnedAgent{
		sessionID: cfg.SessionID,
		agentType: cfg.AgentType,
		cmd:       cfg.Cmd,
		logStore:  cfg.LogStore,
		options:   opts,
		logger:    logger,
		state:     StateSpawned,
		cancelCh:  make(chan struct{}),
		exitCh:    make(chan ExitResult, 1),
	}

	passthrough := make(chan protocol.PassthroughLine, 64)
	go scanLinesInto(cfg.Master, passthrough)
	if cfg.InitialPrompt != "" {
		if _, err := io.WriteString(cfg.Master, cfg.InitialPrompt+"\n"); err != nil {
			logger.Warn("spawnedagent: failed to write initial prompt to pty master", "error", err)
		}
	}

	go sa.drainPassthrough(passthrough, cfg.Normalize)
	go sa.monitorExit()

	logger.Info("spawnedagent: spawned (pty)", "pid", pidOf(cfg.Cmd))
	return sa, nil
}

// ExternalConfig bundles what SpawnExternal needs for a child whose stdio
// is owned entirely by a binding-specific RPC framing rather than by this
// package's line-scanning passthrough. The ACP binding is the motivating
// case: github.com/coder/acp-go-sdk's ClientSideConnection takes the
// child's stdin/stdout directly to frame JSON-RPC, so there is no raw
// stdout stream left for scanLinesInto to read, and no stdin left for an
// initial prompt write. The binding instead calls LogStore.Append itself
// from its acpsdk.Client.SessionUpdate implementation.
type ExternalConfig struct {
	SessionID string
	AgentType string
	Cmd       *exec.Cmd // already started, with its stdio handed to the binding's own framing
	LogStore  *eventlog.Store
	Options   agentcore.Options
}

// SpawnExternal wraps an already-started, externally-framed child in a
// SpawnedAgent, reusing only the containment/exit-monitor/interrupt-cascade
// machinery: no passthrough scanning, no stderr draining, no ProtocolPeer.
// SendUserMessage/Initialize/SetPermissionMode all return ErrUnsupported,
// since there is no Peer; the binding sends turns through its own RPC
// client directly.
func SpawnExternal(ctx context.Context, cfg ExternalConfig) (*SpawnedAgent, error) {
	opts := cfg.Options.WithDefaults()
	logger := opts.Logger.With("session_id", cfg.SessionID, "agent_type", cfg.AgentType)

	if err := procgroup.AssignJob(cfg.Cmd); err != nil {
		logger.Warn("spawnedagent: failed to assign external-framed child to containment group", "error", err)
	}

	sa := &SpawnedAgent{
		sessionID: cfg.SessionID,
		agentType: cfg.AgentType,
		cmd:       cfg.Cmd,
		logStore:  cfg.LogStore,
		options:   opts,
		logger:    logger,
		state:     StateSpawned,
		cancelCh:  make(chan struct{}),
		exitCh:    make(chan ExitResult, 1),
	}

	go sa.monitorExit()

	logger.Info("spawnedagent: spawned (external)", "pid", pidOf(cfg.Cmd))
	return sa, nil
}

func pidOf(cmd *exec.Cmd) int {
	if cmd.Process == nil {
		return -1
	}
	return cmd.Process.Pid
}

// scanLinesInto is the plain-streaming equivalent of protocol.Peer's read
// loop, used for bindings with no bidirectional control (Cursor-style):
// every stdout line goes straight to passthrough for normalization.
func scanLinesInto(stdout io.Reader, passthrough chan<- protocol.PassthroughLine) {
	defer close(passthrough)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		passthrough <- protocol.PassthroughLine{Raw: line, Timestamp: time.Now()}
	}
}

func (sa *SpawnedAgent) drainPassthrough(passthrough <-chan protocol.PassthroughLine, normalize NormalizeFunc) {
	for line := range passthrough {
		if normalize == nil {
			continue
		}
		events := normalize(line.Raw, line.Timestamp, sa.agentType)
		for _, ev := range events {
			sa.logStore.Append(ev)
		}
	}
}

func (sa *SpawnedAgent) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		if strings.Contains(text, "Authentication required") {
			sa.logStore.Append(eventlog.NewErrorEvent(sa.agentType, eventlog.ErrorKindSetupRequired, text))
			continue
		}
		sa.logStore.Append(eventlog.NormalizedEvent{
			Type:      eventlog.EntrySystem,
			Content:   text,
			AgentType: sa.agentType,
		})
	}
}

func (sa *SpawnedAgent) monitorExit() {
	err := sa.cmd.Wait()

	sa.stateMu.Lock()
	interrupted := sa.state == StateInterrupting
	sa.stateMu.Unlock()

	result := ExitResult{KillReason: sa.killReason}
	switch {
	case interrupted:
		result.Reason = ExitInterrupted
		sa.setState(StateCancelled)
	case err == nil:
		result.Reason = ExitSuccess
		result.ExitCode = 0
		sa.setState(StateCompleted)
	default:
		result.Reason = ExitFailure
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		sa.setState(StateFailed)
	}

	sa.logger.Info("spawnedagent: exited", "reason", result.Reason, "exit_code", result.ExitCode)
	sa.exitOnce.Do(func() { sa.exitCh <- result })
}

func (sa *SpawnedAgent) setState(s State) {
	sa.stateMu.Lock()
	sa.state = s
	sa.stateMu.Unlock()
}

// State returns the current lifecycle stage.
func (sa *SpawnedAgent) State() State {
	sa.stateMu.Lock()
	defer sa.stateMu.Unlock()
	return sa.state
}

// LogStore returns the session's shared event store.
func (sa *SpawnedAgent) LogStore() *eventlog.Store { return sa.logStore }

// SendUserMessage forwards text to the child's stdin via its
// protocol.Peer. Returns ErrUnsupported for bindings with no Peer
// (one-shot streaming bindings write the prompt once at spawn time
// instead).
func (sa *SpawnedAgent) SendUserMessage(text string) error {
	if sa.peer == nil {
		return agentcore.ErrUnsupported
	}
	return sa.peer.SendUserMessage(text)
}

// Initialize sends the initialize control request carrying hooks, for
// bindings with BidirectionalControl. Returns ErrUnsupported otherwise.
func (sa *SpawnedAgent) Initialize(ctx context.Context, hooks any) error {
	if sa.peer == nil {
		return agentcore.ErrUnsupported
	}
	return sa.peer.Initialize(ctx, hooks)
}

// SetPermissionMode sends a set_permission_mode control request, for
// bindings with BidirectionalControl. Returns ErrUnsupported otherwise.
func (sa *SpawnedAgent) SetPermissionMode(ctx context.Context, mode protocol.PermissionMode) error {
	if sa.peer == nil {
		return agentcore.ErrUnsupported
	}
	return sa.peer.SetPermissionMode(ctx, mode)
}

// Wait blocks until the child has exited and been reaped.
func (sa *SpawnedAgent) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case result := <-sa.exitCh:
		sa.exitCh <- result // allow a second Wait call to observe the same result
		return result, nil
	case <-ctx.Done():
		return ExitResult{}, ctx.Err()
	}
}

// Kill runs the interrupt cascade: a cooperative interrupt (routed
// through the Peer for bidirectional bindings), then, after the soft
// grace period, a process-group signal escalation ending in an
// unconditional kill. Each stage is skipped if the child has already
// been reaped. Kill returns immediately and the cascade runs in the
// background — callers wanting to observe the final state should call
// Wait afterward.
func (sa *SpawnedAgent) Kill(ctx context.Context, reason string) {
	sa.interruptOnce.Do(func() {
		sa.setState(StateInterrupting)
		sa.killReason = reason
		close(sa.cancelCh)
	})

	go sa.cascade(ctx)
}

func (sa *SpawnedAgent) cascade(ctx context.Context) {
	if sa.waitReapedOrTimeout(sa.options.InterruptSoftGrace) {
		return
	}

	if err := procgroup.Signal(sa.cmd, procgroup.SignalInterrupt); err != nil {
		sa.logger.Warn("spawnedagent: soft interrupt signal failed", "error", err)
	}
	if sa.waitReapedOrTimeout(sa.options.InterruptSoftGrace) {
		return
	}

	if err := procgroup.Signal(sa.cmd, procgroup.SignalTerminate); err != nil {
		sa.logger.Warn("spawnedagent: terminate signal failed", "error", err)
	}
	if sa.waitReapedOrTimeout(sa.options.InterruptTermGrace) {
		return
	}

	if err := procgroup.Signal(sa.cmd, procgroup.SignalKill); err != nil {
		sa.logger.Warn("spawnedagent: kill signal failed", "error", err)
	}
}

// waitReapedOrTimeout waits up to d for the child to be reaped. Returns
// true if it reaped within d.
func (sa *SpawnedAgent) waitReapedOrTimeout(d time.Duration) bool {
	select {
	case result := <-sa.exitCh:
		sa.exitCh <- result
		return true
	case <-time.After(d):
		return false
	}
}

// String helps diagnostic logging identify a SpawnedAgent without
// leaking its full Config.
func (sa *SpawnedAgent) String() string {
	return fmt.Sprintf("SpawnedAgent{session=%s agent=%s state=%s}", sa.sessionID, sa.agentType, sa.State())
}
