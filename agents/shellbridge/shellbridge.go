// Package shellbridge implements an illustrative AgentExecutor binding
// (C10-shaped, but outside the claude/cursor pair SPEC_FULL.md names
// directly) for agent CLIs that refuse to emit well-formed structured
// output unless they believe they own a terminal: it declares the
// CapabilityInteractiveTTY flag and starts its child under a pty via
// creack/pty instead of plain pipes, demonstrating the shape SPEC_FULL.md
// §1.2 calls for so the pty dependency is exercised by a real code path
// rather than left wired to nothing.
//
// Grounded on the reference service's internal/pty/manager.go and
// internal/pty/session.go (pty.StartWithSize usage, master-file read
// loop), adapted from an interactively-attached terminal session to a
// one-shot agent execution whose pty output is normalized into
// eventlog.NormalizedEvents exactly like any other binding's stdout.
package shellbridge

import (
	"context"
	"os/exec"

	"github.com/creack/pty"

	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/executor"
	"github.com/workspace/agentcore/spawnedagent"
)

// AgentTypeTag is the stable identifier this binding registers under.
const AgentTypeTag = "shellbridge"

// DefaultRows/DefaultCols size the pty when Options leaves them zero,
// matching internal/pty/session.go's fallback size.
const (
	DefaultRows = 24
	DefaultCols = 80
)

// Options is the shellbridge-specific blob carried on AgentConfig.Options.
type Options struct {
	// Command is the CLI to invoke (and its fixed leading args, if any);
	// there is no PATH-candidate list here since this binding wraps
	// whatever interactive command the host configures, not one fixed
	// product.
	Command []string
	Rows    int
	Cols    int
}

// Executor is the shellbridge AgentExecutor.
type Executor struct {
	opts agentcore.Options
}

// New builds a shellbridge.Executor, suitable as an executor.Constructor.
func New(opts agentcore.Options) executor.AgentExecutor {
	return &Executor{opts: opts}
}

func (e *Executor) AgentType() string { return AgentTypeTag }

func (e *Executor) Capabilities() agentcore.CapabilitySet {
	return agentcore.NewCapabilitySet(
		agentcore.CapabilityWorkspaceIsolation,
		agentcore.CapabilityInteractiveTTY,
	)
}

func (e *Executor) CheckAvailability(ctx context.Context) agentcore.AvailabilityStatus {
	return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityAvailable}
}

func shellOptions(cfg agentcore.AgentConfig) Options {
	o, _ := cfg.Options.(Options)
	if o.Rows <= 0 {
		o.Rows = DefaultRows
	}
	if o.Cols <= 0 {
		o.Cols = DefaultCols
	}
	return o
}

// Spawn starts the configured command under a pty and wires its combined
// output into store.
func (e *Executor) Spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	opts := shellOptions(cfg)
	if len(opts.Command) == 0 {
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "no command configured"}
	}

	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = envFromConfig(cfg)

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(opts.Rows), Cols: uint16(opts.Cols)})
	if err != nil {
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "start pty", Cause: err}
	}

	sa, err := spawnedagent.SpawnPTY(ctx, spawnedagent.PTYConfig{
		AgentType:     AgentTypeTag,
		Cmd:           cmd,
		Master:        master,
		LogStore:      store,
		Normalize:     NormalizeLogs,
		InitialPrompt: prompt,
		Options:       e.opts,
	})
	if err != nil {
		master.Close()
		return nil, err
	}
	return sa, nil
}

// SpawnFollowUp is unsupported: an interactive pty-backed shell has no
// session-id concept to resume, only a live process a host could instead
// keep around and re-prompt directly.
func (e *Executor) SpawnFollowUp(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return nil, agentcore.ErrUnsupported
}

func envFromConfig(cfg agentcore.AgentConfig) []string {
	if len(cfg.Env) == 0 {
		return nil
	}
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	return env
}
