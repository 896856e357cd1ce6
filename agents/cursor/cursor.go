// Package cursor implements the AgentExecutor binding (part of C10) for
// the Cursor Agent CLI: one-shot streaming stdio with no ProtocolPeer,
// per SPEC_FULL.md §4.4's Cursor binding specifics — approvals are
// resolved at spawn time by whether --force is present, not at runtime.
//
// Grounded on the reference service's internal/acp/process.go for
// argv/executable-resolution shape, adapted from a bidirectional
// ACP-native child to a write-once/close stdin child.
package cursor

import (
	"context"
	"os/exec"

	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/executor"
	"github.com/workspace/agentcore/spawnedagent"
)

// AgentTypeTag is the stable identifier this binding registers under.
const AgentTypeTag = "cursor"

var candidateExecutables = []string{"cursor-agent", "cursor"}

// Options is the cursor-specific blob carried on AgentConfig.Options.
type Options struct {
	// ExecutablePath overrides PATH resolution with an explicit binary.
	ExecutablePath string
	// Force, when true, passes --force so the CLI performs every edit/tool
	// call without a runtime approval round-trip (Cursor has none anyway).
	Force bool
	// Model selects --model <m>, if non-empty.
	Model string
	// ExtraArgs are appended verbatim after the binding's own flags.
	ExtraArgs []string
}

// Executor is the cursor AgentExecutor.
type Executor struct {
	opts agentcore.Options
}

// New builds a cursor.Executor, suitable as an executor.Constructor.
func New(opts agentcore.Options) executor.AgentExecutor {
	return &Executor{opts: opts}
}

func (e *Executor) AgentType() string { return AgentTypeTag }

func (e *Executor) Capabilities() agentcore.CapabilitySet {
	return agentcore.NewCapabilitySet(
		agentcore.CapabilitySessionContinuation,
		agentcore.CapabilityWorkspaceIsolation,
	)
}

func (e *Executor) CheckAvailability(ctx context.Context) agentcore.AvailabilityStatus {
	opts := cursorOptions(agentcore.AgentConfig{})
	if _, err := executor.ResolveExecutable(opts.ExecutablePath, candidateExecutables); err != nil {
		return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityNotFound, Reason: "cursor-agent executable not found on PATH"}
	}
	return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityAvailable}
}

func cursorOptions(cfg agentcore.AgentConfig) Options {
	if o, ok := cfg.Options.(Options); ok {
		return o
	}
	return Options{}
}

// Spawn launches a fresh cursor execution. The prompt is written to stdin
// once; stdin is then closed, since the binding has no bidirectional
// control channel.
func (e *Executor) Spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return e.spawn(ctx, cfg, prompt, "", store)
}

// SpawnFollowUp resumes priorSessionID via --resume.
func (e *Executor) SpawnFollowUp(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return e.spawn(ctx, cfg, prompt, priorSessionID, store)
}

func (e *Executor) spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	opts := cursorOptions(cfg)

	path, err := executor.ResolveExecutable(opts.ExecutablePath, candidateExecutables)
	if err != nil {
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "resolve executable", Cause: err}
	}

	args := buildArgs(opts, priorSessionID)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = envFromConfig(cfg)

	sa, err := spawnedagent.Spawn(ctx, spawnedagent.Config{
		AgentType:     AgentTypeTag,
		Cmd:           cmd,
		LogStore:      store,
		Normalize:     NormalizeLogs,
		Handler:       nil, // one-shot streaming: no ProtocolPeer
		InitialPrompt: prompt,
		Options:       e.opts,
	})
	if err != nil {
		return nil, err
	}
	return sa, nil
}

func buildArgs(opts Options, priorSessionID string) []string {
	args := []string{"--output-format", "stream-json"}
	if opts.Force {
		args = append(args, "--force")
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if priorSessionID != "" {
		args = append(args, "--resume", priorSessionID)
	}
	args = append(args, opts.ExtraArgs...)
	return args
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
