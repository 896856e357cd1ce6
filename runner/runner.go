// Package runner implements the AgentRunner (C9): a convenience wrapper
// tying SessionManager, an executor.Registry, and a WorkspaceManager
// together so a host can call one method — spawn, wait for completion,
// and have the terminal Execution/LogStore state already updated —
// instead of driving the lower-level components by hand.
//
// Grounded on the reference service's internal/acp/gateway.go Start/Run
// sequence (resolve workspace, spawn child, wire protocol, wait),
// generalized across any registered binding instead of one hardcoded ACP
// agent.
package runner

import (
	"context"
	"time"

	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/executor"
	"github.com/workspace/agentcore/session"
	"github.com/workspace/agentcore/spawnedagent"
	"github.com/workspace/agentcore/workspace"
)

// Runner bundles the registry, session manager, and workspace manager a
// host needs to run an agent to completion in one call.
type Runner struct {
	Registry   *executor.Registry
	Sessions   *session.Manager
	Workspaces *workspace.Manager
	Options    agentcore.Options
}

// New constructs a Runner over the given collaborators. workspaces may be
// nil if no binding this Runner drives ever uses workspace isolation.
func New(registry *executor.Registry, sessions *session.Manager, workspaces *workspace.Manager, opts agentcore.Options) *Runner {
	return &Runner{Registry: registry, Sessions: sessions, Workspaces: workspaces, Options: opts.WithDefaults()}
}

// Result is what Run resolves with once the execution reaches a terminal
// state.
type Result struct {
	SessionID   string
	ExecutionID string
	Exit        spawnedagent.ExitResult
	LogStore    *eventlog.Store
}

// Run spawns agentType in sessionID with prompt and cfg, then blocks
// until the child reaches a terminal state (or ctx is cancelled, or
// cfg.Timeout elapses), updating the session's Execution record to
// match. A zero cfg.Timeout means no deadline beyond ctx.
func (r *Runner) Run(ctx context.Context, sessionID, agentType, prompt string, cfg agentcore.AgentConfig) (Result, error) {
	return r.run(ctx, sessionID, agentType, prompt, "", cfg)
}

// RunFollowUp resumes priorSessionID's conversation within sessionID
// (normally priorSessionID == sessionID; distinct callers may fork).
// Workspace reuse follows SPEC_FULL.md §9's Open Question #1 decision:
// the prior execution's WorkspacePath is reused when the session has
// one, rather than creating a fresh worktree per conversation turn.
func (r *Runner) RunFollowUp(ctx context.Context, sessionID, agentType, prompt, priorSessionID string, cfg agentcore.AgentConfig) (Result, error) {
	return r.run(ctx, sessionID, agentType, prompt, priorSessionID, cfg)
}

func (r *Runner) run(ctx context.Context, sessionID, agentType, prompt, priorSessionID string, cfg agentcore.AgentConfig) (Result, error) {
	exec, err := r.Registry.New(agentType, r.Options)
	if err != nil {
		return Result{}, err
	}

	_, store, err := r.Sessions.Get(sessionID)
	if err != nil {
		return Result{}, err
	}

	wp, err := r.resolveWorkspace(ctx, sessionID, priorSessionID, cfg)
	if err != nil {
		return Result{}, err
	}
	if wp != nil {
		cfg.WorkDir = wp.Path
	}

	execRecord, err := r.Sessions.StartExecution(sessionID, prompt, wp)
	if err != nil {
		return Result{}, err
	}

	var sa *spawnedagent.SpawnedAgent
	if priorSessionID != "" {
		sa, err = exec.SpawnFollowUp(ctx, cfg, prompt, priorSessionID, store)
	} else {
		sa, err = exec.Spawn(ctx, cfg, prompt, store)
	}
	if err != nil {
		code := -1
		_ = r.Sessions.CompleteExecution(sessionID, execRecord.ID, agentcore.ExecutionFailed, &code)
		return Result{}, err
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	exitResult, waitErr := sa.Wait(waitCtx)
	if waitErr != nil {
		sa.Kill(ctx, "timeout")
		exitResult, waitErr = sa.Wait(context.Background())
		if waitErr != nil {
			return Result{}, waitErr
		}
	}

	status, code := classify(exitResult)
	_ = r.Sessions.CompleteExecution(sessionID, execRecord.ID, status, &code)

	return Result{
		SessionID:   sessionID,
		ExecutionID: execRecord.ID,
		Exit:        exitResult,
		LogStore:    store,
	}, nil
}

func (r *Runner) resolveWorkspace(ctx context.Context, sessionID, priorSessionID string, cfg agentcore.AgentConfig) (*agentcore.WorkspacePath, error) {
	if priorSessionID != "" {
		if wp, ok := r.Sessions.LastWorkspace(priorSessionID); ok {
			return wp, nil
		}
	}
	if cfg.Workspace == nil || r.Workspaces == nil {
		if cfg.Workspace == nil {
			return nil, nil
		}
		return nil, &agentcore.WorkspaceError{Kind: agentcore.WorkspaceErrorInvalidPath, Detail: "AgentConfig.Workspace set but Runner has no WorkspaceManager"}
	}
	return r.Workspaces.Create(ctx, sessionID, cfg.WorkDir, cfg.Workspace)
}

func classify(result spawnedagent.ExitResult) (agentcore.ExecutionStatus, int) {
	switch result.Reason {
	case spawnedagent.ExitSuccess:
		return agentcore.ExecutionCompleted, 0
	case spawnedagent.ExitInterrupted:
		return agentcore.ExecutionCancelled, result.ExitCode
	default:
		return agentcore.ExecutionFailed, result.ExitCode
	}
}

// TimeoutArmed wraps ctx with cfg.Timeout if set, otherwise returns ctx
// unchanged and a no-op cancel. Exposed for hosts that want to arm the
// same timeout semantics Run uses without calling Run itself.
func TimeoutArmed(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
