// Package claude implements the AgentExecutor binding (part of C10) for
// the Claude Code CLI: bidirectional control over stream-json stdio, the
// PreToolUse/ExitPlanMode hook policy from SPEC_FULL.md §6, and the
// ExitPlanMode -> BypassPermissions tool-approval hinge from §4.4.
//
// Grounded on the reference service's internal/acp/process.go for argv
// and executable resolution, and internal/acp/gateway.go for the
// initialize/set_permission_mode/send_user_message call sequence at spawn
// time, generalized from an ACP-native agent to the plain Claude Code
// stream-json dialect.
package claude

import (
	"context"
	"os/exec"

	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/approval"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/executor"
	"github.com/workspace/agentcore/protocol"
	"github.com/workspace/agentcore/spawnedagent"
)

// AgentTypeTag is the stable identifier this binding registers under.
const AgentTypeTag = "claude"

// candidateExecutables is the ordered list of PATH names tried when
// Options.ExecutablePath is empty.
var candidateExecutables = []string{"claude"}

// Options is the claude-specific blob carried on AgentConfig.Options.
type Options struct {
	// ExecutablePath overrides PATH resolution with an explicit binary.
	ExecutablePath string
	// Mode is the initial permission mode for the session.
	Mode protocol.PermissionMode
	// Approvals resolves can_use_tool control requests. AutoApprove if nil.
	Approvals approval.Service
	// McpConfigPath points at the per-user MCP configuration dotfile, if any.
	McpConfigPath string
	// ExtraArgs are appended verbatim after the binding's own flags.
	ExtraArgs []string
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = protocol.ModeDefault
	}
	if o.Approvals == nil {
		o.Approvals = approval.AutoApprove
	}
	return o
}

// readOnlyTools are exempt from the PreToolUse hook under Approvals mode
// per SPEC_FULL.md §6. Order is significant: it becomes the literal order
// of names inside the negated matcher string sent on the wire.
var readOnlyTools = []string{
	"Glob", "Grep", "NotebookRead", "Read", "Task", "TodoWrite",
}

// Executor is the claude AgentExecutor.
type Executor struct {
	opts agentcore.Options
}

// New builds a claude.Executor, suitable as an executor.Constructor.
func New(opts agentcore.Options) executor.AgentExecutor {
	return &Executor{opts: opts}
}

func (e *Executor) AgentType() string { return AgentTypeTag }

func (e *Executor) Capabilities() agentcore.CapabilitySet {
	return agentcore.NewCapabilitySet(
		agentcore.CapabilitySessionContinuation,
		agentcore.CapabilityBidirectionalControl,
		agentcore.CapabilityWorkspaceIsolation,
	)
}

func (e *Executor) CheckAvailability(ctx context.Context) agentcore.AvailabilityStatus {
	opts := claudeOptions(agentcore.AgentConfig{})
	path, err := executor.ResolveExecutable(opts.ExecutablePath, candidateExecutables)
	if err != nil {
		return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityNotFound, Reason: "claude executable not found on PATH"}
	}
	if _, err := exec.LookPath(path); err != nil && opts.ExecutablePath == "" {
		return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityNotFound, Reason: err.Error()}
	}
	return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityAvailable}
}

func claudeOptions(cfg agentcore.AgentConfig) Options {
	if o, ok := cfg.Options.(Options); ok {
		return o.withDefaults()
	}
	return Options{}.withDefaults()
}

// Spawn launches a fresh claude execution per SPEC_FULL.md §4.4's spawning
// contract.
func (e *Executor) Spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return e.spawn(ctx, cfg, prompt, "", store)
}

// SpawnFollowUp resumes priorSessionID via --fork-session --resume.
func (e *Executor) SpawnFollowUp(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return e.spawn(ctx, cfg, prompt, priorSessionID, store)
}

func (e *Executor) spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	opts := claudeOptions(cfg)

	path, err := executor.ResolveExecutable(opts.ExecutablePath, candidateExecutables)
	if err != nil {
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "resolve executable", Cause: err}
	}

	args := buildArgs(opts, priorSessionID)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = envFromConfig(cfg)

	handler := e.requestHandler(opts)

	sa, err := spawnedagent.Spawn(ctx, spawnedagent.Config{
		AgentType: AgentTypeTag,
		Cmd:       cmd,
		LogStore:  store,
		Normalize: NormalizeLogs,
		Handler:   handler,
		Options:   e.opts,
	})
	if err != nil {
		return nil, err
	}

	if err := sa.Initialize(ctx, initialHooks(opts.Mode)); err != nil {
		sa.Kill(ctx, "initialize handshake failed")
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "initialize", Cause: err}
	}
	if err := sa.SetPermissionMode(ctx, opts.Mode); err != nil {
		sa.Kill(ctx, "set_permission_mode handshake failed")
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "set_permission_mode", Cause: err}
	}
	if err := sa.SendUserMessage(prompt); err != nil {
		sa.Kill(ctx, "send_user_message handshake failed")
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "send_user_message", Cause: err}
	}
	return sa, nil
}

func buildArgs(opts Options, priorSessionID string) []string {
	args := []string{
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--include-partial-messages",
	}
	if priorSessionID != "" {
		args = append(args, "--fork-session", "--resume", priorSessionID)
	}
	if opts.McpConfigPath != "" {
		args = append(args, "--mcp-config", opts.McpConfigPath)
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

// requestHandler adapts opts.Approvals into a protocol.RequestHandler,
// applying the ExitPlanMode -> BypassPermissions hinge from SPEC_FULL.md
// §4.3/§4.4.
func (e *Executor) requestHandler(opts Options) protocol.RequestHandler {
	base := approval.Handler("", AgentTypeTag, opts.Approvals)
	return func(ctx context.Context, req protocol.IncomingRequest) protocol.Outcome {
		if req.Subtype == "hook_callback" && req.CallbackID == "auto_approve" {
			return approval.AutoApprove.Decide(ctx, approval.FromIncoming("", AgentTypeTag, req))
		}
		if req.Subtype != "can_use_tool" {
			return base(ctx, req)
		}
		outcome := base(ctx, req)
		if req.ToolName == "ExitPlanMode" && outcome.Behavior == protocol.BehaviorAllow {
			outcome.UpdatedPermissions = append(outcome.UpdatedPermissions, protocol.PermissionUpdate{SetMode: protocol.ModeBypassPermissions})
		}
		return outcome
	}
}

// initialHooks builds the PreToolUse hook map per SPEC_FULL.md §6's
// policy table, varying by the session's starting permission mode.
func initialHooks(mode protocol.PermissionMode) any {
	switch mode {
	case protocol.ModePlan:
		return map[string]any{
			"PreToolUse": []map[string]any{
				{"matcher": "ExitPlanMode", "hooks": []map[string]string{{"callback_id": "tool_approval"}}},
				{"matcher": "!ExitPlanMode", "hooks": []map[string]string{{"callback_id": "auto_approve"}}},
			},
		}
	case protocol.ModeBypassPermissions:
		return map[string]any{}
	default:
		matcher := negatedToolSetMatcher(readOnlyTools)
		return map[string]any{
			"PreToolUse": []map[string]any{
				{"matcher": matcher, "hooks": []map[string]string{{"callback_id": "tool_approval"}}},
			},
		}
	}
}

func negatedToolSetMatcher(tools []string) string {
	matcher := "!("
	for i, n := range tools {
		if i > 0 {
			matcher += "|"
		}
		matcher += n
	}
	matcher += ")"
	return matcher
}
