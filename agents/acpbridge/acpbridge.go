// Package acpbridge implements an AgentExecutor binding for agent CLIs that
// speak the Agent Client Protocol (ACP) natively over stdio JSON-RPC
// instead of a CLI-specific stream-json dialect. It wraps
// github.com/coder/acp-go-sdk's ClientSideConnection: Initialize, then
// either LoadSession (a follow-up, when the agent advertises the
// capability) or NewSession, then one blocking Prompt call per execution.
//
// Grounded on the reference service's internal/acp/gateway.go (the
// Initialize/NewSession/LoadSession/Prompt handshake sequence, and the
// getAgentCommandInfo candidate-binary table), adapted from a
// WebSocket-bridged, long-lived gateway session to a process-per-turn
// AgentExecutor: where the gateway keeps one subprocess alive across many
// Prompt calls forwarded from a browser, this binding starts a fresh
// subprocess per Spawn/SpawnFollowUp call and closes its stdin once Prompt
// returns, the same "one turn, one process" shape agents/claude and
// agents/cursor use, with priorSessionID threaded through LoadSession
// instead of a CLI --resume flag.
package acpbridge

import (
	"context"
	"io"
	"os/exec"
	"time"

	acpsdk "github.com/coder/acp-go-sdk"

	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/approval"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/executor"
	"github.com/workspace/agentcore/internal/procgroup"
	"github.com/workspace/agentcore/spawnedagent"
)

// AgentTypeTag is the stable identifier this binding registers under.
const AgentTypeTag = "acpbridge"

// candidateExecutables lists the ACP-native agent CLIs known to the
// reference service's getAgentCommandInfo table.
var candidateExecutables = []string{"claude-code-acp", "codex-acp", "gemini"}

// DefaultInitTimeout bounds the Initialize/NewSession/LoadSession
// handshake, matching the reference service's 30s initCtx.
const DefaultInitTimeout = 30 * time.Second

// Options is the acpbridge-specific blob carried on AgentConfig.Options.
type Options struct {
	// ExecutablePath overrides PATH resolution with an explicit binary.
	ExecutablePath string
	// ExtraArgs are appended verbatim after the binding's own flags, e.g.
	// "--experimental-acp" for the gemini candidate.
	ExtraArgs []string
	// InitTimeout overrides DefaultInitTimeout.
	InitTimeout time.Duration
	// Approval decides RequestPermission calls the agent makes mid-turn.
	// A nil Approval falls back to approval.AutoApprove.
	Approval approval.Service
}

// Executor is the acpbridge AgentExecutor.
type Executor struct {
	opts agentcore.Options
}

// New builds an acpbridge.Executor, suitable as an executor.Constructor.
func New(opts agentcore.Options) executor.AgentExecutor {
	return &Executor{opts: opts}
}

func (e *Executor) AgentType() string { return AgentTypeTag }

func (e *Executor) Capabilities() agentcore.CapabilitySet {
	return agentcore.NewCapabilitySet(
		agentcore.CapabilitySessionContinuation,
		agentcore.CapabilityWorkspaceIsolation,
		agentcore.CapabilityRequiresSetup,
	)
}

func (e *Executor) CheckAvailability(ctx context.Context) agentcore.AvailabilityStatus {
	opts := acpOptions(agentcore.AgentConfig{})
	if _, err := executor.ResolveExecutable(opts.ExecutablePath, candidateExecutables); err != nil {
		return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityNotFound, Reason: "no ACP-native agent binary found on PATH"}
	}
	return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityAvailable}
}

func acpOptions(cfg agentcore.AgentConfig) Options {
	if o, ok := cfg.Options.(Options); ok {
		return o
	}
	return Options{}
}

// Spawn launches a fresh ACP-native agent subprocess, performs the
// Initialize/NewSession handshake, and runs prompt to completion.
func (e *Executor) Spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return e.spawn(ctx, cfg, prompt, "", store)
}

// SpawnFollowUp resumes priorSessionID via LoadSession, falling back to a
// fresh NewSession if the agent doesn't advertise LoadSession support.
func (e *Executor) SpawnFollowUp(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return e.spawn(ctx, cfg, prompt, priorSessionID, store)
}

func (e *Executor) spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	opts := acpOptions(cfg)

	path, err := executor.ResolveExecutable(opts.ExecutablePath, candidateExecutables)
	if err != nil {
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "resolve executable", Cause: err}
	}

	cmd := exec.CommandContext(ctx, path, opts.ExtraArgs...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = envFromConfig(cfg)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "stdin pipe", Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "stdout pipe", Cause: err}
	}

	procgroup.Prepare(cmd)
	if err := cmd.Start(); err != nil {
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "start child process", Cause: err}
	}

	approvalSvc := opts.Approval
	if approvalSvc == nil {
		approvalSvc = approval.AutoApprove
	}

	// sessionID is empty until negotiateSession below assigns the real ACP
	// session id; Initialize itself never triggers SessionUpdate/
	// RequestPermission calls, so the client has nothing to label until then.
	client := newClient("", AgentTypeTag, store, approvalSvc)
	conn := acpsdk.NewClientSideConnection(client, stdin, stdout)

	initTimeout := opts.InitTimeout
	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}
	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	initResp, err := conn.Initialize(initCtx, acpsdk.InitializeRequest{
		ProtocolVersion: acpsdk.ProtocolVersionNumber,
		ClientCapabilities: acpsdk.ClientCapabilities{
			Fs: acpsdk.FileSystemCapability{ReadTextFile: true, WriteTextFile: true},
		},
	})
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "acp initialize", Cause: err}
	}

	acpSessionID, err := negotiateSession(initCtx, conn, cfg.WorkDir, priorSessionID, initResp.AgentCapabilities.LoadSession)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, &agentcore.SpawnError{AgentType: AgentTypeTag, Reason: "acp session negotiation", Cause: err}
	}
	client.setSessionID(string(acpSessionID))

	sa, err := spawnedagent.SpawnExternal(ctx, spawnedagent.ExternalConfig{
		SessionID: string(acpSessionID),
		AgentType: AgentTypeTag,
		Cmd:       cmd,
		LogStore:  store,
		Options:   e.opts,
	})
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	go runPrompt(ctx, conn, acpSessionID, stdin, store, AgentTypeTag, prompt)

	return sa, nil
}

// negotiateSession attempts LoadSession when a priorSessionID is given and
// the agent advertises support, falling back to NewSession otherwise —
// mirroring the reference gateway's LoadSession-then-NewSession fallback.
func negotiateSession(ctx context.Context, conn *acpsdk.ClientSideConnection, cwd, priorSessionID string, supportsLoadSession bool) (acpsdk.SessionId, error) {
	if priorSessionID != "" && supportsLoadSession {
		_, err := conn.LoadSession(ctx, acpsdk.LoadSessionRequest{
			SessionId:  acpsdk.SessionId(priorSessionID),
			Cwd:        cwd,
			McpServers: []acpsdk.McpServer{},
		})
		if err == nil {
			return acpsdk.SessionId(priorSessionID), nil
		}
		// LoadSession failed: fall through to NewSession, same as the
		// reference gateway.
	}

	resp, err := conn.NewSession(ctx, acpsdk.NewSessionRequest{
		Cwd:        cwd,
		McpServers: []acpsdk.McpServer{},
	})
	if err != nil {
		return "", err
	}
	return resp.SessionId, nil
}

// runPrompt sends the turn's prompt and blocks until the agent reports
// completion, then closes stdin so the agent's JSON-RPC read loop sees EOF
// and exits — the ACP equivalent of agents/cursor's write-once/close-stdin
// one-shot shape, since an ACP-native agent process otherwise stays alive
// indefinitely waiting for further Prompt calls.
func runPrompt(ctx context.Context, conn *acpsdk.ClientSideConnection, sessionID acpsdk.SessionId, stdin io.Closer, store *eventlog.Store, agentType, prompt string) {
	defer stdin.Close()

	if prompt == "" {
		return
	}

	resp, err := conn.Prompt(ctx, acpsdk.PromptRequest{
		SessionId: sessionID,
		Prompt:    []acpsdk.ContentBlock{acpsdk.TextBlock(prompt)},
	})
	if err != nil {
		store.Append(eventlog.NewErrorEvent(agentType, eventlog.ErrorKindProtocol, "acp prompt failed: "+err.Error()))
		return
	}
	store.Append(eventlog.NewSystemEvent(agentType, "acp prompt completed: stop_reason="+string(resp.StopReason)))
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
