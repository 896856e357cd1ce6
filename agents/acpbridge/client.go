package acpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	acpsdk "github.com/coder/acp-go-sdk"

	"github.com/workspace/agentcore/approval"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/protocol"
)

// client implements acpsdk.Client: the callback surface an ACP-native
// agent subprocess invokes on its host over the same JSON-RPC connection.
// Grounded on the reference service's gatewayClient in
// internal/acp/gateway.go, whose live method set (everything except the
// commented-out ListTextFiles/EditTextFile/CreateDirectory/MoveResource/
// terminal-input/resize/close block marked "not yet available in the
// current ACP SDK version") is reproduced here exactly, since that is the
// subset actually known to compile against the acp-go-sdk version pinned
// in go.mod. SessionUpdate forwards into the session's eventlog.Store
// instead of a websocket; RequestPermission routes through an
// approval.Service instead of auto-approving unconditionally.
//
// File and terminal operations are declined: this binding gives an
// ACP-native agent no sandboxed filesystem or terminal surface of its own
// to call back into (unlike the reference gateway, which proxied both
// into the devcontainer via docker exec), so every such callback reports
// "not supported" the same way the reference gateway's terminal methods
// already did.
type client struct {
	agentType string
	logStore  *eventlog.Store
	approval  approval.Service

	mu        sync.Mutex
	sessionID string
}

func newClient(sessionID, agentType string, logStore *eventlog.Store, svc approval.Service) *client {
	return &client{agentType: agentType, logStore: logStore, approval: svc, sessionID: sessionID}
}

func (c *client) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *client) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SessionUpdate receives every session/update notification the agent
// emits while a Prompt call is in flight (assistant text, tool calls,
// plan updates, ...) and normalizes it into the session's event taxonomy.
// The update's full shape varies by kind and isn't decoded field-by-field
// here, the same way the reference gateway forwards it to the browser
// without inspecting it: the raw notification becomes Content, and the
// decoded map becomes Metadata for a consumer that wants structure.
func (c *client) SessionUpdate(_ context.Context, params acpsdk.SessionNotification) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("acpbridge: marshal session update: %w", err)
	}

	var meta map[string]any
	_ = json.Unmarshal(raw, &meta) // best-effort; Content still carries the raw form on failure

	c.logStore.Append(eventlog.NormalizedEvent{
		Type:      eventlog.EntryOutput,
		Content:   string(raw),
		Metadata:  meta,
		AgentType: c.agentType,
	})
	return nil
}

// RequestPermission routes a tool-use permission request through the
// bound approval.Service, selecting the first offered option on allow and
// cancelling on deny — the same option-selection shape the reference
// gateway uses, but decided by a real Service instead of an unconditional
// auto-approve.
func (c *client) RequestPermission(ctx context.Context, params acpsdk.RequestPermissionRequest) (acpsdk.RequestPermissionResponse, error) {
	input, err := json.Marshal(params)
	if err != nil {
		return acpsdk.RequestPermissionResponse{}, fmt.Errorf("acpbridge: marshal permission request: %w", err)
	}

	outcome := c.approval.Decide(ctx, approval.Request{
		SessionID: c.currentSessionID(),
		AgentType: c.agentType,
		Subtype:   "can_use_tool",
		Input:     input,
	})

	if outcome.Behavior == protocol.BehaviorAllow && len(params.Options) > 0 {
		return acpsdk.RequestPermissionResponse{
			Outcome: acpsdk.NewRequestPermissionOutcomeSelected(params.Options[0].OptionId),
		}, nil
	}
	return acpsdk.RequestPermissionResponse{
		Outcome: acpsdk.NewRequestPermissionOutcomeCancelled(),
	}, nil
}

func (c *client) ReadTextFile(_ context.Context, _ acpsdk.ReadTextFileRequest) (acpsdk.ReadTextFileResponse, error) {
	return acpsdk.ReadTextFileResponse{}, fmt.Errorf("acpbridge: ReadTextFile not supported")
}

func (c *client) WriteTextFile(_ context.Context, _ acpsdk.WriteTextFileRequest) (acpsdk.WriteTextFileResponse, error) {
	return acpsdk.WriteTextFileResponse{}, fmt.Errorf("acpbridge: WriteTextFile not supported")
}

func (c *client) CreateTerminal(_ context.Context, _ acpsdk.CreateTerminalRequest) (acpsdk.CreateTerminalResponse, error) {
	return acpsdk.CreateTerminalResponse{}, fmt.Errorf("acpbridge: CreateTerminal not supported")
}

func (c *client) KillTerminalCommand(_ context.Context, _ acpsdk.KillTerminalCommandRequest) (acpsdk.KillTerminalCommandResponse, error) {
	return acpsdk.KillTerminalCommandResponse{}, fmt.Errorf("acpbridge: KillTerminalCommand not supported")
}

func (c *client) TerminalOutput(_ context.Context, _ acpsdk.TerminalOutputRequest) (acpsdk.TerminalOutputResponse, error) {
	return acpsdk.TerminalOutputResponse{}, fmt.Errorf("acpbridge: TerminalOutput not supported")
}

func (c *client) ReleaseTerminal(_ context.Context, _ acpsdk.ReleaseTerminalRequest) (acpsdk.ReleaseTerminalResponse, error) {
	return acpsdk.ReleaseTerminalResponse{}, fmt.Errorf("acpbridge: ReleaseTerminal not supported")
}

func (c *client) WaitForTerminalExit(_ context.Context, _ acpsdk.WaitForTerminalExitRequest) (acpsdk.WaitForTerminalExitResponse, error) {
	return acpsdk.WaitForTerminalExitResponse{}, fmt.Errorf("acpbridge: WaitForTerminalExit not supported")
}
