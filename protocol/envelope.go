// Package protocol implements the ProtocolPeer (C4): a bidirectional
// newline-delimited-JSON peer over a child's stdio that hijacks stdin and
// stdout to inject permission decisions mid-execution.
//
// Grounded on the reference service's internal/acp/transport.go (tagged
// union discrimination), internal/acp/gateway.go (control-request dispatch
// and write-mutex serialization), and the pending-request/read-loop
// dispatch pattern in other_examples' claude-manager.go.go.
package protocol

import (
	"context"
	"encoding/json"
)

// Behavior is the outcome of a control_response: allow or deny.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
)

// PermissionMode is one of the four Claude-style permission modes.
type PermissionMode string

const (
	ModeDefault          PermissionMode = "default"
	ModeAcceptEdits      PermissionMode = "acceptEdits"
	ModePlan             PermissionMode = "plan"
	ModeBypassPermissions PermissionMode = "bypassPermissions"
)

// PermissionUpdate is one entry of an allow outcome's updatedPermissions
// list; SetMode, when non-empty, mutates the session-wide permission mode
// (the ExitPlanMode -> BypassPermissions hinge described in SPEC_FULL.md §4.3).
type PermissionUpdate struct {
	SetMode PermissionMode `json:"setMode,omitempty"`
}

// Outcome is the decision a RequestHandler returns for a control_request,
// and the shape written back as a control_response's "response" field.
type Outcome struct {
	Behavior           Behavior           `json:"behavior"`
	UpdatedInput       json.RawMessage    `json:"updatedInput,omitempty"`
	UpdatedPermissions []PermissionUpdate `json:"updatedPermissions,omitempty"`
	Message            string             `json:"message,omitempty"`
	// Interrupt, when true on a deny outcome, asks the child to also
	// interrupt its own generation.
	Interrupt bool `json:"interrupt,omitempty"`
}

// Allow builds an allow Outcome carrying the input unchanged.
func Allow() Outcome { return Outcome{Behavior: BehaviorAllow} }

// AllowWithModeChange builds an allow Outcome that also transitions the
// session permission mode, e.g. for the ExitPlanMode -> BypassPermissions hinge.
func AllowWithModeChange(mode PermissionMode) Outcome {
	return Outcome{Behavior: BehaviorAllow, UpdatedPermissions: []PermissionUpdate{{SetMode: mode}}}
}

// Deny builds a deny Outcome with a human-readable reason.
func Deny(reason string, interrupt bool) Outcome {
	return Outcome{Behavior: BehaviorDeny, Message: reason, Interrupt: interrupt}
}

// wireMessage is the on-the-wire shape for every line exchanged over the
// child's stdio: a tagged union discriminated by Type (and, for control
// messages, Subtype). Fields not relevant to a given Type/Subtype are
// simply omitted by the sender and ignored by the receiver.
type wireMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	// initialize
	Hooks json.RawMessage `json:"hooks,omitempty"`
	// set_permission_mode
	Mode PermissionMode `json:"mode,omitempty"`

	// plain user-turn passthrough
	Role    string `json:"role,omitempty"`
	Content any    `json:"content,omitempty"`

	// can_use_tool
	ToolName              string          `json:"tool_name,omitempty"`
	Input                 json.RawMessage `json:"input,omitempty"`
	PermissionSuggestions json.RawMessage `json:"permission_suggestions,omitempty"`
	ToolUseID             string          `json:"tool_use_id,omitempty"`

	// hook_callback
	CallbackID string `json:"callback_id,omitempty"`

	// control_response
	Response *Outcome `json:"response,omitempty"`
}

// IncomingRequest is the normalized view of a child-initiated
// control_request handed to a RequestHandler.
type IncomingRequest struct {
	RequestID  string
	Subtype    string // "can_use_tool" or "hook_callback"
	ToolName   string
	Input      json.RawMessage
	ToolUseID  string
	CallbackID string
}

// RequestHandler resolves a child-initiated control_request into an
// Outcome. agents/claude routes can_use_tool and hook_callback requests
// to an approval.Service; see it for the concrete wiring. The read loop
// never blocks on a single slow handler: each
// handler invocation runs on its own goroutine.
type RequestHandler func(ctx context.Context, req IncomingRequest) Outcome
