// Package approval defines the ApprovalService contract (C5): the
// host-supplied decision point a ProtocolPeer routes child-initiated
// can_use_tool and hook_callback requests through.
package approval

import (
	"context"
	"encoding/json"

	"github.com/workspace/agentcore/protocol"
)

// Request is the normalized view of a child-initiated control_request
// handed to a Service, enriched with the session/agent context a bare
// protocol.IncomingRequest does not carry.
type Request struct {
	SessionID  string
	AgentType  string
	Subtype    string // "can_use_tool" or "hook_callback"
	ToolName   string
	Input      json.RawMessage
	ToolUseID  string
	CallbackID string
}

// FromIncoming builds a Request from a protocol.IncomingRequest plus the
// session context a binding already has in hand.
func FromIncoming(sessionID, agentType string, req protocol.IncomingRequest) Request {
	return Request{
		SessionID:  sessionID,
		AgentType:  agentType,
		Subtype:    req.Subtype,
		ToolName:   req.ToolName,
		Input:      req.Input,
		ToolUseID:  req.ToolUseID,
		CallbackID: req.CallbackID,
	}
}

// Service turns a tool-use or hook-callback request into an allow/deny
// decision. Implementations may be called concurrently for distinct
// tool_use ids and must not assume serialized invocation; callers needing
// ordered decisions must serialize inside their own Service.
type Service interface {
	Decide(ctx context.Context, req Request) protocol.Outcome
}

// ServiceFunc adapts a plain function to a Service.
type ServiceFunc func(ctx context.Context, req Request) protocol.Outcome

func (f ServiceFunc) Decide(ctx context.Context, req Request) protocol.Outcome {
	return f(ctx, req)
}

// AutoApprove is a Service that always allows, used for the "everything
// except ExitPlanMode" arm of the Claude plan-mode hook policy and as the
// default Service of the claude and acpbridge bindings when none is given.
var AutoApprove Service = ServiceFunc(func(ctx context.Context, req Request) protocol.Outcome {
	return protocol.Allow()
})

// Handler adapts a Service bound to one session into a
// protocol.RequestHandler a Peer can dispatch into directly.
func Handler(sessionID, agentType string, svc Service) protocol.RequestHandler {
	return func(ctx context.Context, req protocol.IncomingRequest) protocol.Outcome {
		return svc.Decide(ctx, FromIncoming(sessionID, agentType, req))
	}
}
