// Package eventlog holds the canonical NormalizedEvent taxonomy (C2) and the
// in-memory append-only LogStore (C1) that every executor binding writes
// into and every consumer subscribes to.
package eventlog

import "time"

// EntryType tags the shape of a NormalizedEvent. Exactly one of the
// type-specific fields on NormalizedEvent is meaningful for a given tag;
// which one is documented per constant below.
type EntryType string

const (
	// EntryInput is a user-authored prompt turn. Content carries the prompt text.
	EntryInput EntryType = "input"
	// EntryOutput is agent-authored visible output. Content carries the text.
	EntryOutput EntryType = "output"
	// EntryThinking is agent-authored reasoning not meant as final output.
	EntryThinking EntryType = "thinking"
	// EntryAction is a tool invocation. Tool/Arguments/Result are populated.
	EntryAction EntryType = "action"
	// EntrySystem is a library- or binding-authored informational event
	// (lifecycle transitions, dropped-subscriber markers, stderr noise).
	EntrySystem EntryType = "system"
	// EntryError reports a failure. Its ErrorKind field classifies it.
	EntryError EntryType = "error"
	// EntryProgress carries a percent-complete/message pair for long tool runs.
	EntryProgress EntryType = "progress"
)

// ErrorKind is the type of an EntryError event's ErrorKind field. It is a plain
// string rather than a closed enum because bindings may introduce their own
// kinds (e.g. a binding-specific setup failure) beyond the ones the core
// itself assigns.
type ErrorKind string

const (
	ErrorKindParse        ErrorKind = "parse"
	ErrorKindSetupRequired ErrorKind = "setup_required"
	ErrorKindProtocol     ErrorKind = "protocol"
	ErrorKindApproval     ErrorKind = "approval"
)

// Action carries the tool-call detail for an EntryAction event.
type Action struct {
	Tool      string `json:"tool"`
	Arguments any    `json:"arguments,omitempty"`
	Result    any    `json:"result,omitempty"`
}

// Progress carries the detail for an EntryProgress event.
type Progress struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// NormalizedEvent is the canonical record every executor binding emits into
// a session's LogStore, regardless of which underlying CLI produced it.
type NormalizedEvent struct {
	Timestamp time.Time `json:"timestamp,omitempty"`
	Type      EntryType `json:"type"`
	Content   string    `json:"content,omitempty"`
	Metadata  any       `json:"metadata,omitempty"`
	AgentType string    `json:"agentType"`

	// Action is populated when Type == EntryAction.
	Action *Action `json:"action,omitempty"`
	// ErrorKind is populated when Type == EntryError.
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	// Progress is populated when Type == EntryProgress.
	Progress *Progress `json:"progress,omitempty"`
}

// NewSystemEvent is a small constructor for the library's own informational
// events (dropped-tail markers, lifecycle notices) so every call site
// doesn't have to repeat the Type/Timestamp boilerplate.
func NewSystemEvent(agentType, content string) NormalizedEvent {
	return NormalizedEvent{
		Timestamp: time.Now(),
		Type:      EntrySystem,
		Content:   content,
		AgentType: agentType,
	}
}

// NewErrorEvent constructs an EntryError event.
func NewErrorEvent(agentType string, kind ErrorKind, content string) NormalizedEvent {
	return NormalizedEvent{
		Timestamp: time.Now(),
		Type:      EntryError,
		Content:   content,
		AgentType: agentType,
		ErrorKind: kind,
	}
}
