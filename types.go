package agentcore

import (
	"log/slog"
	"time"
)

// SessionStatus is the overall lifecycle status of a Session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionIdle      SessionStatus = "idle"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ExecutionStatus is the lifecycle status of a single Execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Execution is one invocation of the agent CLI within a Session.
type Execution struct {
	ID          string
	Prompt      string
	Status      ExecutionStatus
	StartedAt   time.Time
	CompletedAt time.Time
	ExitCode    *int
}

// Session is a logical conversation scope: it owns a LogStore (held by the
// caller of session.Manager, not embedded here to avoid an import cycle
// with the eventlog package) and an append-only list of Executions.
//
// Invariant: AgentType is immutable after creation; Executions is
// append-only; at most one Execution is Running at any instant.
type Session struct {
	ID         string
	AgentType  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Status     SessionStatus
	Executions []Execution
}

// RunningExecution returns a pointer to the session's in-flight Execution,
// if any. Session.Executions is addressable via this helper because
// Session values are normally handled by pointer through session.Manager.
func (s *Session) RunningExecution() *Execution {
	for i := range s.Executions {
		if s.Executions[i].Status == ExecutionRunning {
			return &s.Executions[i]
		}
	}
	return nil
}

// Capability tags a behavior an AgentExecutor binding may declare.
type Capability string

const (
	CapabilitySessionContinuation Capability = "session_continuation"
	CapabilityBidirectionalControl Capability = "bidirectional_control"
	CapabilityWorkspaceIsolation  Capability = "workspace_isolation"
	CapabilityRequiresSetup       Capability = "requires_setup"
	CapabilityInteractiveTTY      Capability = "interactive_tty"
)

// CapabilitySet is a small set of Capability tags.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a CapabilitySet from a list of tags.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether the set declares the given capability.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// AvailabilityStatusKind is the tag of an AvailabilityStatus.
type AvailabilityStatusKind string

const (
	AvailabilityAvailable               AvailabilityStatusKind = "available"
	AvailabilityInstalledNotAuthenticated AvailabilityStatusKind = "installed_not_authenticated"
	AvailabilityNotFound                AvailabilityStatusKind = "not_found"
	AvailabilityRequiresSetup           AvailabilityStatusKind = "requires_setup"
)

// AvailabilityStatus reports whether a binding's underlying CLI is ready to
// be spawned.
type AvailabilityStatus struct {
	Kind         AvailabilityStatusKind
	Reason       string // populated for NotFound
	Instructions string // populated for RequiresSetup
}

// AgentConfig is the per-execution input every AgentExecutor.Spawn call
// takes: working directory, environment, optional workspace isolation,
// optional wall-clock timeout, and an opaque agent-specific options blob
// (e.g. a claude.Options or cursor.Options value, not a pointer) the core
// never inspects.
type AgentConfig struct {
	WorkDir   string
	Env       map[string]string
	Workspace *WorkspaceConfig
	Timeout   time.Duration
	Options   any
}

// Options carries library-wide tunables a host may override when
// constructing a runner.Runner or session.Manager: interrupt-cascade grace
// periods, LogStore buffer sizing, and the logger to attach structured
// fields to. Every field has the same default the reference service
// hardcodes, expressed as overridable struct fields rather than
// environment variables (see SPEC_FULL.md §1.1).
type Options struct {
	// Logger receives structured lifecycle/protocol log lines. A nil
	// Logger falls back to slog.Default().
	Logger *slog.Logger

	// InterruptSoftGrace bounds how long the interrupt cascade waits after
	// the cooperative interrupt (and after the soft OS signal) before
	// escalating. Defaults to 2s per SPEC_FULL.md §4.6.
	InterruptSoftGrace time.Duration
	// InterruptTermGrace bounds how long the cascade waits after the
	// termination signal before the final unconditional kill. Defaults to
	// 2s.
	InterruptTermGrace time.Duration

	// LogStoreSubscriberBuffer overrides eventlog.Store's per-subscriber
	// channel capacity. 0 selects eventlog.DefaultSubscriberBuffer.
	LogStoreSubscriberBuffer int
}

// WithDefaults returns a copy of o with zero-valued tunables replaced by
// their documented defaults.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.InterruptSoftGrace <= 0 {
		o.InterruptSoftGrace = 2 * time.Second
	}
	if o.InterruptTermGrace <= 0 {
		o.InterruptTermGrace = 2 * time.Second
	}
	return o
}
