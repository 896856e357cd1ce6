// Package executor defines the AgentExecutor contract (C6) every agent
// binding implements, and a small Registry mapping an agent-type string
// to a constructor — composition over a binding-identity type switch,
// per SPEC_FULL.md §9's design note.
package executor

import (
	"context"

	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/spawnedagent"
)

// AgentExecutor is the polymorphic contract every binding (agents/claude,
// agents/cursor, ...) implements.
type AgentExecutor interface {
	// AgentType returns the binding's stable identifying tag, e.g. "claude".
	AgentType() string

	// Capabilities declares which optional behaviors this binding supports.
	Capabilities() agentcore.CapabilitySet

	// CheckAvailability reports whether the underlying CLI is resolvable
	// and authenticated without spawning a real execution.
	CheckAvailability(ctx context.Context) agentcore.AvailabilityStatus

	// Spawn launches a fresh execution. The returned SpawnedAgent's child
	// is already running with stdio wired into store by the time Spawn
	// returns.
	Spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error)

	// SpawnFollowUp resumes priorSessionID with a new prompt. Bindings
	// without CapabilitySessionContinuation should return
	// agentcore.ErrUnsupported.
	SpawnFollowUp(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error)
}

// Constructor builds a fresh AgentExecutor instance. Bindings register one
// under their agent-type string; a Registry calls it once per caller
// needing an executor rather than sharing mutable binding state across
// unrelated sessions.
type Constructor func(opts agentcore.Options) AgentExecutor

// Registry maps an agent-type string to its Constructor.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for agentType.
func (r *Registry) Register(agentType string, ctor Constructor) {
	r.constructors[agentType] = ctor
}

// New builds an AgentExecutor for agentType, or returns
// agentcore.ErrUnsupported if no binding is registered under that tag.
func (r *Registry) New(agentType string, opts agentcore.Options) (AgentExecutor, error) {
	ctor, ok := r.constructors[agentType]
	if !ok {
		return nil, agentcore.ErrUnsupported
	}
	return ctor(opts), nil
}

// Types lists every registered agent-type tag.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		out = append(out, t)
	}
	return out
}
