// Package session implements the SessionManager (C8): a keyed registry
// binding session ids to Sessions, their Executions, and their shared
// LogStore.
//
// Grounded on the reference service's internal/acp/session_host.go
// (RWMutex-guarded session state, status enum, restart/attach shape)
// generalized from one-ACP-agent-per-host to the core's
// agent-type-agnostic Session/Execution model.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/workspace"
)

// entry bundles a Session with the shared state only the Manager needs:
// its LogStore and the WorkspacePaths its executions have claimed (so
// DeleteSession can release them all).
type entry struct {
	session   agentcore.Session
	logStore  *eventlog.Store
	workspace []*agentcore.WorkspacePath
}

// Manager is the SessionManager (C8).
type Manager struct {
	workspaces *workspace.Manager
	options    agentcore.Options

	mu       sync.RWMutex
	sessions map[string]*entry
}

// New constructs a Manager. workspaces may be nil if no session this
// Manager tracks ever uses workspace isolation.
func New(workspaces *workspace.Manager, opts agentcore.Options) *Manager {
	return &Manager{
		workspaces: workspaces,
		options:    opts.WithDefaults(),
		sessions:   make(map[string]*entry),
	}
}

// CreateSession allocates a new session id and LogStore for agentType.
func (m *Manager) CreateSession(agentType string) (*agentcore.Session, *eventlog.Store) {
	now := time.Now()
	sess := agentcore.Session{
		ID:        uuid.NewString(),
		AgentType: agentType,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    agentcore.SessionActive,
	}
	store := eventlog.New(agentType, m.options.LogStoreSubscriberBuffer)

	m.mu.Lock()
	m.sessions[sess.ID] = &entry{session: sess, logStore: store}
	m.mu.Unlock()

	return &sess, store
}

// Get returns a copy of the Session and its LogStore, or
// agentcore.ErrSessionNotFound.
func (m *Manager) Get(sessionID string) (agentcore.Session, *eventlog.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return agentcore.Session{}, nil, agentcore.ErrSessionNotFound
	}
	return e.session, e.logStore, nil
}

// List returns a snapshot copy of every tracked Session.
func (m *Manager) List() []agentcore.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]agentcore.Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.session)
	}
	return out
}

// StartExecution appends a new Running Execution to sessionID and
// records wp (if non-nil) so DeleteSession can release it later.
func (m *Manager) StartExecution(sessionID, prompt string, wp *agentcore.WorkspacePath) (agentcore.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return agentcore.Execution{}, agentcore.ErrSessionNotFound
	}
	if running := e.session.RunningExecution(); running != nil {
		return agentcore.Execution{}, &agentcore.WorkspaceError{Kind: agentcore.WorkspaceErrorInvalidPath, Detail: "session already has a running execution"}
	}

	exec := agentcore.Execution{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Status:    agentcore.ExecutionRunning,
		StartedAt: time.Now(),
	}
	e.session.Executions = append(e.session.Executions, exec)
	e.session.UpdatedAt = time.Now()
	e.session.Status = agentcore.SessionActive
	if wp != nil {
		e.workspace = append(e.workspace, wp)
	}
	return exec, nil
}

// CompleteExecution marks executionID within sessionID as finished with
// the given status and exit code, and updates the session's overall
// status to match (Completed/Failed) unless the binding later starts
// another execution, which flips it back to Active.
func (m *Manager) CompleteExecution(sessionID, executionID string, status agentcore.ExecutionStatus, exitCode *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return agentcore.ErrSessionNotFound
	}
	for i := range e.session.Executions {
		if e.session.Executions[i].ID != executionID {
			continue
		}
		e.session.Executions[i].Status = status
		e.session.Executions[i].CompletedAt = time.Now()
		e.session.Executions[i].ExitCode = exitCode
		e.session.UpdatedAt = time.Now()

		switch status {
		case agentcore.ExecutionCompleted:
			e.session.Status = agentcore.SessionCompleted
		case agentcore.ExecutionFailed, agentcore.ExecutionCancelled:
			e.session.Status = agentcore.SessionFailed
		}
		return nil
	}
	return agentcore.ErrExecutionNotFound
}

// LastWorkspace returns the most recently claimed WorkspacePath for
// sessionID, used by spawn_follow_up to reuse a prior execution's
// worktree rather than creating a second one per conversation.
func (m *Manager) LastWorkspace(sessionID string) (*agentcore.WorkspacePath, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok || len(e.workspace) == 0 {
		return nil, false
	}
	return e.workspace[len(e.workspace)-1], true
}

// DeleteSession releases every WorkspacePath the session's executions
// claimed, then drops the session from the registry. Safe to call on a
// session with no live executions.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return agentcore.ErrSessionNotFound
	}

	// The session's LogStore has no other writer once its session is torn
	// down: close it so every live subscription's Events channel closes and
	// Done fires, per the "sole writer signals no more writes" handoff
	// SPEC_FULL.md §4.1/§9 describe.
	e.logStore.Close()

	if m.workspaces == nil {
		return nil
	}

	var firstErr error
	seen := make(map[string]bool)
	for _, wp := range e.workspace {
		if wp == nil || seen[wp.Path] {
			continue
		}
		seen[wp.Path] = true
		if err := m.workspaces.Cleanup(ctx, wp); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
