package executor

import (
	"context"
	"testing"

	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/spawnedagent"
)

type fakeExecutor struct{ agentType string }

func (f *fakeExecutor) AgentType() string                    { return f.agentType }
func (f *fakeExecutor) Capabilities() agentcore.CapabilitySet { return agentcore.NewCapabilitySet() }
func (f *fakeExecutor) CheckAvailability(ctx context.Context) agentcore.AvailabilityStatus {
	return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityAvailable}
}
func (f *fakeExecutor) Spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return nil, nil
}
func (f *fakeExecutor) SpawnFollowUp(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return nil, agentcore.ErrUnsupported
}

func TestRegistryRegisterAndNew(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fake", func(opts agentcore.Options) AgentExecutor {
		return &fakeExecutor{agentType: "fake"}
	})

	exec, err := reg.New("fake", agentcore.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if exec.AgentType() != "fake" {
		t.Fatalf("unexpected agent type: %s", exec.AgentType())
	}

	types := reg.Types()
	if len(types) != 1 || types[0] != "fake" {
		t.Fatalf("unexpected Types(): %v", types)
	}
}

func TestRegistryNewUnknownTypeReturnsUnsupported(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.New("nonexistent", agentcore.Options{}); err != agentcore.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestResolveExecutableOverridePathWins(t *testing.T) {
	path, err := ResolveExecutable("/custom/path/to/agent", []string{"sh"})
	if err != nil {
		t.Fatalf("ResolveExecutable: %v", err)
	}
	if path != "/custom/path/to/agent" {
		t.Fatalf("expected override path verbatim, got %s", path)
	}
}

func TestResolveExecutableFallsBackToCandidates(t *testing.T) {
	path, err := ResolveExecutable("", []string{"definitely-not-a-real-binary-xyz", "sh"})
	if err != nil {
		t.Fatalf("ResolveExecutable: %v", err)
	}
	if path == "" {
		t.Fatal("expected a resolved path")
	}
}

func TestResolveExecutableNoneFound(t *testing.T) {
	_, err := ResolveExecutable("", []string{"definitely-not-a-real-binary-xyz"})
	if err != agentcore.ErrAgentNotAvailable {
		t.Fatalf("expected ErrAgentNotAvailable, got %v", err)
	}
}
