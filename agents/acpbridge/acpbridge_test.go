package acpbridge

import (
	"context"
	"testing"

	"github.com/workspace/agentcore"
)

func TestAcpOptionsDefaultsToZeroValue(t *testing.T) {
	opts := acpOptions(agentcore.AgentConfig{})
	if opts.ExecutablePath != "" || len(opts.ExtraArgs) != 0 || opts.Approval != nil {
		t.Fatalf("expected zero-value Options, got %+v", opts)
	}
}

func TestCapabilitiesDeclaresSessionContinuationAndSetup(t *testing.T) {
	e := &Executor{}
	caps := e.Capabilities()
	for _, want := range []agentcore.Capability{
		agentcore.CapabilitySessionContinuation,
		agentcore.CapabilityWorkspaceIsolation,
		agentcore.CapabilityRequiresSetup,
	} {
		if !caps.Has(want) {
			t.Fatalf("expected capability %q in %v", want, caps)
		}
	}
}

func TestCheckAvailabilityReportsRecognizedKind(t *testing.T) {
	e := &Executor{}
	status := e.CheckAvailability(nil)
	switch status.Kind {
	case agentcore.AvailabilityAvailable, agentcore.AvailabilityNotFound:
	default:
		t.Fatalf("unexpected availability kind: %v", status.Kind)
	}
}

func TestAgentTypeTag(t *testing.T) {
	e := &Executor{}
	if e.AgentType() != "acpbridge" {
		t.Fatalf("got %q, want acpbridge", e.AgentType())
	}
}

func TestSpawnFailsStartingNonexistentOverrideBinary(t *testing.T) {
	e := &Executor{}
	cfg := agentcore.AgentConfig{Options: Options{ExecutablePath: "/definitely/not/a/real/binary-xyz"}}
	if _, err := e.Spawn(context.Background(), cfg, "hi", nil); err == nil {
		t.Fatal("expected error starting a nonexistent override binary")
	}
}
