package runner

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/workspace/agentcore"
	"github.com/workspace/agentcore/eventlog"
	"github.com/workspace/agentcore/executor"
	"github.com/workspace/agentcore/session"
	"github.com/workspace/agentcore/spawnedagent"
)

// fakeExecutor spawns a real but trivial "sh -c" child so spawnedagent's
// real process machinery runs end to end, matching the in-process-fake
// test style the library's other packages use, without depending on any
// actual agent CLI.
type fakeExecutor struct {
	script string
}

func (f *fakeExecutor) AgentType() string                    { return "fake" }
func (f *fakeExecutor) Capabilities() agentcore.CapabilitySet { return agentcore.NewCapabilitySet() }
func (f *fakeExecutor) CheckAvailability(ctx context.Context) agentcore.AvailabilityStatus {
	return agentcore.AvailabilityStatus{Kind: agentcore.AvailabilityAvailable}
}
func (f *fakeExecutor) Spawn(ctx context.Context, cfg agentcore.AgentConfig, prompt string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", f.script)
	return spawnedagent.Spawn(ctx, spawnedagent.Config{
		AgentType: "fake",
		Cmd:       cmd,
		LogStore:  store,
	})
}
func (f *fakeExecutor) SpawnFollowUp(ctx context.Context, cfg agentcore.AgentConfig, prompt, priorSessionID string, store *eventlog.Store) (*spawnedagent.SpawnedAgent, error) {
	return f.Spawn(ctx, cfg, prompt, store)
}

func newTestRunner(script string) (*Runner, string) {
	reg := executor.NewRegistry()
	reg.Register("fake", func(opts agentcore.Options) executor.AgentExecutor {
		return &fakeExecutor{script: script}
	})
	sm := session.New(nil, agentcore.Options{})
	sess, _ := sm.CreateSession("fake")
	r := New(reg, sm, nil, agentcore.Options{})
	return r, sess.ID
}

func TestRunCompletesSuccessfullyAndUpdatesSession(t *testing.T) {
	r, sessionID := newTestRunner("exit 0")

	result, err := r.Run(context.Background(), sessionID, "fake", "prompt", agentcore.AgentConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Exit.Reason != spawnedagent.ExitSuccess {
		t.Fatalf("expected success, got %v", result.Exit.Reason)
	}

	got, _, err := r.Sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != agentcore.SessionCompleted {
		t.Fatalf("expected Completed session, got %v", got.Status)
	}
}

func TestRunNonZeroExitMarksExecutionFailed(t *testing.T) {
	r, sessionID := newTestRunner("exit 3")

	result, err := r.Run(context.Background(), sessionID, "fake", "prompt", agentcore.AgentConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Exit.Reason != spawnedagent.ExitFailure || result.Exit.ExitCode != 3 {
		t.Fatalf("unexpected exit result: %#v", result.Exit)
	}

	got, _, _ := r.Sessions.Get(sessionID)
	if got.Status != agentcore.SessionFailed {
		t.Fatalf("expected Failed session, got %v", got.Status)
	}
}

func TestRunUnknownAgentTypeReturnsUnsupported(t *testing.T) {
	r, sessionID := newTestRunner("exit 0")
	_, err := r.Run(context.Background(), sessionID, "nonexistent", "prompt", agentcore.AgentConfig{})
	if err != agentcore.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestTimeoutArmedNoTimeoutReturnsOriginalContext(t *testing.T) {
	ctx := context.Background()
	got, cancel := TimeoutArmed(ctx, 0)
	defer cancel()
	if got != ctx {
		t.Fatal("expected the original context to be returned unchanged")
	}
}

func TestTimeoutArmedSetsDeadline(t *testing.T) {
	ctx, cancel := TimeoutArmed(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("expected a deadline to be armed")
	}
}
