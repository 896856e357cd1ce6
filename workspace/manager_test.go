package workspace

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/workspace/agentcore"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "README.md")
	run("commit", "-m", "init")
	return dir
}

func TestCreateNoneIsoplationReturnsDirect(t *testing.T) {
	m := New("", nil)
	wp, err := m.Create(context.Background(), "s1", "/some/dir", nil)
	if err != nil {
		t.Fatal(err)
	}
	if wp.Kind != agentcore.WorkspaceDirect || wp.Path != "/some/dir" {
		t.Errorf("unexpected workspace path: %+v", wp)
	}
	if err := m.Cleanup(context.Background(), wp); err != nil {
		t.Errorf("cleanup of Direct should be a no-op: %v", err)
	}
}

func TestCreateTempDirAndCleanupIdempotent(t *testing.T) {
	m := New(t.TempDir(), nil)
	wp, err := m.Create(context.Background(), "s1", "", &agentcore.WorkspaceConfig{Isolation: agentcore.IsolationTempDir})
	if err != nil {
		t.Fatal(err)
	}
	if wp.Kind != agentcore.WorkspaceTemp {
		t.Fatalf("expected Temp kind, got %v", wp.Kind)
	}
	if _, err := os.Stat(wp.Path); err != nil {
		t.Fatalf("expected temp dir to exist: %v", err)
	}

	if err := m.Cleanup(context.Background(), wp); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(wp.Path); !os.IsNotExist(err) {
		t.Fatalf("expected temp dir removed")
	}

	// Idempotent: cleaning an already-removed workspace succeeds silently.
	if err := m.Cleanup(context.Background(), wp); err != nil {
		t.Errorf("expected idempotent cleanup to succeed, got %v", err)
	}
}

func TestParallelWorktreesDistinctBranchesAndPaths(t *testing.T) {
	repo := initRepo(t)
	m := New(t.TempDir(), nil)

	cfg := &agentcore.WorkspaceConfig{
		Isolation:    agentcore.IsolationGitWorktree,
		RepoPath:     repo,
		BranchPrefix: "t",
		BaseBranch:   "main",
	}

	var wg sync.WaitGroup
	results := make([]*agentcore.WorkspacePath, 2)
	errs := make([]error, 2)
	ids := []string{"A", "B"}
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = m.Create(context.Background(), id, "", cfg)
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}

	if results[0].Branch == results[1].Branch {
		t.Errorf("expected distinct branches, got %q == %q", results[0].Branch, results[1].Branch)
	}
	if results[0].Path == results[1].Path {
		t.Errorf("expected distinct paths, got %q == %q", results[0].Path, results[1].Path)
	}
	if results[0].Branch != "t-A" || results[1].Branch != "t-B" {
		t.Errorf("unexpected branch names: %q, %q", results[0].Branch, results[1].Branch)
	}

	// Cleanup of A leaves B intact.
	if err := m.Cleanup(context.Background(), results[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(results[1].Path); err != nil {
		t.Errorf("expected B's worktree to survive A's cleanup: %v", err)
	}
	if err := m.Cleanup(context.Background(), results[1]); err != nil {
		t.Fatal(err)
	}
}

func TestCreateWorktreeAlreadyExistsFails(t *testing.T) {
	repo := initRepo(t)
	m := New(t.TempDir(), nil)
	cfg := &agentcore.WorkspaceConfig{
		Isolation:    agentcore.IsolationGitWorktree,
		RepoPath:     repo,
		BranchPrefix: "dup",
		BaseBranch:   "main",
	}

	wp, err := m.Create(context.Background(), "X", "", cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Cleanup(context.Background(), wp)

	// Create an independent manager pointed at the same base dir so the
	// second attempt targets the same on-disk path, simulating a racing
	// duplicate create for the same session id.
	m2 := New(filepath.Dir(wp.Path), nil)
	_, err = m2.Create(context.Background(), "X", "", cfg)
	if err == nil {
		t.Fatal("expected second create for the same branch to fail")
	}
	var wsErr *agentcore.WorkspaceError
	if !errors.As(err, &wsErr) {
		t.Fatalf("expected WorkspaceError, got %T: %v", err, err)
	}
	if wsErr.Kind != agentcore.WorkspaceErrorAlreadyExists && wsErr.Kind != agentcore.WorkspaceErrorGit {
		t.Errorf("expected AlreadyExists or Git kind, got %v", wsErr.Kind)
	}
}
