// Package workspace implements the WorkspaceManager (C3): it materializes a
// WorkspacePath for a session and later releases it, guaranteeing no two
// concurrent operations mutate the same normalized path.
//
// Grounded on the reference service's internal/server/worktrees.go
// (git worktree add/remove, stderr-substring error classification) but
// generalized from docker-exec'd commands against a container filesystem to
// plain os/exec calls against the host filesystem, since this library has
// no container notion at all.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/workspace/agentcore"
)

// Manager is the WorkspaceManager (C3).
type Manager struct {
	// BaseDir is the parent directory new GitWorktree and TempDir
	// workspaces are created under. If empty, TempDir workspaces go under
	// os.TempDir() and GitWorktree workspaces under a .agentcore-worktrees
	// directory beside the repository.
	BaseDir string
	Logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Manager. baseDir may be empty (see Manager.BaseDir).
func New(baseDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		BaseDir: baseDir,
		Logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// pathLock returns the process-wide mutex for a normalized absolute path,
// inserting one if absent. The outer map mutex is held only long enough to
// insert-or-get; callers then lock the returned mutex for the duration of
// their filesystem operation, never holding the outer lock across I/O.
func (m *Manager) pathLock(path string) *sync.Mutex {
	norm := filepath.Clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[norm]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[norm] = lk
	}
	return lk
}

func (m *Manager) baseDir() string {
	if m.BaseDir != "" {
		return m.BaseDir
	}
	return os.TempDir()
}

// Create materializes a WorkspacePath for sessionID per cfg. cfg == nil is
// equivalent to IsolationNone with workDir as the direct path.
func (m *Manager) Create(ctx context.Context, sessionID, workDir string, cfg *agentcore.WorkspaceConfig) (*agentcore.WorkspacePath, error) {
	if cfg == nil || cfg.Isolation == agentcore.IsolationNone {
		return &agentcore.WorkspacePath{Kind: agentcore.WorkspaceDirect, Path: workDir}, nil
	}

	switch cfg.Isolation {
	case agentcore.IsolationGitWorktree:
		return m.createWorktree(ctx, sessionID, cfg)
	case agentcore.IsolationTempDir:
		return m.createTemp(sessionID)
	default:
		return nil, &agentcore.WorkspaceError{Kind: agentcore.WorkspaceErrorInvalidPath, Detail: fmt.Sprintf("unknown isolation type %q", cfg.Isolation)}
	}
}

func (m *Manager) createWorktree(ctx context.Context, sessionID string, cfg *agentcore.WorkspaceConfig) (*agentcore.WorkspacePath, error) {
	if cfg.RepoPath == "" {
		return nil, &agentcore.WorkspaceError{Kind: agentcore.WorkspaceErrorInvalidPath, Detail: "repo_path is required for git worktree isolation"}
	}

	worktreePath := filepath.Join(m.worktreeBaseDir(cfg.RepoPath), sessionID)
	branch := cfg.BranchPrefix + "-" + sessionID

	lk := m.pathLock(worktreePath)
	lk.Lock()
	defer lk.Unlock()

	baseBranch := cfg.BaseBranch
	if baseBranch == "" {
		baseBranch = "HEAD"
	}

	args := []string{"worktree", "add", "-b", branch, worktreePath, baseBranch}
	stdout, stderr, err := m.runGit(ctx, cfg.RepoPath, args...)
	if err != nil {
		msg := stderr
		if msg == "" {
			msg = stdout
		}
		kind, detail := classifyGitError(msg, branch)
		m.Logger.Warn("workspace: git worktree add failed", "session_id", sessionID, "branch", branch, "error", msg)
		// Best-effort rollback: a partially created worktree directory
		// must not be left visible under the lock.
		m.rollbackPartialWorktree(ctx, cfg.RepoPath, worktreePath)
		return nil, &agentcore.WorkspaceError{Kind: kind, Detail: detail, Cause: err}
	}

	m.Logger.Info("workspace: created git worktree", "session_id", sessionID, "branch", branch, "path", worktreePath)
	return &agentcore.WorkspacePath{
		Kind:     agentcore.WorkspaceWorktree,
		Path:     worktreePath,
		Branch:   branch,
		RepoPath: cfg.RepoPath,
	}, nil
}

func (m *Manager) rollbackPartialWorktree(ctx context.Context, repoPath, worktreePath string) {
	if _, err := os.Stat(worktreePath); err == nil {
		_, _, _ = m.runGit(ctx, repoPath, "worktree", "remove", "--force", worktreePath)
		_ = os.RemoveAll(worktreePath)
	}
}

func classifyGitError(msg, branch string) (agentcore.WorkspaceErrorKind, string) {
	switch {
	case strings.Contains(msg, "already checked out") || strings.Contains(msg, "is already checked out"):
		return agentcore.WorkspaceErrorAlreadyExists, fmt.Sprintf("branch %q is already checked out in another worktree", branch)
	case strings.Contains(msg, "already exists"):
		return agentcore.WorkspaceErrorAlreadyExists, fmt.Sprintf("branch %q already exists", branch)
	case strings.Contains(msg, "not a valid branch name") || strings.Contains(msg, "invalid reference"):
		return agentcore.WorkspaceErrorInvalidPath, fmt.Sprintf("%q is not a valid branch name", branch)
	default:
		return agentcore.WorkspaceErrorGit, msg
	}
}

func (m *Manager) worktreeBaseDir(repoPath string) string {
	if m.BaseDir != "" {
		return m.BaseDir
	}
	return filepath.Join(filepath.Dir(repoPath), ".agentcore-worktrees")
}

func (m *Manager) createTemp(sessionID string) (*agentcore.WorkspacePath, error) {
	dir, err := os.MkdirTemp(m.baseDir(), "agentcore-"+sessionID+"-")
	if err != nil {
		return nil, &agentcore.WorkspaceError{Kind: agentcore.WorkspaceErrorIO, Detail: "failed to create temp dir", Cause: err}
	}
	lk := m.pathLock(dir)
	lk.Lock()
	defer lk.Unlock()

	m.Logger.Info("workspace: created temp dir", "session_id", sessionID, "path", dir)
	return &agentcore.WorkspacePath{Kind: agentcore.WorkspaceTemp, Path: dir}, nil
}

// Cleanup releases a WorkspacePath previously returned by Create. It is
// idempotent: cleaning an already-removed workspace succeeds silently.
func (m *Manager) Cleanup(ctx context.Context, wp *agentcore.WorkspacePath) error {
	if wp == nil {
		return nil
	}

	switch wp.Kind {
	case agentcore.WorkspaceDirect:
		return nil
	case agentcore.WorkspaceWorktree:
		return m.cleanupWorktree(ctx, wp)
	case agentcore.WorkspaceTemp:
		return m.cleanupTemp(wp)
	default:
		return &agentcore.WorkspaceError{Kind: agentcore.WorkspaceErrorInvalidPath, Detail: fmt.Sprintf("unknown workspace kind %q", wp.Kind)}
	}
}

func (m *Manager) cleanupWorktree(ctx context.Context, wp *agentcore.WorkspacePath) error {
	lk := m.pathLock(wp.Path)
	lk.Lock()
	defer lk.Unlock()

	if _, err := os.Stat(wp.Path); os.IsNotExist(err) {
		// Already removed: idempotent success.
		return nil
	}

	_, stderr, err := m.runGit(ctx, wp.RepoPath, "worktree", "remove", "--force", wp.Path)
	if err != nil {
		m.Logger.Warn("workspace: git worktree remove failed", "path", wp.Path, "error", stderr)
		return &agentcore.WorkspaceError{Kind: agentcore.WorkspaceErrorGit, Detail: stderr, Cause: err}
	}
	// Prune stale metadata so the branch slot may be reused by a later
	// session.
	_, _, _ = m.runGit(ctx, wp.RepoPath, "worktree", "prune")
	m.Logger.Info("workspace: removed git worktree", "path", wp.Path, "branch", wp.Branch)
	return nil
}

func (m *Manager) cleanupTemp(wp *agentcore.WorkspacePath) error {
	lk := m.pathLock(wp.Path)
	lk.Lock()
	defer lk.Unlock()

	if err := os.RemoveAll(wp.Path); err != nil {
		return &agentcore.WorkspaceError{Kind: agentcore.WorkspaceErrorIO, Detail: "failed to remove temp dir", Cause: err}
	}
	m.Logger.Info("workspace: removed temp dir", "path", wp.Path)
	return nil
}

func (m *Manager) runGit(ctx context.Context, dir string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}
