package agentcore

// IsolationType selects how a WorkspaceManager materializes a WorkspacePath
// for a session.
type IsolationType string

const (
	// IsolationNone executes directly in AgentConfig.WorkDir with no
	// filesystem effect from the WorkspaceManager.
	IsolationNone IsolationType = "none"
	// IsolationGitWorktree creates a worktree on a freshly named branch
	// forked from BaseBranch.
	IsolationGitWorktree IsolationType = "git_worktree"
	// IsolationTempDir creates a freshly named temporary directory.
	IsolationTempDir IsolationType = "temp_dir"
)

// WorkspaceConfig declares how an execution's workspace should be
// materialized.
type WorkspaceConfig struct {
	Isolation IsolationType

	// RepoPath and BranchPrefix are used only when Isolation ==
	// IsolationGitWorktree.
	RepoPath     string
	BranchPrefix string
	// BaseBranch is the branch a new worktree's branch is forked from.
	// Used only for IsolationGitWorktree.
	BaseBranch string
}

// WorkspacePathKind tags a WorkspacePath's variant.
type WorkspacePathKind string

const (
	WorkspaceDirect   WorkspacePathKind = "direct"
	WorkspaceWorktree WorkspacePathKind = "worktree"
	WorkspaceTemp     WorkspacePathKind = "temp"
)

// WorkspacePath is the tagged union carrying the absolute filesystem path
// an execution runs in, plus enough detail for WorkspaceManager to clean it
// up later. Created by WorkspaceManager keyed to a session id; destroyed
// exactly once by WorkspaceManager on session teardown.
type WorkspacePath struct {
	Kind WorkspacePathKind
	Path string

	// Branch and RepoPath are populated only for WorkspaceWorktree, so
	// Cleanup can run `git worktree remove` against the right repository.
	Branch   string
	RepoPath string
}
