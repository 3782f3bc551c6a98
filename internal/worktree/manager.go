// Package worktree creates and tears down detached git worktrees that keep
// generation tasks away from the user's live working tree.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kinopeee/dontforgetest-sub007/internal/gitcmd"
	"github.com/kinopeee/dontforgetest-sub007/internal/util"
)

// DefaultRef is the reference a worktree detaches from when none is given.
const DefaultRef = "HEAD"

// Manager creates and removes task-scoped temporary worktrees under
// <repoRoot>/.worktrees.
type Manager struct {
	repoRoot string
	runner   *gitcmd.Runner
}

// NewManager returns a Manager for the repository at repoRoot.
func NewManager(repoRoot string, runner *gitcmd.Runner) *Manager {
	return &Manager{repoRoot: repoRoot, runner: runner}
}

// Dir returns the worktree directory a task id maps to.
func (m *Manager) Dir(taskID string) string {
	return filepath.Join(m.repoRoot, ".worktrees", "gen-"+util.SanitizeTaskID(taskID))
}

// Create makes a detached worktree for the task at the given ref (DefaultRef
// when empty). Any stale directory of the same name is torn down first.
func (m *Manager) Create(ctx context.Context, taskID, ref string) (string, error) {
	if ref == "" {
		ref = DefaultRef
	}
	dir := m.Dir(taskID)

	if _, err := os.Stat(dir); err == nil {
		m.Remove(ctx, taskID)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return "", fmt.Errorf("create worktrees dir: %w", err)
	}

	res := m.runner.Run(ctx, m.repoRoot, "worktree", "add", "--detach", dir, ref)
	if !res.OK {
		return "", fmt.Errorf("git worktree add failed: %s", res.Output)
	}
	return dir, nil
}

// Remove tears the worktree down. All three steps run in sequence even when
// earlier ones fail, so the directory never survives an inconsistent git
// state: worktree removal, metadata pruning, then forced directory deletion.
func (m *Manager) Remove(ctx context.Context, taskID string) {
	dir := m.Dir(taskID)
	_ = m.runner.Run(ctx, m.repoRoot, "worktree", "remove", "--force", dir)
	_ = m.runner.Run(ctx, m.repoRoot, "worktree", "prune")
	_ = os.RemoveAll(dir)
}
