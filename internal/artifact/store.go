// Package artifact persists patches and recovery documents so that a
// generated patch is never silently discarded.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kinopeee/dontforgetest-sub007/internal/diff"
	"github.com/kinopeee/dontforgetest-sub007/internal/util"
)

// Store manages the ephemeral and permanent patch locations under the
// state directory. Paths are namespaced by task id, so concurrent tasks
// never touch each other's files.
type Store struct {
	root string
}

// NewStore returns a Store rooted at stateDir (e.g. <repo>/.dontforgetest).
func NewStore(stateDir string) *Store {
	return &Store{root: stateDir}
}

// Root returns the state directory this store writes under.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) pendingDir() string { return filepath.Join(s.root, "pending") }
func (s *Store) patchesDir() string { return filepath.Join(s.root, "patches") }

// WritePending writes the patch to its ephemeral location before any apply
// attempt. The stored text always ends with exactly one trailing newline.
func (s *Store) WritePending(taskID, patch string) (string, error) {
	if err := os.MkdirAll(s.pendingDir(), 0755); err != nil {
		return "", fmt.Errorf("create pending dir: %w", err)
	}
	p := filepath.Join(s.pendingDir(), util.SanitizeTaskID(taskID)+".patch")
	if err := os.WriteFile(p, []byte(diff.CanonicalTrailingNewline(patch)), 0644); err != nil {
		return "", fmt.Errorf("write pending patch: %w", err)
	}
	return p, nil
}

// Discard removes an ephemeral patch after a successful apply.
func (s *Store) Discard(pendingPath string) error {
	err := os.Remove(pendingPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Persist moves an ephemeral patch to its permanent location. A failed
// rename degrades to copy-then-delete rather than losing the patch.
func (s *Store) Persist(pendingPath, taskID string) (string, error) {
	dest, err := s.patchPath(taskID)
	if err != nil {
		return "", err
	}
	if err := os.Rename(pendingPath, dest); err != nil {
		if copyErr := copyFile(pendingPath, dest); copyErr != nil {
			return "", fmt.Errorf("persist patch: %w", copyErr)
		}
		_ = os.Remove(pendingPath)
	}
	return dest, nil
}

// PersistText writes patch text straight to the permanent location, used
// when a patch is rejected before an ephemeral copy exists.
func (s *Store) PersistText(taskID, patch string) (string, error) {
	dest, err := s.patchPath(taskID)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, []byte(diff.CanonicalTrailingNewline(patch)), 0644); err != nil {
		return "", fmt.Errorf("persist patch: %w", err)
	}
	return dest, nil
}

// WriteInstructions writes the human-readable recovery document next to the
// persisted patch and returns its path.
func (s *Store) WriteInstructions(taskID, doc string) (string, error) {
	if err := os.MkdirAll(s.patchesDir(), 0755); err != nil {
		return "", fmt.Errorf("create patches dir: %w", err)
	}
	p := filepath.Join(s.patchesDir(), fmt.Sprintf("%s-%s-RECOVERY.md", util.SanitizeTaskID(taskID), timestamp()))
	if err := os.WriteFile(p, []byte(doc), 0644); err != nil {
		return "", fmt.Errorf("write recovery document: %w", err)
	}
	return p, nil
}

func (s *Store) patchPath(taskID string) (string, error) {
	if err := os.MkdirAll(s.patchesDir(), 0755); err != nil {
		return "", fmt.Errorf("create patches dir: %w", err)
	}
	return filepath.Join(s.patchesDir(), fmt.Sprintf("%s-%s.patch", util.SanitizeTaskID(taskID), timestamp())), nil
}

func timestamp() string {
	return time.Now().UTC().Format("20060102-150405")
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
