package apply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kinopeee/dontforgetest-sub007/internal/artifact"
	"github.com/kinopeee/dontforgetest-sub007/internal/gitcmd"
)

// recordingSink captures pipeline events for assertions.
type recordingSink struct {
	messages  []string
	decisions []string
}

func (s *recordingSink) Log(taskID, level, message string) {
	s.messages = append(s.messages, message)
}

func (s *recordingSink) Logf(taskID, level, format string, args ...any) {
	s.Log(taskID, level, fmt.Sprintf(format, args...))
}

func (s *recordingSink) Decide(taskID, rule string, conditions map[string]any, result string) {
	s.decisions = append(s.decisions, result)
}

type recordingNotifier struct {
	warnings []string
}

func (n *recordingNotifier) Warnf(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Sprintf(format, args...))
}

func (n *recordingNotifier) Infof(format string, args ...any) {}

// initRepo creates a git repository containing tests/a.test.ts with two
// lines and src/main.ts, both committed.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	root := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}

	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")

	writeFile(t, root, "tests/a.test.ts", "line1\nline2\n")
	writeFile(t, root, "src/main.ts", "export const x = 1\n")
	run("add", ".")
	run("commit", "-m", "initial")
	return root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestPipeline(t *testing.T, root string) (*Pipeline, *recordingSink, *recordingNotifier) {
	t.Helper()
	sink := &recordingSink{}
	notifier := &recordingNotifier{}
	p := New(root, gitcmd.NewRunner(30*time.Second), artifact.NewStore(filepath.Join(root, ".dontforgetest")))
	p.Events = sink
	p.Notifier = notifier
	return p, sink, notifier
}

const testPatch = `diff --git a/tests/a.test.ts b/tests/a.test.ts
--- a/tests/a.test.ts
+++ b/tests/a.test.ts
@@ -1,2 +1,3 @@
 line1
 line2
+line3
`

func TestApplyTestOnlyPatch(t *testing.T) {
	root := initRepo(t)
	p, sink, _ := newTestPipeline(t, root)

	outcome := p.Apply(context.Background(), "task-1", testPatch)
	if !outcome.Applied || outcome.Reason != ReasonApplied {
		t.Fatalf("outcome = %+v, want applied", outcome)
	}

	data, err := os.ReadFile(filepath.Join(root, "tests", "a.test.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "line1\nline2\nline3\n" {
		t.Errorf("file content = %q", data)
	}

	// The ephemeral copy is discarded after a successful apply.
	entries, err := os.ReadDir(filepath.Join(root, ".dontforgetest", "pending"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("pending dir should be empty, got %d entries", len(entries))
	}

	if len(sink.decisions) == 0 || sink.decisions[len(sink.decisions)-1] != string(ReasonApplied) {
		t.Errorf("decisions = %v, want final %q", sink.decisions, ReasonApplied)
	}
}

func TestApplyEmptyPatch(t *testing.T) {
	root := initRepo(t)
	p, _, _ := newTestPipeline(t, root)

	outcome := p.Apply(context.Background(), "task-1", "   \n\t\n")
	if outcome.Applied || outcome.Reason != ReasonEmptyPatch {
		t.Fatalf("outcome = %+v, want empty-patch", outcome)
	}

	// An empty patch causes no filesystem writes at all.
	if _, err := os.Stat(filepath.Join(root, ".dontforgetest")); !os.IsNotExist(err) {
		t.Error("state dir should not exist after an empty patch")
	}
}

func TestApplyUnparsableText(t *testing.T) {
	root := initRepo(t)
	p, _, notifier := newTestPipeline(t, root)

	outcome := p.Apply(context.Background(), "task-1", "I could not produce a diff, sorry.")
	if outcome.Reason != ReasonNoDiffPaths {
		t.Fatalf("outcome = %+v, want no-diff-paths", outcome)
	}
	if outcome.PatchPath == "" {
		t.Fatal("unparsable text should still be persisted")
	}
	if _, err := os.Stat(outcome.PatchPath); err != nil {
		t.Errorf("persisted patch should exist: %v", err)
	}
	if len(notifier.warnings) == 0 {
		t.Error("user should be warned about the unreadable diff")
	}
}

func TestApplyNonTestOnlyPatch(t *testing.T) {
	root := initRepo(t)
	p, _, _ := newTestPipeline(t, root)

	patch := `diff --git a/src/main.ts b/src/main.ts
--- a/src/main.ts
+++ b/src/main.ts
@@ -1,1 +1,2 @@
 export const x = 1
+export const y = 2
`
	outcome := p.Apply(context.Background(), "task-1", patch)
	if outcome.Reason != ReasonNoTestPaths {
		t.Fatalf("outcome = %+v, want no-test-paths", outcome)
	}

	// Nothing was applied.
	data, _ := os.ReadFile(filepath.Join(root, "src", "main.ts"))
	if string(data) != "export const x = 1\n" {
		t.Errorf("source file should be untouched, got %q", data)
	}
}

func TestApplyMixedPatchRejectedWholesale(t *testing.T) {
	root := initRepo(t)
	p, sink, notifier := newTestPipeline(t, root)

	patch := `diff --git a/tests/a.test.ts b/tests/a.test.ts
--- a/tests/a.test.ts
+++ b/tests/a.test.ts
@@ -1,2 +1,3 @@
 line1
 line2
+line3
diff --git a/src/main.ts b/src/main.ts
--- a/src/main.ts
+++ b/src/main.ts
@@ -1,1 +1,2 @@
 export const x = 1
+export const y = 2
`
	outcome := p.Apply(context.Background(), "task-1", patch)
	if outcome.Reason != ReasonNonTestPaths {
		t.Fatalf("outcome = %+v, want contains-non-test-paths", outcome)
	}
	if outcome.PatchPath == "" {
		t.Error("rejected mixed patch should be persisted")
	}

	// Neither file changed: the test part is not split out and applied.
	data, _ := os.ReadFile(filepath.Join(root, "tests", "a.test.ts"))
	if string(data) != "line1\nline2\n" {
		t.Errorf("test file should be untouched, got %q", data)
	}
	data, _ = os.ReadFile(filepath.Join(root, "src", "main.ts"))
	if string(data) != "export const x = 1\n" {
		t.Errorf("source file should be untouched, got %q", data)
	}

	if len(sink.decisions) == 0 || sink.decisions[len(sink.decisions)-1] != string(ReasonNonTestPaths) {
		t.Errorf("decisions = %v", sink.decisions)
	}
	warned := false
	for _, w := range notifier.warnings {
		if strings.Contains(w, "src/main.ts") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("warnings should name the non-test file, got %v", notifier.warnings)
	}
}

func TestApplyHallucinatedHunkCounts(t *testing.T) {
	root := initRepo(t)
	p, _, _ := newTestPipeline(t, root)

	patch := `diff --git a/tests/a.test.ts b/tests/a.test.ts
--- a/tests/a.test.ts
+++ b/tests/a.test.ts
@@ -1,999 +1,999 @@
 line1
 line2
+line3
`
	outcome := p.Apply(context.Background(), "task-1", patch)
	if !outcome.Applied {
		t.Fatalf("outcome = %+v, want applied after header repair", outcome)
	}
	data, _ := os.ReadFile(filepath.Join(root, "tests", "a.test.ts"))
	if string(data) != "line1\nline2\nline3\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestApplyIdempotent(t *testing.T) {
	root := initRepo(t)
	p, _, _ := newTestPipeline(t, root)
	ctx := context.Background()

	patch := `diff --git a/tests/a.test.ts b/tests/a.test.ts
--- a/tests/a.test.ts
+++ b/tests/a.test.ts
@@ -1,2 +1,2 @@
 line1
-line2
+line2 rewritten
`
	first := p.Apply(ctx, "task-1", patch)
	if !first.Applied {
		t.Fatalf("first apply = %+v", first)
	}

	// A crashed run retries the same patch: the reverse-check recognizes the
	// post-image and reports success without touching the file.
	second := p.Apply(ctx, "task-2", patch)
	if !second.Applied || second.Reason != ReasonApplied {
		t.Fatalf("second apply = %+v, want applied", second)
	}

	data, _ := os.ReadFile(filepath.Join(root, "tests", "a.test.ts"))
	if string(data) != "line1\nline2 rewritten\n" {
		t.Errorf("file should hold the post-image exactly once, got %q", data)
	}
}

func TestApplyWhitespaceDrift(t *testing.T) {
	root := initRepo(t)
	p, _, _ := newTestPipeline(t, root)

	// Context lines carry trailing whitespace the file does not have.
	patch := "diff --git a/tests/a.test.ts b/tests/a.test.ts\n" +
		"--- a/tests/a.test.ts\n" +
		"+++ b/tests/a.test.ts\n" +
		"@@ -1,2 +1,3 @@\n" +
		" line1   \n" +
		" line2\t\n" +
		"+line3\n"

	outcome := p.Apply(context.Background(), "task-1", patch)
	if !outcome.Applied {
		t.Fatalf("outcome = %+v, want applied via whitespace tolerance", outcome)
	}
	data, _ := os.ReadFile(filepath.Join(root, "tests", "a.test.ts"))
	if !strings.Contains(string(data), "line3") {
		t.Errorf("file content = %q", data)
	}
}

func TestApplyIdentifierPresenceLeniency(t *testing.T) {
	root := initRepo(t)
	writeFile(t, root, "tests/present.test.ts", "const alreadyPresentIdentifier = 42\n")
	p, _, _ := newTestPipeline(t, root)

	// Git cannot reconcile the hunk (the context never existed), but the
	// only distinguishing addition is already in the target file.
	patch := `diff --git a/tests/present.test.ts b/tests/present.test.ts
--- a/tests/present.test.ts
+++ b/tests/present.test.ts
@@ -1,2 +1,3 @@
 ctx that never existed one
 ctx that never existed two
+const alreadyPresentIdentifier = 42
`
	outcome := p.Apply(context.Background(), "task-1", patch)
	if !outcome.Applied || outcome.Reason != ReasonApplied {
		t.Fatalf("outcome = %+v, want applied via content presence", outcome)
	}
}

func TestApplyFailurePersistsPatchAndInstructions(t *testing.T) {
	root := initRepo(t)
	p, _, notifier := newTestPipeline(t, root)

	// Valid diff, but the target content does not exist anywhere.
	patch := `diff --git a/tests/a.test.ts b/tests/a.test.ts
--- a/tests/a.test.ts
+++ b/tests/a.test.ts
@@ -1,2 +1,3 @@
 completely different context
 that matches nothing
+const brandNewAdditionNotOnDisk = 1
`
	outcome := p.Apply(context.Background(), "task-1", patch)
	if outcome.Applied || outcome.Reason != ReasonApplyFailed {
		t.Fatalf("outcome = %+v, want apply-failed", outcome)
	}
	if outcome.PatchPath == "" || outcome.InstructionPath == "" {
		t.Fatalf("failed apply should persist patch and instructions: %+v", outcome)
	}

	doc, err := os.ReadFile(outcome.InstructionPath)
	if err != nil {
		t.Fatalf("reading instructions: %v", err)
	}
	for _, want := range []string{
		"tests/a.test.ts",
		"git apply --ignore-whitespace",
		"git apply --check",
	} {
		if !strings.Contains(string(doc), want) {
			t.Errorf("instructions should mention %q", want)
		}
	}

	// The pending copy was moved, not duplicated.
	entries, err := os.ReadDir(filepath.Join(root, ".dontforgetest", "pending"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("pending dir should be empty after persist, got %d entries", len(entries))
	}

	if len(notifier.warnings) == 0 {
		t.Error("user should be warned about the failed apply")
	}

	// The original file is untouched.
	data, _ := os.ReadFile(filepath.Join(root, "tests", "a.test.ts"))
	if string(data) != "line1\nline2\n" {
		t.Errorf("file should be untouched, got %q", data)
	}
}

func TestApplyNewTestFile(t *testing.T) {
	root := initRepo(t)
	p, _, _ := newTestPipeline(t, root)

	patch := `diff --git a/tests/new.test.ts b/tests/new.test.ts
new file mode 100644
--- /dev/null
+++ b/tests/new.test.ts
@@ -0,0 +1,2 @@
+import { test } from "vitest"
+test("works", () => {})
`
	outcome := p.Apply(context.Background(), "task-1", patch)
	if !outcome.Applied {
		t.Fatalf("outcome = %+v, want applied", outcome)
	}
	if _, err := os.Stat(filepath.Join(root, "tests", "new.test.ts")); err != nil {
		t.Errorf("new test file should exist: %v", err)
	}
}

func TestApplyExceptionOnStoreFault(t *testing.T) {
	root := initRepo(t)

	// A regular file where the pending directory belongs makes the first
	// store write fail; the fault must surface as the exception outcome,
	// not as a panic or an error return.
	stateDir := filepath.Join(root, ".dontforgetest")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, "pending"), []byte("in the way"), 0644); err != nil {
		t.Fatal(err)
	}

	p, _, notifier := newTestPipeline(t, root)
	outcome := p.Apply(context.Background(), "task-1", testPatch)

	if outcome.Applied || outcome.Reason != ReasonException {
		t.Fatalf("outcome = %+v, want exception", outcome)
	}
	if outcome.PatchPath == "" {
		t.Fatal("raw patch should still be persisted when the patches dir is writable")
	}
	if _, err := os.Stat(outcome.PatchPath); err != nil {
		t.Errorf("persisted patch should exist: %v", err)
	}
	if len(notifier.warnings) == 0 {
		t.Error("user should be warned about the fault")
	}

	// The repository itself is untouched.
	data, _ := os.ReadFile(filepath.Join(root, "tests", "a.test.ts"))
	if string(data) != "line1\nline2\n" {
		t.Errorf("file should be untouched, got %q", data)
	}
}

func TestApplyExceptionWhenNothingIsWritable(t *testing.T) {
	root := initRepo(t)

	// The whole state root is a regular file, so even the best-effort
	// persist fails. The outcome still reaches exception cleanly.
	if err := os.WriteFile(filepath.Join(root, ".dontforgetest"), []byte("blocked"), 0644); err != nil {
		t.Fatal(err)
	}

	p, _, notifier := newTestPipeline(t, root)
	outcome := p.Apply(context.Background(), "task-1", testPatch)

	if outcome.Applied || outcome.Reason != ReasonException {
		t.Fatalf("outcome = %+v, want exception", outcome)
	}
	if outcome.PatchPath != "" {
		t.Errorf("PatchPath = %q, want empty when nothing could be saved", outcome.PatchPath)
	}
	if len(notifier.warnings) == 0 {
		t.Error("user should be warned that the patch could not be saved")
	}
}

func TestExceptionKeepsExistingPersistedCopy(t *testing.T) {
	root := initRepo(t)
	p, _, _ := newTestPipeline(t, root)

	// When the fault happens after the patch already reached a permanent
	// location, the boundary must not write a second copy.
	partial := Outcome{
		TestPaths: []string{"tests/a.test.ts"},
		PatchPath: filepath.Join(root, "already", "saved.patch"),
	}
	outcome := p.exception("task-1", testPatch, partial, errors.New("instructions write failed"))

	if outcome.Reason != ReasonException {
		t.Fatalf("Reason = %s, want exception", outcome.Reason)
	}
	if outcome.PatchPath != partial.PatchPath {
		t.Errorf("PatchPath = %q, want the already-persisted %q", outcome.PatchPath, partial.PatchPath)
	}
	if len(outcome.TestPaths) != 1 || outcome.TestPaths[0] != "tests/a.test.ts" {
		t.Errorf("TestPaths = %v", outcome.TestPaths)
	}

	// No new permanent copy appears in the store.
	if _, err := os.Stat(filepath.Join(root, ".dontforgetest")); !os.IsNotExist(err) {
		t.Error("store should not be written when a persisted copy already exists")
	}
}

func TestApplyWithoutOptionalSinks(t *testing.T) {
	root := initRepo(t)
	p := New(root, gitcmd.NewRunner(30*time.Second), artifact.NewStore(filepath.Join(root, ".dontforgetest")))

	// Nil Events and Notifier must not panic anywhere in the pipeline.
	outcome := p.Apply(context.Background(), "task-1", testPatch)
	if !outcome.Applied {
		t.Fatalf("outcome = %+v, want applied", outcome)
	}
}
