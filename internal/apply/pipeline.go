// Package apply decides whether and how an agent-generated patch reaches
// the repository tree, degrading gracefully when git cannot take it.
package apply

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kinopeee/dontforgetest-sub007/internal/artifact"
	"github.com/kinopeee/dontforgetest-sub007/internal/diff"
	"github.com/kinopeee/dontforgetest-sub007/internal/gitcmd"
	"github.com/kinopeee/dontforgetest-sub007/internal/testpath"
)

// minIdentifierLen is the shortest trimmed addition line treated as a
// distinguishing identifier by the already-present heuristic.
const minIdentifierLen = 16

// EventSink receives fire-and-forget trace events at pipeline decision
// points.
type EventSink interface {
	Log(taskID, level, message string)
	Logf(taskID, level, format string, args ...any)
	Decide(taskID, rule string, conditions map[string]any, result string)
}

// UserNotifier surfaces warnings and info to the user.
type UserNotifier interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// Pipeline applies patches against a repository root with an all-or-nothing
// test-path policy and escalating apply tolerance.
type Pipeline struct {
	RepoRoot string
	Runner   *gitcmd.Runner
	Store    *artifact.Store
	Classify testpath.Classifier

	// Events and Notifier are optional side-effect surfaces.
	Events   EventSink
	Notifier UserNotifier
}

// New returns a Pipeline with the default classifier.
func New(repoRoot string, runner *gitcmd.Runner, store *artifact.Store) *Pipeline {
	return &Pipeline{
		RepoRoot: repoRoot,
		Runner:   runner,
		Store:    store,
		Classify: testpath.Classify,
	}
}

// attempt is one apply strategy's diagnostic record, kept for the recovery
// document.
type attempt struct {
	name   string
	output string
}

// Apply runs the full pipeline for one patch. It always reaches a terminal
// Outcome; filesystem faults anywhere inside are converted to
// Reason=exception at this boundary.
func (p *Pipeline) Apply(ctx context.Context, taskID, patchText string) Outcome {
	outcome, err := p.run(ctx, taskID, patchText)
	if err == nil {
		return outcome
	}
	return p.exception(taskID, patchText, outcome, err)
}

// exception converts a pipeline fault into the terminal exception outcome.
// partial carries whatever run managed to record before failing; when it
// already names a persisted copy of the patch, no second copy is written.
func (p *Pipeline) exception(taskID, patchText string, partial Outcome, err error) Outcome {
	p.logf(taskID, "error", "patch application aborted: %v", err)

	out := Outcome{
		Reason:    ReasonException,
		TestPaths: partial.TestPaths,
		PatchPath: partial.PatchPath,
	}
	if out.PatchPath != "" {
		p.warnf("Patch could not be processed (%v). Patch remains at %s", err, out.PatchPath)
		return out
	}
	if strings.TrimSpace(patchText) == "" {
		return out
	}
	if saved, perr := p.Store.PersistText(taskID, patchText); perr == nil {
		out.PatchPath = saved
		p.warnf("Patch could not be processed (%v). Saved to %s", err, saved)
	} else {
		p.warnf("Patch could not be processed (%v) and could not be saved: %v", err, perr)
	}
	return out
}

// run is the pipeline body. Only unexpected filesystem failures are
// returned as errors; subprocess failures are ordinary data.
func (p *Pipeline) run(ctx context.Context, taskID, patchText string) (Outcome, error) {
	if strings.TrimSpace(patchText) == "" {
		p.decide(taskID, "classify patch", nil, string(ReasonEmptyPatch))
		return Outcome{Reason: ReasonEmptyPatch}, nil
	}

	analysis := diff.ParseChangedFiles(patchText)
	paths := analysis.Paths()
	if len(paths) == 0 {
		saved, err := p.Store.PersistText(taskID, patchText)
		if err != nil {
			return Outcome{}, err
		}
		p.decide(taskID, "classify patch", map[string]any{"paths": 0}, string(ReasonNoDiffPaths))
		p.warnf("Generated output is not a readable diff. Saved to %s", saved)
		return Outcome{Reason: ReasonNoDiffPaths, PatchPath: saved}, nil
	}

	testPaths := p.classify(paths)
	if len(testPaths) == 0 {
		saved, err := p.Store.PersistText(taskID, patchText)
		if err != nil {
			return Outcome{}, err
		}
		p.decide(taskID, "classify patch", map[string]any{"paths": len(paths), "test_paths": 0}, string(ReasonNoTestPaths))
		p.warnf("Patch touches no test files. Saved to %s", saved)
		return Outcome{Reason: ReasonNoTestPaths, PatchPath: saved}, nil
	}

	if len(testPaths) < len(paths) {
		// All-or-nothing: splitting a unified diff into sub-patches risks
		// corrupting hunk offsets, so mixed patches are rejected whole.
		saved, err := p.Store.PersistText(taskID, patchText)
		if err != nil {
			return Outcome{}, err
		}
		p.decide(taskID, "all-or-nothing test path policy", map[string]any{
			"paths":      len(paths),
			"test_paths": len(testPaths),
		}, string(ReasonNonTestPaths))
		for _, nonTest := range nonTestPaths(paths, testPaths) {
			p.warnf("Patch touches non-test file %q; nothing was applied.", nonTest)
		}
		p.warnf("Patch saved to %s", saved)
		return Outcome{Reason: ReasonNonTestPaths, TestPaths: testPaths, PatchPath: saved}, nil
	}

	normalized, repaired := diff.NormalizeHunkCounts(patchText)
	if repaired {
		p.logf(taskID, "info", "repaired hunk header counts before apply")
	}

	pendingPath, err := p.Store.WritePending(taskID, normalized)
	if err != nil {
		return Outcome{}, err
	}

	outcome, attempts := p.tryApply(ctx, taskID, pendingPath, normalized, testPaths)
	if outcome.Applied {
		if err := p.Store.Discard(pendingPath); err != nil {
			return Outcome{TestPaths: testPaths, PatchPath: pendingPath}, err
		}
		return outcome, nil
	}

	// Everything failed: keep the patch and leave the user a trail.
	persisted, err := p.Store.Persist(pendingPath, taskID)
	if err != nil {
		return Outcome{TestPaths: testPaths, PatchPath: pendingPath}, err
	}
	doc := recoveryDocument(taskID, persisted, testPaths, attempts)
	instructions, err := p.Store.WriteInstructions(taskID, doc)
	if err != nil {
		return Outcome{TestPaths: testPaths, PatchPath: persisted}, err
	}

	p.decide(taskID, "apply with escalating tolerance", map[string]any{
		"attempts": len(attempts),
	}, string(ReasonApplyFailed))
	p.warnf("Could not apply generated patch. Patch saved to %s, recovery instructions in %s", persisted, instructions)

	return Outcome{
		Reason:          ReasonApplyFailed,
		TestPaths:       testPaths,
		PatchPath:       persisted,
		InstructionPath: instructions,
	}, nil
}

// tryApply walks the strategy ladder: strict check, whitespace-tolerant
// check, the real apply matching whichever check passed, then the
// reverse-check idempotence probe and the content-presence heuristic.
func (p *Pipeline) tryApply(ctx context.Context, taskID, pendingPath, normalized string, testPaths []string) (Outcome, []attempt) {
	var attempts []attempt
	applied := Outcome{Applied: true, Reason: ReasonApplied, TestPaths: testPaths}

	strict := p.Runner.Run(ctx, p.RepoRoot, "apply", "--check", pendingPath)
	if strict.OK {
		res := p.Runner.Run(ctx, p.RepoRoot, "apply", pendingPath)
		if res.OK {
			p.decide(taskID, "apply with escalating tolerance", map[string]any{"strategy": "strict"}, string(ReasonApplied))
			return applied, nil
		}
		attempts = append(attempts, attempt{"git apply", res.Output})
	} else {
		attempts = append(attempts, attempt{"git apply --check", strict.Output})

		ws := p.Runner.Run(ctx, p.RepoRoot, "apply", "--check", "--ignore-whitespace", pendingPath)
		if ws.OK {
			res := p.Runner.Run(ctx, p.RepoRoot, "apply", "--ignore-whitespace", pendingPath)
			if res.OK {
				p.decide(taskID, "apply with escalating tolerance", map[string]any{"strategy": "ignore-whitespace"}, string(ReasonApplied))
				return applied, nil
			}
			attempts = append(attempts, attempt{"git apply --ignore-whitespace", res.Output})
		} else {
			attempts = append(attempts, attempt{"git apply --check --ignore-whitespace", ws.Output})
		}
	}

	// Reverse-check: success means the tree already holds the post-image,
	// so a re-run after a crash stays idempotent.
	reverse := p.Runner.Run(ctx, p.RepoRoot, "apply", "--reverse", "--check", "--ignore-whitespace", pendingPath)
	if reverse.OK {
		p.decide(taskID, "apply with escalating tolerance", map[string]any{"strategy": "reverse-check"}, string(ReasonApplied))
		p.logf(taskID, "info", "patch content already present; nothing to do")
		return applied, nil
	}
	attempts = append(attempts, attempt{"git apply --reverse --check --ignore-whitespace", reverse.Output})

	if p.contentAlreadyPresent(normalized) {
		p.decide(taskID, "apply with escalating tolerance", map[string]any{"strategy": "identifier-presence"}, string(ReasonApplied))
		p.logf(taskID, "info", "target files already contain the patch's additions")
		return applied, nil
	}

	return Outcome{}, attempts
}

// contentAlreadyPresent reports whether every distinguishing addition line
// of the patch is already on disk in its target file. It tolerates content
// that is logically present but cannot be reconciled byte-for-byte; a
// coincidental substring match is an accepted trade-off.
func (p *Pipeline) contentAlreadyPresent(patch string) bool {
	found := false
	for path, lines := range diff.AdditionsByFile(patch) {
		var identifiers []string
		for _, line := range lines {
			if t := strings.TrimSpace(line); len(t) >= minIdentifierLen {
				identifiers = append(identifiers, t)
			}
		}
		if len(identifiers) == 0 {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.RepoRoot, filepath.FromSlash(path)))
		if err != nil {
			return false
		}
		content := string(data)
		for _, id := range identifiers {
			if !strings.Contains(content, id) {
				return false
			}
		}
		found = true
	}
	return found
}

func (p *Pipeline) classify(paths []string) []string {
	if p.Classify != nil {
		return p.Classify(paths)
	}
	return testpath.Classify(paths)
}

func nonTestPaths(paths, testPaths []string) []string {
	isTest := make(map[string]bool, len(testPaths))
	for _, t := range testPaths {
		isTest[t] = true
	}
	var out []string
	for _, p := range paths {
		if !isTest[p] {
			out = append(out, p)
		}
	}
	return out
}

func (p *Pipeline) logf(taskID, level, format string, args ...any) {
	if p.Events != nil {
		p.Events.Logf(taskID, level, format, args...)
	}
}

func (p *Pipeline) decide(taskID, rule string, conditions map[string]any, result string) {
	if p.Events != nil {
		p.Events.Decide(taskID, rule, conditions, result)
	}
}

func (p *Pipeline) warnf(format string, args ...any) {
	if p.Notifier != nil {
		p.Notifier.Warnf(format, args...)
	}
}
