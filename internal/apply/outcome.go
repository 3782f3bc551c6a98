package apply

// Reason is the terminal classification of a patch-application run. The
// values form a fixed taxonomy; they are returned as data, never thrown.
type Reason string

const (
	// ReasonEmptyPatch: the trimmed patch text was empty.
	ReasonEmptyPatch Reason = "empty-patch"
	// ReasonNoDiffPaths: no changed paths could be parsed out of the text.
	ReasonNoDiffPaths Reason = "no-diff-paths"
	// ReasonNoTestPaths: the diff parses but touches no test-like paths.
	ReasonNoTestPaths Reason = "no-test-paths"
	// ReasonNonTestPaths: at least one touched path is not test-like.
	// Mixed patches are rejected wholesale.
	ReasonNonTestPaths Reason = "contains-non-test-paths"
	// ReasonApplyFailed: every apply strategy and heuristic failed; the
	// patch and a recovery document were persisted.
	ReasonApplyFailed Reason = "apply-failed"
	// ReasonException: an unexpected filesystem fault was caught at the
	// pipeline boundary.
	ReasonException Reason = "exception"
	// ReasonApplied: the tree now contains the patch's post-image.
	ReasonApplied Reason = "applied"
)

// Outcome is the immutable result of one pipeline run.
type Outcome struct {
	Applied   bool
	Reason    Reason
	TestPaths []string
	// PatchPath is where the patch was persisted, set on every non-success
	// outcome that had patch content.
	PatchPath string
	// InstructionPath is the recovery document, set on apply-failed.
	InstructionPath string
}
