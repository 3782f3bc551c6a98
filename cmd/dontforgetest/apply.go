package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kinopeee/dontforgetest-sub007/internal/apply"
	errs "github.com/kinopeee/dontforgetest-sub007/internal/errors"
)

func newApplyCmd() *cobra.Command {
	var taskID string

	cmd := &cobra.Command{
		Use:   "apply [patch-file]",
		Short: "Apply a generated test patch against the repository",
		Long: `Apply reads a unified diff (from a file or stdin), verifies that it
touches only test files, repairs its hunk headers, and applies it with
escalating tolerance. Patches that cannot be applied are persisted with
recovery instructions instead of being discarded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patchFile := ""
			if len(args) == 1 {
				patchFile = args[0]
			}
			patch, err := readPatch(patchFile)
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if taskID == "" {
				taskID = uuid.NewString()
			}

			outcome := a.pipeline.Apply(cmd.Context(), taskID, patch)
			printOutcome(outcome)

			switch outcome.Reason {
			case apply.ReasonApplied:
				return nil
			case apply.ReasonException:
				return errs.NewGeneralError("patch application hit an unexpected fault", nil)
			default:
				return errs.NewValidationError(fmt.Sprintf("patch not applied: %s", outcome.Reason))
			}
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "task identifier (default: random UUID)")
	return cmd
}

func printOutcome(outcome apply.Outcome) {
	fmt.Printf("result: %s\n", outcome.Reason)
	for _, p := range outcome.TestPaths {
		fmt.Printf("  test: %s\n", p)
	}
	if outcome.PatchPath != "" {
		fmt.Printf("  patch saved: %s\n", outcome.PatchPath)
	}
	if outcome.InstructionPath != "" {
		fmt.Printf("  recovery instructions: %s\n", outcome.InstructionPath)
	}
}
