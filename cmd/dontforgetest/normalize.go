package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kinopeee/dontforgetest-sub007/internal/diff"
	errs "github.com/kinopeee/dontforgetest-sub007/internal/errors"
)

func newNormalizeCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "normalize [patch-file]",
		Short: "Repair hunk header line counts in a unified diff",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patchFile := ""
			if len(args) == 1 {
				patchFile = args[0]
			}
			patch, err := readPatch(patchFile)
			if err != nil {
				return err
			}

			normalized, changed := diff.NormalizeHunkCounts(patch)
			normalized = diff.CanonicalTrailingNewline(normalized)

			if write {
				if patchFile == "" || patchFile == "-" {
					return errs.NewValidationError("--write requires a patch file argument")
				}
				if err := os.WriteFile(patchFile, []byte(normalized), 0644); err != nil {
					return errs.NewGeneralError("failed to write normalized patch", err)
				}
			} else {
				fmt.Print(normalized)
			}

			if changed {
				fmt.Fprintln(os.Stderr, "hunk headers repaired")
			} else {
				fmt.Fprintln(os.Stderr, "hunk headers already consistent")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "rewrite the patch file in place")
	return cmd
}
