package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kinopeee/dontforgetest-sub007/internal/diff"
	"github.com/kinopeee/dontforgetest-sub007/internal/testpath"
)

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [patch-file]",
		Short: "Show the files a diff touches and their test/non-test partition",
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

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			analysis := diff.ParseChangedFiles(patch)
			if len(analysis.Files) == 0 {
				fmt.Println("no changed files detected")
				return nil
			}

			classify := testpath.New(a.cfg.TestPaths.Include, a.cfg.TestPaths.Exclude)
			isTest := make(map[string]bool)
			for _, p := range classify(analysis.Paths()) {
				isTest[p] = true
			}

			for _, f := range analysis.Files {
				kind := "non-test"
				if isTest[f.Path] {
					kind = "test"
				}
				if f.Type == diff.ChangeRenamed {
					fmt.Printf("%-10s %-8s %s (from %s)\n", f.Type, kind, f.Path, f.OldPath)
					continue
				}
				fmt.Printf("%-10s %-8s %s\n", f.Type, kind, f.Path)
			}
			return nil
		},
	}
}
