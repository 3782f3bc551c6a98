package main

import (
	"fmt"

	"github.com/spf13/cobra"

	errs "github.com/kinopeee/dontforgetest-sub007/internal/errors"
)

func newWorktreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worktree",
		Short: "Manage ephemeral worktrees for patch generation",
	}
	cmd.AddCommand(newWorktreeAddCmd(), newWorktreeRemoveCmd())
	return cmd
}

func newWorktreeAddCmd() *cobra.Command {
	var ref string

	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Create a detached worktree for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if ref == "" {
				ref = a.cfg.BaseRef
			}
			dir, err := a.worktree.Create(cmd.Context(), args[0], ref)
			if err != nil {
				return errs.NewGitError("failed to create worktree", err)
			}
			fmt.Println(dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&ref, "ref", "", "ref to check out (default: configured base ref)")
	return cmd
}

func newWorktreeRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Tear down a task's worktree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			a.worktree.Remove(cmd.Context(), args[0])
			return nil
		},
	}
}
