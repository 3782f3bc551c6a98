package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	errs "github.com/kinopeee/dontforgetest-sub007/internal/errors"
	"github.com/kinopeee/dontforgetest-sub007/internal/inbox"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the patch inbox and apply incoming patches",
		Long: `Watch monitors the configured inbox directory. Files named *.patch or
*.diff are read, run through the apply pipeline, and removed. The file
name stem becomes the task identifier. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			inboxDir := a.cfg.Inbox.Dir
			if !filepath.IsAbs(inboxDir) {
				inboxDir = filepath.Join(a.root, inboxDir)
			}

			watcher := inbox.NewWatcher(inboxDir, func(taskID, patchText string) {
				outcome := a.pipeline.Apply(ctx, taskID, patchText)
				fmt.Printf("[%s] %s\n", taskID, outcome.Reason)
			})

			a.notifier.Infof("watching %s", inboxDir)
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return errs.NewGeneralError("inbox watcher failed", err)
			}
			return nil
		},
	}
}
