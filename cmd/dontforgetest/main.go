// Command dontforgetest accepts AI-generated test patches into a git
// repository: it analyzes diffs, repairs hunk headers, and applies patches
// with graceful degradation.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kinopeee/dontforgetest-sub007/internal/apply"
	"github.com/kinopeee/dontforgetest-sub007/internal/artifact"
	"github.com/kinopeee/dontforgetest-sub007/internal/buildinfo"
	"github.com/kinopeee/dontforgetest-sub007/internal/config"
	errs "github.com/kinopeee/dontforgetest-sub007/internal/errors"
	"github.com/kinopeee/dontforgetest-sub007/internal/gitcmd"
	"github.com/kinopeee/dontforgetest-sub007/internal/notify"
	"github.com/kinopeee/dontforgetest-sub007/internal/testpath"
	"github.com/kinopeee/dontforgetest-sub007/internal/trace"
	"github.com/kinopeee/dontforgetest-sub007/internal/worktree"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errs.GetExitCode(err))
	}
}

var repoFlag string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dontforgetest",
		Short:         "Safely accept AI-generated test patches into a git repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&repoFlag, "repo", "C", ".", "repository root to operate on")

	root.AddCommand(
		newApplyCmd(),
		newAnalyzeCmd(),
		newNormalizeCmd(),
		newWorktreeCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the dontforgetest version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(buildinfo.Version)
		},
	}
}

// app bundles the components a command needs, built once per invocation.
type app struct {
	root     string
	cfg      config.Config
	runner   *gitcmd.Runner
	store    *artifact.Store
	recorder *trace.Recorder
	notifier *notify.Notifier
	pipeline *apply.Pipeline
	worktree *worktree.Manager
}

func newApp() (*app, error) {
	root, err := filepath.Abs(repoFlag)
	if err != nil {
		return nil, errs.NewValidationError(fmt.Sprintf("invalid repository path %q", repoFlag))
	}
	if _, err := os.Stat(root); err != nil {
		return nil, errs.NewValidationError(fmt.Sprintf("repository path %q does not exist", repoFlag))
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, errs.NewConfigError("failed to load configuration", err)
	}

	runner := gitcmd.NewRunner(time.Duration(cfg.GitTimeoutSeconds) * time.Second)
	stateDir := filepath.Join(root, cfg.StateDir)
	store := artifact.NewStore(stateDir)
	recorder := trace.NewRecorder(stateDir)
	notifier := notify.New()

	pipeline := apply.New(root, runner, store)
	pipeline.Classify = testpath.New(cfg.TestPaths.Include, cfg.TestPaths.Exclude)
	pipeline.Events = recorder
	pipeline.Notifier = notifier

	return &app{
		root:     root,
		cfg:      cfg,
		runner:   runner,
		store:    store,
		recorder: recorder,
		notifier: notifier,
		pipeline: pipeline,
		worktree: worktree.NewManager(root, runner),
	}, nil
}

func (a *app) close() {
	_ = a.recorder.Close()
}

// readPatch reads patch text from the given file, or stdin when the
// argument is empty or "-".
func readPatch(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errs.NewGeneralError("failed to read patch from stdin", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errs.NewValidationError(fmt.Sprintf("cannot read patch file %q: %v", path, err))
	}
	return string(data), nil
}
