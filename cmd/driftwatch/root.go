package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/events"
	"github.com/boshu2/driftwatch/internal/formatter"
	"github.com/boshu2/driftwatch/internal/gitdiff"
	"github.com/boshu2/driftwatch/internal/state"
	"github.com/boshu2/driftwatch/internal/taskgraph"
)

// version is stamped at release time via -ldflags.
var version = "dev"

// Exit codes. Drift is a distinct outcome so scripts can branch on it
// without parsing output.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
	exitDrift = 3
)

// errDriftFound marks a successful check whose verdict was not green.
var errDriftFound = errors.New("drift found")

// usageError wraps validation failures that should exit 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

var (
	// Global flags
	flagDir     string
	flagOutput  string
	flagVerbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "Contract drift detection for workgraph tasks",
	Long: `driftwatch audits in-progress workgraph tasks against the contract
embedded in each task description, scores the working tree against it,
and escalates sustained drift into non-blocking follow-up tasks.

Core Commands:
  check        Check one task and report drift
  scan         Check every in-progress task
  watch        Continuous scan + redirect loop
  monitor      Append drift reports to the event log
  redirect     Consume the event log and act on it
  orchestrate  Run monitor and redirect together

Exit codes: 0 ok, 1 error, 2 usage, 3 drift found.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command and maps the outcome to an exit code.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if errors.Is(err, errDriftFound) {
		os.Exit(exitDrift)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) {
		os.Exit(exitUsage)
	}
	os.Exit(exitError)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "Workgraph directory (default: nearest .workgraph upward)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "Output format (text, json, jsonl, markdown)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
}

// initLogger builds the process logger: structured, stderr only, debug when
// --verbose. Report output goes to stdout and never through the logger.
func initLogger() error {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if flagVerbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = l
	return nil
}

// appEnv bundles the collaborators a command needs: the task graph, tool
// config and state under <project>/.driftwatch/, and the event log.
type appEnv struct {
	graph   *taskgraph.Graph
	cfg     *config.Config
	toolDir string
	states  *state.Store
	events  *events.Log
}

func newAppEnv() (*appEnv, error) {
	wgDir, err := taskgraph.FindDir(flagDir, ".")
	if err != nil {
		return nil, err
	}
	graph, err := taskgraph.Open(wgDir)
	if err != nil {
		return nil, err
	}
	toolDir := filepath.Join(graph.ProjectDir(), ".driftwatch")
	cfg, err := config.Load(toolDir)
	if err != nil {
		return nil, err
	}
	return &appEnv{
		graph:   graph,
		cfg:     cfg,
		toolDir: toolDir,
		states:  state.NewStore(toolDir),
		events:  events.NewLog(toolDir),
	}, nil
}

// collector resolves the git repository enclosing the workgraph. Git being
// unreachable is a collaborator failure, reported as such.
func (e *appEnv) collector(ctx context.Context) (*gitdiff.Collector, error) {
	root, err := gitdiff.FindRoot(ctx, e.graph.ProjectDir())
	if err != nil {
		return nil, fmt.Errorf("locate git repository: %w", err)
	}
	return gitdiff.NewCollector(root), nil
}

// outputFormat is the --output flag when given, else the configured default.
func (e *appEnv) outputFormat() string {
	if flagOutput != "" {
		return flagOutput
	}
	return e.cfg.Output
}

func (e *appEnv) reportFormatter() (formatter.ReportFormatter, error) {
	f, err := formatter.ForOutput(e.outputFormat())
	if err != nil {
		return nil, usageError{err}
	}
	return f, nil
}
