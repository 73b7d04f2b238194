package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/monitor"
)

var (
	monitorInterval int
	monitorOnce     bool
	monitorTask     string
	monitorOnChange bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Append drift reports to the event log",
	Long: `Run the report producer: check in-progress tasks on an interval (or on
file changes with --on-change) and append every report to the event log
at .driftwatch/events.jsonl. The monitor never writes to the task graph;
pair it with 'redirect' or run both via 'orchestrate'.

Examples:
  driftwatch monitor --interval 30
  driftwatch monitor --once --task wg-042
  driftwatch monitor --on-change`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().IntVar(&monitorInterval, "interval", 0, "Seconds between passes (default from config)")
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "Run a single pass and exit")
	monitorCmd.Flags().StringVar(&monitorTask, "task", "", "Restrict to one task id")
	monitorCmd.Flags().BoolVar(&monitorOnChange, "on-change", false, "Trigger passes on file changes instead of polling")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorOnce && monitorOnChange {
		return usagef("--once and --on-change are mutually exclusive")
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := env.collector(ctx)
	if err != nil {
		return err
	}
	checker := monitor.NewChecker(env.graph, repo, env.cfg.Rules, logger)
	m := monitor.New(checker, env.events, logger)
	m.TaskID = monitorTask

	if monitorOnce {
		_, err := m.RunOnce(ctx)
		return err
	}

	if monitorOnChange {
		debounce := time.Duration(env.cfg.DebounceMillis) * time.Millisecond
		logger.Info("monitoring on change",
			zap.String("root", env.graph.ProjectDir()),
			zap.Duration("debounce", debounce))
		return ignoreShutdown(m.RunOnChange(ctx, env.graph.ProjectDir(), debounce))
	}

	interval := monitorInterval
	if interval <= 0 {
		interval = env.cfg.MonitorInterval
	}
	logger.Info("monitoring on interval", zap.Int("seconds", interval))
	return ignoreShutdown(m.Run(ctx, time.Duration(interval)*time.Second))
}

// ignoreShutdown treats context cancellation as a clean daemon exit.
func ignoreShutdown(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
