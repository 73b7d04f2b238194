package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/drift"
	"github.com/boshu2/driftwatch/internal/monitor"
	"github.com/boshu2/driftwatch/internal/redirect"
)

var (
	watchInterval  int
	watchWriteLog  bool
	watchFollowups bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuous scan and redirect loop",
	Long: `Scan every in-progress task on an interval and apply redirect logic
in the same pass, without going through the event log. This is the
single-process alternative to running monitor and redirect separately.

Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchInterval, "interval", 0, "Seconds between passes (default from config)")
	watchCmd.Flags().BoolVar(&watchWriteLog, "write-log", true, "Append summary lines to task logs when verdicts change")
	watchCmd.Flags().BoolVar(&watchFollowups, "create-followups", true, "Create follow-up tasks for drift findings")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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
	r := redirect.New(env.graph, env.states, logger)
	opts := redirect.Options{WriteLog: watchWriteLog, CreateFollowups: watchFollowups}

	interval := watchInterval
	if interval <= 0 {
		interval = env.cfg.MonitorInterval
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	logger.Info("watching", zap.Int("seconds", interval))
	for {
		watchPass(ctx, checker, r, opts)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func watchPass(ctx context.Context, checker *monitor.Checker, r *redirect.Redirector, opts redirect.Options) {
	reports, failures, err := checker.CheckAll(ctx)
	if err != nil {
		logger.Error("scan failed", zap.Error(err))
		return
	}
	for _, fail := range failures {
		logger.Warn("task skipped", zap.String("task", fail.TaskID), zap.Error(fail.Err))
	}
	for _, report := range reports {
		if _, err := r.Apply(report, opts); err != nil {
			logger.Error("redirect failed", zap.String("task", report.TaskID), zap.Error(err))
			continue
		}
		if report.Score != drift.ScoreGreen {
			logger.Info("drift",
				zap.String("task", report.TaskID),
				zap.String("score", string(report.Score)),
				zap.Strings("kinds", report.KindStrings()))
		}
	}
}
