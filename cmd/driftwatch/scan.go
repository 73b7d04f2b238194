package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/drift"
	"github.com/boshu2/driftwatch/internal/monitor"
	"github.com/boshu2/driftwatch/internal/redirect"
)

var (
	scanWriteLog  bool
	scanFollowups bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Check every in-progress task",
	Long: `Run one drift check for each in-progress task. A failure on one task
(for example an unparseable contract) is reported and the remaining
tasks are still checked.

Exits 3 when any task drifted.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanWriteLog, "write-log", false, "Append summary lines to task logs when verdicts change")
	scanCmd.Flags().BoolVar(&scanFollowups, "create-followups", false, "Create follow-up tasks for drift findings")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	repo, err := env.collector(ctx)
	if err != nil {
		return err
	}

	checker := monitor.NewChecker(env.graph, repo, env.cfg.Rules, logger)
	reports, failures, err := checker.CheckAll(ctx)
	if err != nil {
		return err
	}

	f, err := env.reportFormatter()
	if err != nil {
		return err
	}

	r := redirect.New(env.graph, env.states, logger)
	opts := redirect.Options{WriteLog: scanWriteLog, CreateFollowups: scanFollowups}

	drifted := false
	for _, report := range reports {
		if _, err := r.Apply(report, opts); err != nil {
			return err
		}
		if err := f.Format(os.Stdout, report); err != nil {
			return err
		}
		if report.Score != drift.ScoreGreen {
			drifted = true
		}
	}

	for _, fail := range failures {
		logger.Warn("task skipped", zap.String("task", fail.TaskID), zap.Error(fail.Err))
	}

	return scanResult(drifted, failures)
}

// scanResult maps a completed scan to its exit outcome. Drift wins over
// per-task failures; failures without drift still surface as an operational
// error so callers never mistake a partially failed scan for a clean one.
func scanResult(drifted bool, failures []monitor.TaskError) error {
	if drifted {
		return errDriftFound
	}
	if len(failures) > 0 {
		ids := make([]string, len(failures))
		for i, fail := range failures {
			ids[i] = fail.TaskID
		}
		return fmt.Errorf("%d task(s) failed to check: %s", len(failures), strings.Join(ids, ", "))
	}
	return nil
}
