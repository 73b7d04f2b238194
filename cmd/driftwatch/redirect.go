package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/redirect"
)

var (
	redirectInterval  int
	redirectOnce      bool
	redirectFromStart bool
	redirectWriteLog  bool
	redirectFollowups bool
)

var redirectCmd = &cobra.Command{
	Use:   "redirect",
	Short: "Consume the event log and act on drift",
	Long: `Run the event consumer: drain reports the monitor appended, update
per-task drift state, write summary lines to task logs, and create
follow-up or pit-stop tasks for sustained drift.

The consumer resumes from its persisted cursor; --from-start replays
the whole log (actions stay idempotent, so replays are safe).

Examples:
  driftwatch redirect --interval 5 --write-log --create-followups
  driftwatch redirect --once --from-start`,
	Args: cobra.NoArgs,
	RunE: runRedirect,
}

func init() {
	redirectCmd.Flags().IntVar(&redirectInterval, "interval", 0, "Seconds between drains (default from config)")
	redirectCmd.Flags().BoolVar(&redirectOnce, "once", false, "Drain once and exit")
	redirectCmd.Flags().BoolVar(&redirectFromStart, "from-start", false, "Replay the event log from the beginning")
	redirectCmd.Flags().BoolVar(&redirectWriteLog, "write-log", true, "Append summary lines to task logs when verdicts change")
	redirectCmd.Flags().BoolVar(&redirectFollowups, "create-followups", true, "Create follow-up tasks for drift findings")
	rootCmd.AddCommand(redirectCmd)
}

func runRedirect(cmd *cobra.Command, args []string) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := redirect.New(env.graph, env.states, logger)
	opts := redirect.Options{WriteLog: redirectWriteLog, CreateFollowups: redirectFollowups}

	if redirectOnce {
		n, err := r.Drain(env.events, redirectFromStart, opts)
		if err != nil {
			return err
		}
		logger.Info("drained", zap.Int("events", n))
		return nil
	}

	interval := redirectInterval
	if interval <= 0 {
		interval = env.cfg.RedirectInterval
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	// --from-start applies to the first drain only; later drains resume.
	fromStart := redirectFromStart
	for {
		if _, err := r.Drain(env.events, fromStart, opts); err != nil {
			logger.Error("drain failed", zap.Error(err))
		}
		fromStart = false
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
