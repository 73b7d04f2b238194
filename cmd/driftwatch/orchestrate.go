package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boshu2/driftwatch/internal/monitor"
	"github.com/boshu2/driftwatch/internal/redirect"
)

var (
	orchMonitorInterval  int
	orchRedirectInterval int
	orchOnChange         bool
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Run monitor and redirect together",
	Long: `Run the full pipeline in one process: the monitor goroutine appends
reports to the event log, the redirect goroutine drains them and acts.
The monitor is the log's only writer and the redirector the only task
graph mutator, so the two sides never contend.

Runs until interrupted; if either side fails, both stop.`,
	Args: cobra.NoArgs,
	RunE: runOrchestrate,
}

func init() {
	orchestrateCmd.Flags().IntVar(&orchMonitorInterval, "monitor-interval", 0, "Seconds between monitor passes (default from config)")
	orchestrateCmd.Flags().IntVar(&orchRedirectInterval, "redirect-interval", 0, "Seconds between redirect drains (default from config)")
	orchestrateCmd.Flags().BoolVar(&orchOnChange, "on-change", false, "Drive the monitor from file changes instead of polling")
	rootCmd.AddCommand(orchestrateCmd)
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
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
	r := redirect.New(env.graph, env.states, logger)
	opts := redirect.Options{WriteLog: true, CreateFollowups: true}

	monInterval := orchMonitorInterval
	if monInterval <= 0 {
		monInterval = env.cfg.MonitorInterval
	}
	redInterval := orchRedirectInterval
	if redInterval <= 0 {
		redInterval = env.cfg.RedirectInterval
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if orchOnChange {
			debounce := time.Duration(env.cfg.DebounceMillis) * time.Millisecond
			return m.RunOnChange(ctx, env.graph.ProjectDir(), debounce)
		}
		return m.Run(ctx, time.Duration(monInterval)*time.Second)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Duration(redInterval) * time.Second)
		defer ticker.Stop()
		for {
			if _, err := r.Drain(env.events, false, opts); err != nil {
				logger.Error("drain failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})

	logger.Info("orchestrating",
		zap.Int("monitor_interval", monInterval),
		zap.Int("redirect_interval", redInterval),
		zap.Bool("on_change", orchOnChange))
	return ignoreShutdown(g.Wait())
}
