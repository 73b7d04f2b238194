package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/driftwatch/internal/drift"
	"github.com/boshu2/driftwatch/internal/monitor"
	"github.com/boshu2/driftwatch/internal/redirect"
	"github.com/boshu2/driftwatch/internal/taskgraph"
)

var (
	checkTask      string
	checkWriteLog  bool
	checkFollowups bool
)

var checkCmd = &cobra.Command{
	Use:   "check [task-id]",
	Short: "Check one task against its contract",
	Long: `Run a single drift check for one task: parse the contract from the
task description, classify the current git working tree against it, and
print the report. With no task named, the sole in-progress task is
checked; zero or several in-progress tasks require an explicit id.

The drift state for the task is updated in the same pass, so repeated
checks track streaks exactly like the monitor/redirect loop does.

Examples:
  driftwatch check wg-042
  driftwatch check --task wg-042 --write-log -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkTask, "task", "", "Task id to check")
	checkCmd.Flags().BoolVar(&checkWriteLog, "write-log", false, "Append a summary line to the task log when the verdict changes")
	checkCmd.Flags().BoolVar(&checkFollowups, "create-followups", false, "Create follow-up tasks for drift findings")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}

	taskID := checkTask
	if taskID == "" && len(args) == 1 {
		taskID = args[0]
	}
	if taskID == "" {
		taskID, err = soleInProgressTask(env.graph)
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	repo, err := env.collector(ctx)
	if err != nil {
		return err
	}

	checker := monitor.NewChecker(env.graph, repo, env.cfg.Rules, logger)
	report, err := checker.CheckTask(ctx, taskID)
	if err != nil {
		return err
	}

	r := redirect.New(env.graph, env.states, logger)
	opts := redirect.Options{WriteLog: checkWriteLog, CreateFollowups: checkFollowups}
	if _, err := r.Apply(report, opts); err != nil {
		return err
	}

	f, err := env.reportFormatter()
	if err != nil {
		return err
	}
	if err := f.Format(os.Stdout, report); err != nil {
		return err
	}

	if report.Score != drift.ScoreGreen {
		return errDriftFound
	}
	return nil
}

// soleInProgressTask picks the task to check when none was named: exactly
// one in-progress task is unambiguous, anything else needs an explicit id.
func soleInProgressTask(graph taskgraph.Store) (string, error) {
	tasks, err := graph.ListTasks(taskgraph.StatusInProgress)
	if err != nil {
		return "", err
	}
	switch len(tasks) {
	case 0:
		return "", usagef("no in-progress tasks; name one with --task")
	case 1:
		return tasks[0].ID, nil
	default:
		ids := make([]string, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
		}
		return "", usagef("multiple in-progress tasks (%s); name one with --task", strings.Join(ids, ", "))
	}
}
