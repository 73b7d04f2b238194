// Package monitor produces drift reports: it checks in-progress tasks against
// their contracts and appends the resulting reports to the event log. The
// monitor never mutates the task graph; escalation belongs to the redirector.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/contract"
	"github.com/boshu2/driftwatch/internal/drift"
	"github.com/boshu2/driftwatch/internal/gitdiff"
	"github.com/boshu2/driftwatch/internal/taskgraph"
)

// Snapshotter supplies the current working-tree snapshot. Satisfied by
// *gitdiff.Collector.
type Snapshotter interface {
	WorkingState(ctx context.Context) (*gitdiff.Snapshot, error)
}

// Checker derives one report per task from the current working tree.
type Checker struct {
	graph  taskgraph.Store
	repo   Snapshotter
	rules  config.RulesConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewChecker wires a checker over the given collaborators. A nil logger is
// replaced with a no-op one.
func NewChecker(graph taskgraph.Store, repo Snapshotter, rules config.RulesConfig, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{graph: graph, repo: repo, rules: rules, logger: logger, now: time.Now}
}

// CheckTask runs one drift check for a single task. A task without a contract
// block is checked against Default() and flagged; an unparseable block is an
// error for this task only.
func (c *Checker) CheckTask(ctx context.Context, taskID string) (*drift.Report, error) {
	task, err := c.graph.GetTask(taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	return c.checkTask(ctx, task)
}

func (c *Checker) checkTask(ctx context.Context, task *taskgraph.Task) (*drift.Report, error) {
	ctr, found, err := contract.ParseDescription(task.Description)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.ID, err)
	}
	missing := !found
	if missing {
		ctr = contract.Default(task.Title, nil)
	}

	snap, err := c.repo.WorkingState(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect working state: %w", err)
	}

	report := drift.Assemble(task.ID, task.Title, ctr, snap, c.rules, missing, c.now())
	c.logger.Debug("checked task",
		zap.String("task", task.ID),
		zap.String("score", string(report.Score)),
		zap.Int("findings", len(report.Findings)))
	return report, nil
}

// TaskError is one isolated per-task failure from CheckAll.
type TaskError struct {
	TaskID string
	Err    error
}

func (e TaskError) Error() string { return fmt.Sprintf("task %s: %v", e.TaskID, e.Err) }

func (e TaskError) Unwrap() error { return e.Err }

// CheckAll checks every in-progress task. A failure on one task does not stop
// the others; failures come back alongside the successful reports.
func (c *Checker) CheckAll(ctx context.Context) ([]*drift.Report, []TaskError, error) {
	tasks, err := c.graph.ListTasks(taskgraph.StatusInProgress)
	if err != nil {
		return nil, nil, fmt.Errorf("list tasks: %w", err)
	}

	var (
		reports  []*drift.Report
		failures []TaskError
	)
	for _, task := range tasks {
		report, err := c.checkTask(ctx, task)
		if err != nil {
			c.logger.Warn("check failed", zap.String("task", task.ID), zap.Error(err))
			failures = append(failures, TaskError{TaskID: task.ID, Err: err})
			continue
		}
		reports = append(reports, report)
	}
	return reports, failures, nil
}
