// Package redirect applies drift reports to the outside world: it owns the
// per-task state transition, writes summary log entries, and creates
// follow-up and pit-stop tasks. It is the only component that mutates the
// task graph or the drift state store, whether it runs in-process after a
// check or as a standalone consumer draining the event log.
package redirect

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/contract"
	"github.com/boshu2/driftwatch/internal/drift"
	"github.com/boshu2/driftwatch/internal/events"
	"github.com/boshu2/driftwatch/internal/state"
	"github.com/boshu2/driftwatch/internal/taskgraph"
)

// LogPrefix identifies driftwatch in task log entries.
const LogPrefix = "driftwatch:"

// Options control which side effects a Redirector pass performs. Detection
// always runs; actions are opt-in per invocation.
type Options struct {
	// WriteLog appends a summary entry to the origin task.
	WriteLog bool

	// CreateFollowups creates follow-up and pit-stop tasks (still gated by
	// the contract's auto_followups).
	CreateFollowups bool
}

// Outcome reports what one pass actually did.
type Outcome struct {
	State            state.DriftState
	LoggedSummary    bool
	FollowupsCreated []string
	PitStopTask      string
}

// Redirector consumes reports and issues side effects through the task
// graph. Exactly one Redirector stream should run per repository; callers
// must serialize passes per task.
type Redirector struct {
	graph  taskgraph.Store
	states *state.Store
	logger *zap.Logger
}

// New builds a Redirector. A nil logger disables logging.
func New(graph taskgraph.Store, states *state.Store, logger *zap.Logger) *Redirector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redirector{graph: graph, states: states, logger: logger}
}

// Apply runs one Redirector pass for one report: state transition, optional
// summary log, optional follow-ups, pit-stop escalation, state save. Any
// failure to reach the task graph aborts the pass before the state save, so
// persisted state only ever reflects applied actions.
func (r *Redirector) Apply(report *drift.Report, opts Options) (*Outcome, error) {
	prev := r.states.Load(report.TaskID)

	pitStopAfter := report.Contract.PitStopAfter
	if pitStopAfter <= 0 {
		pitStopAfter = contract.DefaultPitStopAfter
	}

	tr := state.Next(prev, report, pitStopAfter)
	out := &Outcome{State: tr.Next}

	// Repeated identical reports say nothing new; acting on every event
	// would spam the task log. A due pit stop always acts.
	act := tr.SignatureChanged || tr.PitStopDue

	if opts.WriteLog && act {
		if err := r.graph.AppendLog(report.TaskID, summaryLine(report)); err != nil {
			return nil, fmt.Errorf("write summary log: %w", err)
		}
		out.LoggedSummary = true
	}

	followupsEnabled := opts.CreateFollowups &&
		report.Contract.AutoFollowups &&
		report.Contract.Mode == contract.ModeCore

	if followupsEnabled && act {
		for _, kind := range report.Kinds() {
			spec := ForKind(kind, report)
			if spec == nil {
				continue
			}
			if err := r.graph.CreateTask(*spec); err != nil {
				return nil, fmt.Errorf("create %s follow-up: %w", kind, err)
			}
			out.FollowupsCreated = append(out.FollowupsCreated, spec.ID)
			r.logger.Debug("follow-up ensured",
				zap.String("task", report.TaskID),
				zap.String("followup", spec.ID))
		}

		if tr.PitStopDue {
			spec := PitStop(report, tr.Next.Streak)
			if err := r.graph.CreateTask(spec); err != nil {
				return nil, fmt.Errorf("create pit-stop: %w", err)
			}
			tr.Next.PitStopCreated = true
			out.State = tr.Next
			out.PitStopTask = spec.ID
			r.logger.Info("pit-stop created",
				zap.String("task", report.TaskID),
				zap.Int("streak", tr.Next.Streak))
		}
	}

	if err := r.states.Save(tr.Next); err != nil {
		return nil, err
	}
	return out, nil
}

// Drain consumes unprocessed events from the log, applying every report in
// order and advancing the persisted cursor only past fully processed
// events. fromStart ignores the stored cursor and replays the whole log.
func (r *Redirector) Drain(log *events.Log, fromStart bool, opts Options) (int, error) {
	offset := int64(0)
	if !fromStart {
		offset = r.states.LoadCursor()
	}

	envs, next, err := log.ReadSince(offset)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, env := range envs {
		if env.Report.TaskID == "" {
			continue
		}
		if _, err := r.Apply(env.Report, opts); err != nil {
			// Park the cursor at the failed event so the next pass
			// retries it instead of skipping it.
			if saveErr := r.states.SaveCursor(env.Seq); saveErr != nil {
				return processed, fmt.Errorf("%w (cursor save also failed: %v)", err, saveErr)
			}
			return processed, err
		}
		processed++
	}

	if err := r.states.SaveCursor(next); err != nil {
		return processed, err
	}
	return processed, nil
}

// summaryLine renders the one-line task log summary.
func summaryLine(report *drift.Report) string {
	if len(report.Findings) == 0 {
		return LogPrefix + " OK (no findings)"
	}
	msg := fmt.Sprintf("%s %s (%s)", LogPrefix, report.Score, strings.Join(report.KindStrings(), ", "))
	if len(report.Recommendations) > 0 {
		msg += " | next: " + report.Recommendations[0]
	}
	return msg
}
