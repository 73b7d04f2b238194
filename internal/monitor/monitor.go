package monitor

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/drift"
	"github.com/boshu2/driftwatch/internal/events"
)

// Monitor runs checks on a schedule and appends every report to the event
// log. It is the log's single writer.
type Monitor struct {
	checker *Checker
	log     *events.Log
	logger  *zap.Logger

	// TaskID restricts the monitor to one task; empty means all in-progress.
	TaskID string
}

// New wires a monitor over a checker and an event log.
func New(checker *Checker, log *events.Log, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{checker: checker, log: log, logger: logger}
}

// RunOnce performs one pass and returns the reports it appended. Per-task
// check failures are logged and skipped; append failures abort the pass.
func (m *Monitor) RunOnce(ctx context.Context) ([]*drift.Report, error) {
	reports, err := m.collect(ctx)
	if err != nil {
		return nil, err
	}
	for _, report := range reports {
		if err := m.log.Append(report); err != nil {
			return nil, err
		}
	}
	m.logger.Info("monitor pass complete", zap.Int("reports", len(reports)))
	return reports, nil
}

func (m *Monitor) collect(ctx context.Context) ([]*drift.Report, error) {
	if m.TaskID != "" {
		report, err := m.checker.CheckTask(ctx, m.TaskID)
		if err != nil {
			return nil, err
		}
		return []*drift.Report{report}, nil
	}
	reports, failures, err := m.checker.CheckAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		m.logger.Warn("skipping task", zap.String("task", f.TaskID), zap.Error(f.Err))
	}
	return reports, nil
}

// Run loops RunOnce at the given interval until ctx is cancelled. Pass
// failures are logged and the loop keeps going.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil {
			m.logger.Error("monitor pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnChange watches the repository for file changes and runs a pass after
// each burst of events, coalesced by the debounce window. New directories are
// watched as they appear.
func (m *Monitor) RunOnChange(ctx context.Context, root string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watchTree(watcher, root); err != nil {
		return err
	}

	// One pass up front so the log reflects the state at startup.
	if _, err := m.RunOnce(ctx); err != nil {
		m.logger.Error("monitor pass failed", zap.Error(err))
	}

	deb := &debouncer{window: debounce}
	defer deb.stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignoredPath(root, ev.Name) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				// Best effort; the path may already be gone.
				_ = watchTree(watcher, ev.Name)
			}
			deb.trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("watch error", zap.Error(err))
		case <-deb.C():
			deb.fired()
			if _, err := m.RunOnce(ctx); err != nil {
				m.logger.Error("monitor pass failed", zap.Error(err))
			}
		}
	}
}

// debouncer coalesces a burst of triggers into one fire after a quiet window.
// Not safe for concurrent use; trigger, C, and fired must run on one
// goroutine.
type debouncer struct {
	window time.Duration
	timer  *time.Timer
}

// C is the channel the next fire arrives on. Nil while idle, which blocks
// that select case.
func (b *debouncer) C() <-chan time.Time {
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

// trigger arms the timer or pushes the pending fire out by another window.
// A timer that expired while other cases were being handled is drained
// before the reset so its stale tick cannot fire immediately.
func (b *debouncer) trigger() {
	if b.timer == nil {
		b.timer = time.NewTimer(b.window)
		return
	}
	if !b.timer.Stop() {
		<-b.timer.C
	}
	b.timer.Reset(b.window)
}

// fired marks the pending tick as consumed. Callers invoke it after reading
// from C.
func (b *debouncer) fired() {
	b.timer = nil
}

func (b *debouncer) stop() {
	if b.timer != nil {
		b.timer.Stop()
	}
}

// watchTree registers path and every directory below it, skipping the tool's
// own state directories.
func watchTree(watcher *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		if ignoredPath(path, p) {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}

func ignoredPath(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, prefix := range []string{".git", ".workgraph", ".driftwatch"} {
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return true
		}
	}
	return false
}
