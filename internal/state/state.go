// Package state persists per-task drift history across invocations: the
// last score, the non-green streak, and the sticky pit-stop flag. Each task
// gets its own record file so states stay independently readable and
// writable. The redirector is the only logical writer; the monitor never
// touches this package.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boshu2/driftwatch/internal/drift"
	"github.com/boshu2/driftwatch/internal/fsatomic"
)

// DriftState is the persisted per-task record.
type DriftState struct {
	TaskID    string      `json:"task_id"`
	LastScore drift.Score `json:"last_score"`
	LastKinds []string    `json:"last_kinds,omitempty"`

	// Streak counts consecutive non-green checks since the last green one.
	Streak int `json:"streak"`

	// PitStopCreated is sticky: once a pit-stop escalation fired for this
	// task it never fires again, even across later green/non-green cycles.
	PitStopCreated bool `json:"pit_stop_created"`

	LastCheckedAt time.Time `json:"last_checked_at"`
}

// Signature is the (score, kinds) pair the redirector uses to decide whether
// a report says anything new.
func (s DriftState) Signature() string {
	return string(s.LastScore) + "|" + strings.Join(s.LastKinds, ",")
}

// Transition is the result of applying one report to a state.
type Transition struct {
	Next DriftState

	// PitStopDue is true exactly once: the check where the streak crosses
	// the threshold while the sticky flag is still unset.
	PitStopDue bool

	// SignatureChanged reports whether (score, kinds) differ from the
	// previous check, used to suppress repeated log entries.
	SignatureChanged bool
}

// Next computes the state transition for one report as a pure function:
// green resets the streak, non-green increments it, and PitStopCreated is
// carried unchanged. pitStopAfter <= 0 disables pit-stop escalation.
func Next(prev DriftState, report *drift.Report, pitStopAfter int) Transition {
	kinds := report.KindStrings()

	next := DriftState{
		TaskID:         report.TaskID,
		LastScore:      report.Score,
		LastKinds:      kinds,
		PitStopCreated: prev.PitStopCreated,
		LastCheckedAt:  report.Timestamp,
	}

	if report.Score == drift.ScoreGreen {
		next.Streak = 0
	} else {
		next.Streak = prev.Streak + 1
	}

	due := report.Score != drift.ScoreGreen &&
		pitStopAfter > 0 &&
		next.Streak >= pitStopAfter &&
		!prev.PitStopCreated

	return Transition{
		Next:             next,
		PitStopDue:       due,
		SignatureChanged: next.Signature() != prev.Signature(),
	}
}

// Store is a keyed record store, one JSON file per task id, plus the
// redirector's event-log cursor. All writes are atomic replaces.
type Store struct {
	dir string
}

// NewStore creates a store rooted at toolDir (typically <wgdir>/.driftwatch).
func NewStore(toolDir string) *Store {
	return &Store{dir: toolDir}
}

func (s *Store) taskPath(taskID string) string {
	return filepath.Join(s.dir, "state", sanitize(taskID)+".json")
}

func (s *Store) cursorPath() string {
	return filepath.Join(s.dir, "cursor.json")
}

// Load reads the state for a task. A missing or unreadable record yields a
// zero state for that task: drift history is non-destructive, so corruption
// recovers as "no history" instead of failing the run.
func (s *Store) Load(taskID string) DriftState {
	empty := DriftState{TaskID: taskID}

	data, err := os.ReadFile(s.taskPath(taskID))
	if err != nil {
		return empty
	}
	var st DriftState
	if err := json.Unmarshal(data, &st); err != nil {
		return empty
	}
	st.TaskID = taskID
	return st
}

// Save persists the state for a task atomically.
func (s *Store) Save(st DriftState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := fsatomic.WriteFile(s.taskPath(st.TaskID), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("save state for %s: %w", st.TaskID, err)
	}
	return nil
}

type cursorRecord struct {
	Offset int64 `json:"offset"`
}

// LoadCursor returns the persisted event-log offset, or 0 when absent or
// unreadable.
func (s *Store) LoadCursor() int64 {
	data, err := os.ReadFile(s.cursorPath())
	if err != nil {
		return 0
	}
	var c cursorRecord
	if err := json.Unmarshal(data, &c); err != nil || c.Offset < 0 {
		return 0
	}
	return c.Offset
}

// SaveCursor persists the event-log offset atomically.
func (s *Store) SaveCursor(offset int64) error {
	data, err := json.Marshal(cursorRecord{Offset: offset})
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}
	if err := fsatomic.WriteFile(s.cursorPath(), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// sanitize maps a task id to a safe file name.
func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
