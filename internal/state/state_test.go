package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boshu2/driftwatch/internal/drift"
)

func report(taskID string, score drift.Score, kinds ...drift.Kind) *drift.Report {
	var findings []drift.Finding
	for _, k := range kinds {
		findings = append(findings, drift.Finding{Kind: k, Severity: drift.SeverityMedium})
	}
	return &drift.Report{
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Score:     score,
		Findings:  findings,
	}
}

func TestNext_MonotonicStreak(t *testing.T) {
	st := DriftState{TaskID: "t1"}

	for i := 1; i <= 4; i++ {
		tr := Next(st, report("t1", drift.ScoreYellow, drift.KindChurn), 10)
		if tr.Next.Streak != i {
			t.Fatalf("pass %d: streak = %d, want %d", i, tr.Next.Streak, i)
		}
		st = tr.Next
	}

	// One green pass resets the streak to zero.
	tr := Next(st, report("t1", drift.ScoreGreen), 10)
	if tr.Next.Streak != 0 {
		t.Errorf("after green: streak = %d, want 0", tr.Next.Streak)
	}
}

func TestNext_PitStopDueExactlyOnce(t *testing.T) {
	st := DriftState{TaskID: "t1"}
	dueCount := 0

	for i := 0; i < 6; i++ {
		tr := Next(st, report("t1", drift.ScoreYellow, drift.KindScopeDrift), 3)
		if tr.PitStopDue {
			dueCount++
			tr.Next.PitStopCreated = true // redirector marks after creating
		}
		st = tr.Next
	}

	if dueCount != 1 {
		t.Errorf("pit stop due %d times across 6 non-green passes, want exactly 1", dueCount)
	}
	if !st.PitStopCreated {
		t.Error("PitStopCreated lost along the way")
	}
}

func TestNext_PitStopStickyAcrossGreen(t *testing.T) {
	st := DriftState{TaskID: "t1", Streak: 3, PitStopCreated: true}

	tr := Next(st, report("t1", drift.ScoreGreen), 3)
	if !tr.Next.PitStopCreated {
		t.Error("green pass cleared the sticky pit-stop flag")
	}

	// A fresh non-green streak must not re-arm the pit stop.
	st = tr.Next
	for i := 0; i < 5; i++ {
		tr = Next(st, report("t1", drift.ScoreRed, drift.KindChurn, drift.KindScopeDrift), 3)
		if tr.PitStopDue {
			t.Fatalf("pass %d: pit stop due again despite sticky flag", i)
		}
		st = tr.Next
	}
}

func TestNext_DisabledThreshold(t *testing.T) {
	st := DriftState{TaskID: "t1", Streak: 99}
	tr := Next(st, report("t1", drift.ScoreRed, drift.KindChurn), 0)
	if tr.PitStopDue {
		t.Error("pit stop due with pitStopAfter = 0 (disabled)")
	}
}

func TestNext_SignatureChanged(t *testing.T) {
	st := DriftState{TaskID: "t1"}

	tr := Next(st, report("t1", drift.ScoreYellow, drift.KindChurn), 3)
	if !tr.SignatureChanged {
		t.Error("first non-green pass: SignatureChanged = false")
	}

	st = tr.Next
	tr = Next(st, report("t1", drift.ScoreYellow, drift.KindChurn), 3)
	if tr.SignatureChanged {
		t.Error("identical findings: SignatureChanged = true")
	}

	st = tr.Next
	tr = Next(st, report("t1", drift.ScoreYellow, drift.KindDependencyDrift), 3)
	if !tr.SignatureChanged {
		t.Error("new kind: SignatureChanged = false")
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	st := DriftState{
		TaskID:         "task-7",
		LastScore:      drift.ScoreYellow,
		LastKinds:      []string{"churn"},
		Streak:         2,
		PitStopCreated: true,
		LastCheckedAt:  time.Unix(1000, 0).UTC(),
	}
	if err := store.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got := store.Load("task-7")
	if got.Streak != 2 || !got.PitStopCreated || got.LastScore != drift.ScoreYellow {
		t.Errorf("Load() = %+v, want saved state back", got)
	}
}

func TestStore_LoadAbsentIsZero(t *testing.T) {
	store := NewStore(t.TempDir())
	got := store.Load("never-seen")
	if got.Streak != 0 || got.PitStopCreated || got.LastScore != "" {
		t.Errorf("Load() = %+v, want zero state", got)
	}
	if got.TaskID != "never-seen" {
		t.Errorf("TaskID = %q, want never-seen", got.TaskID)
	}
}

func TestStore_CorruptRecordRecoversAsEmpty(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := store.Save(DriftState{TaskID: "t1", Streak: 5}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "state", "t1.json")
	if err := os.WriteFile(path, []byte("{corrupt"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := store.Load("t1")
	if got.Streak != 0 {
		t.Errorf("Load() of corrupt record = %+v, want zero state", got)
	}
}

func TestStore_StatesAreIndependent(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save(DriftState{TaskID: "a", Streak: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(DriftState{TaskID: "b", Streak: 9}); err != nil {
		t.Fatal(err)
	}

	if got := store.Load("a").Streak; got != 1 {
		t.Errorf("a.Streak = %d, want 1", got)
	}
	if got := store.Load("b").Streak; got != 9 {
		t.Errorf("b.Streak = %d, want 9", got)
	}
}

func TestStore_Cursor(t *testing.T) {
	store := NewStore(t.TempDir())

	if got := store.LoadCursor(); got != 0 {
		t.Errorf("initial cursor = %d, want 0", got)
	}
	if err := store.SaveCursor(4096); err != nil {
		t.Fatalf("SaveCursor() error = %v", err)
	}
	if got := store.LoadCursor(); got != 4096 {
		t.Errorf("cursor = %d, want 4096", got)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"task-1":     "task-1",
		"a/b":        "a_b",
		"..":         "..",
		"weird id!?": "weird_id__",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
