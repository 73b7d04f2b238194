package events

import (
	"os"
	"testing"
	"time"

	"github.com/boshu2/driftwatch/internal/drift"
)

func report(taskID string, score drift.Score) *drift.Report {
	return &drift.Report{
		TaskID:    taskID,
		Timestamp: time.Unix(42, 0).UTC(),
		Score:     score,
		Telemetry: map[string]int{drift.TelemetryFilesChanged: 1},
	}
}

func TestAppendReadSince(t *testing.T) {
	log := NewLog(t.TempDir())

	if err := log.Append(report("t1", drift.ScoreGreen)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := log.Append(report("t2", drift.ScoreYellow)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	envs, next, err := log.ReadSince(0)
	if err != nil {
		t.Fatalf("ReadSince(0) error = %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(envs))
	}
	if envs[0].Report.TaskID != "t1" || envs[1].Report.TaskID != "t2" {
		t.Errorf("task order = %s,%s, want t1,t2", envs[0].Report.TaskID, envs[1].Report.TaskID)
	}
	if envs[0].Seq >= envs[1].Seq {
		t.Errorf("Seq not monotonic: %d then %d", envs[0].Seq, envs[1].Seq)
	}

	// Resume from the returned offset: nothing new.
	more, next2, err := log.ReadSince(next)
	if err != nil {
		t.Fatalf("ReadSince(next) error = %v", err)
	}
	if len(more) != 0 {
		t.Errorf("unexpected events on resume: %v", more)
	}
	if next2 != next {
		t.Errorf("offset moved without new events: %d -> %d", next, next2)
	}

	// A third append is visible from the saved offset.
	if err := log.Append(report("t3", drift.ScoreRed)); err != nil {
		t.Fatal(err)
	}
	more, _, err = log.ReadSince(next)
	if err != nil {
		t.Fatal(err)
	}
	if len(more) != 1 || more[0].Report.TaskID != "t3" {
		t.Errorf("resume read = %v, want just t3", more)
	}
}

func TestReadSince_MissingLog(t *testing.T) {
	log := NewLog(t.TempDir())
	envs, next, err := log.ReadSince(7)
	if err != nil {
		t.Fatalf("ReadSince() error = %v", err)
	}
	if len(envs) != 0 || next != 7 {
		t.Errorf("got %d events, offset %d; want 0 events, offset unchanged", len(envs), next)
	}
}

func TestReadSince_TruncationResetsToStart(t *testing.T) {
	log := NewLog(t.TempDir())
	if err := log.Append(report("t1", drift.ScoreGreen)); err != nil {
		t.Fatal(err)
	}

	// An offset past EOF means the log was truncated or replaced.
	envs, _, err := log.ReadSince(1 << 30)
	if err != nil {
		t.Fatalf("ReadSince() error = %v", err)
	}
	if len(envs) != 1 {
		t.Errorf("len(events) = %d, want 1 (replayed from start)", len(envs))
	}
}

func TestReadSince_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	log := NewLog(dir)
	if err := log.Append(report("t1", drift.ScoreGreen)); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(log.Path(), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(report("t2", drift.ScoreYellow)); err != nil {
		t.Fatal(err)
	}

	envs, _, err := log.ReadSince(0)
	if err != nil {
		t.Fatalf("ReadSince() error = %v", err)
	}
	if len(envs) != 2 {
		t.Errorf("len(events) = %d, want 2 (malformed line skipped)", len(envs))
	}
}
