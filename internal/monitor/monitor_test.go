package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/contract"
	"github.com/boshu2/driftwatch/internal/drift"
	"github.com/boshu2/driftwatch/internal/events"
	"github.com/boshu2/driftwatch/internal/gitdiff"
	"github.com/boshu2/driftwatch/internal/taskgraph"
)

type fakeGraph struct {
	tasks []*taskgraph.Task
}

func (f *fakeGraph) GetTask(id string) (*taskgraph.Task, error) {
	for _, t := range f.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, taskgraph.ErrNotFound
}

func (f *fakeGraph) ListTasks(status string) ([]*taskgraph.Task, error) {
	var out []*taskgraph.Task
	for _, t := range f.tasks {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeGraph) AppendLog(id, message string) error       { return nil }
func (f *fakeGraph) SetDescription(id, text string) error     { return nil }
func (f *fakeGraph) CreateTask(spec taskgraph.TaskSpec) error { return nil }

type fakeRepo struct {
	snap *gitdiff.Snapshot
	err  error
}

func (f *fakeRepo) WorkingState(ctx context.Context) (*gitdiff.Snapshot, error) {
	return f.snap, f.err
}

func task(id, title string, c *contract.Contract) *taskgraph.Task {
	t := &taskgraph.Task{ID: id, Title: title, Status: taskgraph.StatusInProgress}
	if c != nil {
		t.Description = contract.RenderBlock(c)
	}
	return t
}

func cleanSnapshot() *gitdiff.Snapshot {
	return &gitdiff.Snapshot{}
}

func TestCheckTask(t *testing.T) {
	graph := &fakeGraph{tasks: []*taskgraph.Task{
		task("T1", "Widget", contract.Default("widget work", []string{"src/**"})),
	}}
	checker := NewChecker(graph, &fakeRepo{snap: cleanSnapshot()}, config.Default().Rules, nil)

	report, err := checker.CheckTask(context.Background(), "T1")
	if err != nil {
		t.Fatalf("CheckTask() error = %v", err)
	}
	if report.Score != drift.ScoreGreen {
		t.Errorf("score = %s, want green on clean tree", report.Score)
	}
	if report.TaskID != "T1" || report.TaskTitle != "Widget" {
		t.Errorf("report identity = %s/%s", report.TaskID, report.TaskTitle)
	}
}

func TestCheckTaskMissingContract(t *testing.T) {
	graph := &fakeGraph{tasks: []*taskgraph.Task{task("T1", "Widget", nil)}}
	checker := NewChecker(graph, &fakeRepo{snap: cleanSnapshot()}, config.Default().Rules, nil)

	report, err := checker.CheckTask(context.Background(), "T1")
	if err != nil {
		t.Fatalf("CheckTask() error = %v", err)
	}

	found := false
	for _, f := range report.Findings {
		if f.Kind == drift.KindMissingContract {
			found = true
		}
	}
	if !found {
		t.Errorf("findings = %v, want missing_contract", report.Findings)
	}
}

func TestCheckTaskBadContract(t *testing.T) {
	graph := &fakeGraph{tasks: []*taskgraph.Task{{
		ID:          "T1",
		Status:      taskgraph.StatusInProgress,
		Description: "```drift-contract\nschema: 99\n```",
	}}}
	checker := NewChecker(graph, &fakeRepo{snap: cleanSnapshot()}, config.Default().Rules, nil)

	_, err := checker.CheckTask(context.Background(), "T1")
	if !errors.Is(err, contract.ErrSchemaUnsupported) {
		t.Errorf("CheckTask() error = %v, want ErrSchemaUnsupported", err)
	}
}

func TestCheckAllIsolatesFailures(t *testing.T) {
	graph := &fakeGraph{tasks: []*taskgraph.Task{
		task("good", "Fine", contract.Default("fine", nil)),
		{ID: "bad", Status: taskgraph.StatusInProgress,
			Description: "```drift-contract\nschema: 99\n```"},
		{ID: "done", Status: taskgraph.StatusDone},
	}}
	checker := NewChecker(graph, &fakeRepo{snap: cleanSnapshot()}, config.Default().Rules, nil)

	reports, failures, err := checker.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if len(reports) != 1 || reports[0].TaskID != "good" {
		t.Errorf("reports = %v, want one for task good", reports)
	}
	if len(failures) != 1 || failures[0].TaskID != "bad" {
		t.Errorf("failures = %v, want one for task bad", failures)
	}
}

func TestCheckAllGitFailureAborts(t *testing.T) {
	graph := &fakeGraph{tasks: []*taskgraph.Task{
		task("T1", "Widget", contract.Default("w", nil)),
	}}
	repo := &fakeRepo{err: errors.New("git unavailable")}
	checker := NewChecker(graph, repo, config.Default().Rules, nil)

	_, failures, err := checker.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if len(failures) != 1 {
		t.Errorf("failures = %v, want the git failure isolated per task", failures)
	}
}

func TestMonitorRunOnceAppends(t *testing.T) {
	graph := &fakeGraph{tasks: []*taskgraph.Task{
		task("T1", "One", contract.Default("one", nil)),
		task("T2", "Two", contract.Default("two", nil)),
	}}
	checker := NewChecker(graph, &fakeRepo{snap: cleanSnapshot()}, config.Default().Rules, nil)
	log := events.NewLog(filepath.Join(t.TempDir(), ".driftwatch"))

	m := New(checker, log, nil)
	reports, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}

	envs, _, err := log.ReadSince(0)
	if err != nil {
		t.Fatalf("ReadSince() error = %v", err)
	}
	if len(envs) != 2 {
		t.Errorf("events appended = %d, want 2", len(envs))
	}
}

func TestMonitorSingleTask(t *testing.T) {
	graph := &fakeGraph{tasks: []*taskgraph.Task{
		task("T1", "One", contract.Default("one", nil)),
		task("T2", "Two", contract.Default("two", nil)),
	}}
	checker := NewChecker(graph, &fakeRepo{snap: cleanSnapshot()}, config.Default().Rules, nil)
	log := events.NewLog(filepath.Join(t.TempDir(), ".driftwatch"))

	m := New(checker, log, nil)
	m.TaskID = "T2"
	reports, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(reports) != 1 || reports[0].TaskID != "T2" {
		t.Errorf("reports = %v, want only T2", reports)
	}
}

func TestIgnoredPath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/repo/.git/objects/ab", true},
		{"/repo/.workgraph", true},
		{"/repo/.driftwatch/state", true},
		{"/repo/src/app.go", false},
		{"/repo/.github/workflows", false},
		{"/repo", false},
	}
	for _, tc := range cases {
		if got := ignoredPath("/repo", tc.path); got != tc.want {
			t.Errorf("ignoredPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

// A trigger arriving after the window expired but before the tick is read
// must absorb the stale tick instead of firing immediately.
func TestDebouncerAbsorbsStaleTick(t *testing.T) {
	deb := &debouncer{window: 20 * time.Millisecond}
	defer deb.stop()

	if deb.C() != nil {
		t.Fatal("idle debouncer exposed a non-nil channel")
	}

	deb.trigger()
	time.Sleep(60 * time.Millisecond) // let the first window expire undrained
	deb.trigger()

	select {
	case <-deb.C():
		t.Fatal("fired before the new window elapsed")
	case <-time.After(10 * time.Millisecond):
	}

	select {
	case <-deb.C():
		deb.fired()
	case <-time.After(200 * time.Millisecond):
		t.Fatal("pending fire never arrived")
	}

	if deb.C() != nil {
		t.Error("debouncer still armed after fired()")
	}
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	deb := &debouncer{window: 20 * time.Millisecond}
	defer deb.stop()

	for i := 0; i < 5; i++ {
		deb.trigger()
	}

	select {
	case <-deb.C():
		deb.fired()
	case <-time.After(200 * time.Millisecond):
		t.Fatal("burst never fired")
	}

	select {
	case <-deb.C():
		t.Fatal("burst produced more than one fire")
	case <-time.After(50 * time.Millisecond):
	}
}
