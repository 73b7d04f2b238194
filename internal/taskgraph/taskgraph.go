// Package taskgraph is the narrow client for the external task store: a
// workgraph directory holding one JSON object per line in graph.jsonl.
// driftwatch never owns this format; it reads tasks, appends log entries,
// edits descriptions, and creates follow-up tasks, preserving every field it
// does not understand.
package taskgraph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boshu2/driftwatch/internal/fsatomic"
)

// Sentinel errors for the taskgraph package.
var (
	// ErrNotFound is returned when a task id is absent from the graph.
	ErrNotFound = errors.New("task not found")

	// ErrNoWorkgraph is returned when no .workgraph/graph.jsonl can be
	// located from the starting directory.
	ErrNoWorkgraph = errors.New("no .workgraph/graph.jsonl found")
)

// Common task statuses in the graph.
const (
	StatusOpen       = "open"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

// GraphFile is the task store file inside a workgraph directory.
const GraphFile = "graph.jsonl"

// LogEntry is one appended log line on a task.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"message"`
}

// Task is the typed view of a task record.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	BlockedBy   []string   `json:"blocked_by,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Log         []LogEntry `json:"log,omitempty"`
}

// TaskSpec describes a task to create.
type TaskSpec struct {
	ID          string
	Title       string
	Description string
	BlockedBy   []string
	Tags        []string
}

// Store is the task-graph contract driftwatch consumes. The file-backed
// Graph implements it; tests substitute fakes.
type Store interface {
	// GetTask returns a task by id, or ErrNotFound.
	GetTask(id string) (*Task, error)

	// ListTasks returns tasks with the given status, in file order.
	// An empty status returns every task.
	ListTasks(status string) ([]*Task, error)

	// AppendLog durably appends one log entry to a task.
	AppendLog(id, message string) error

	// SetDescription replaces a task's description, preserving all other
	// task fields.
	SetDescription(id, text string) error

	// CreateTask creates a task; an existing id is success, not an error.
	CreateTask(spec TaskSpec) error
}

// Graph is the file-backed Store over a workgraph directory.
type Graph struct {
	// Dir is the .workgraph directory.
	Dir string

	now func() time.Time
}

var _ Store = (*Graph)(nil)

// Open returns a Graph for a workgraph directory, verifying the graph file
// exists.
func Open(dir string) (*Graph, error) {
	if _, err := os.Stat(filepath.Join(dir, GraphFile)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoWorkgraph, dir)
	}
	return &Graph{Dir: dir, now: time.Now}, nil
}

// FindDir locates the workgraph directory: the explicit path when given
// (with or without the trailing .workgraph component), otherwise the first
// ancestor of startDir containing .workgraph/graph.jsonl.
func FindDir(explicit, startDir string) (string, error) {
	if explicit != "" {
		dir := explicit
		if filepath.Base(dir) != ".workgraph" {
			dir = filepath.Join(dir, ".workgraph")
		}
		if _, err := os.Stat(filepath.Join(dir, GraphFile)); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNoWorkgraph, dir)
		}
		return dir, nil
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, ".workgraph")
		if _, err := os.Stat(filepath.Join(candidate, GraphFile)); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoWorkgraph
		}
		dir = parent
	}
}

// ProjectDir is the directory the workgraph lives in, i.e. the repo root
// candidate.
func (g *Graph) ProjectDir() string {
	return filepath.Dir(g.Dir)
}

func (g *Graph) graphPath() string {
	return filepath.Join(g.Dir, GraphFile)
}

// readLines parses graph.jsonl into raw records. Records that are not task
// objects (or not JSON at all) are carried through untouched on rewrite.
func (g *Graph) readLines() ([]json.RawMessage, error) {
	data, err := os.ReadFile(g.graphPath())
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	var lines []json.RawMessage
	for _, raw := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		lines = append(lines, json.RawMessage(append([]byte(nil), raw...)))
	}
	return lines, nil
}

func (g *Graph) writeLines(lines []json.RawMessage) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := fsatomic.WriteFile(g.graphPath(), buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("rewrite graph: %w", err)
	}
	return nil
}

// decodeTask decodes a raw line as a task record; ok is false for non-task
// lines.
func decodeTask(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	var kind string
	if err := json.Unmarshal(obj["kind"], &kind); err != nil || kind != "task" {
		return nil, false
	}
	return obj, true
}

func taskFromFields(obj map[string]json.RawMessage) *Task {
	t := &Task{}
	decodeField(obj, "id", &t.ID)
	decodeField(obj, "title", &t.Title)
	decodeField(obj, "status", &t.Status)
	decodeField(obj, "description", &t.Description)
	decodeField(obj, "blocked_by", &t.BlockedBy)
	decodeField(obj, "tags", &t.Tags)
	decodeField(obj, "log", &t.Log)
	return t
}

func decodeField(obj map[string]json.RawMessage, key string, dst any) {
	if raw, ok := obj[key]; ok {
		_ = json.Unmarshal(raw, dst)
	}
}

// GetTask returns a task by id.
func (g *Graph) GetTask(id string) (*Task, error) {
	lines, err := g.readLines()
	if err != nil {
		return nil, err
	}
	for _, raw := range lines {
		obj, ok := decodeTask(raw)
		if !ok {
			continue
		}
		t := taskFromFields(obj)
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ListTasks returns tasks filtered by status, in file order.
func (g *Graph) ListTasks(status string) ([]*Task, error) {
	lines, err := g.readLines()
	if err != nil {
		return nil, err
	}
	var out []*Task
	for _, raw := range lines {
		obj, ok := decodeTask(raw)
		if !ok {
			continue
		}
		t := taskFromFields(obj)
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// mutateTask rewrites the graph with fn applied to the task's raw fields.
func (g *Graph) mutateTask(id string, fn func(obj map[string]json.RawMessage) error) error {
	lines, err := g.readLines()
	if err != nil {
		return err
	}

	found := false
	for i, raw := range lines {
		obj, ok := decodeTask(raw)
		if !ok {
			continue
		}
		t := taskFromFields(obj)
		if t.ID != id {
			continue
		}
		if err := fn(obj); err != nil {
			return err
		}
		updated, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("marshal task %s: %w", id, err)
		}
		lines[i] = updated
		found = true
		break
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return g.writeLines(lines)
}

// AppendLog appends one log entry to a task. The entry survives later
// status transitions because it lives on the task record itself.
func (g *Graph) AppendLog(id, message string) error {
	entry, err := json.Marshal(LogEntry{Timestamp: g.now().UTC(), Message: message})
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	return g.mutateTask(id, func(obj map[string]json.RawMessage) error {
		var entries []json.RawMessage
		if raw, ok := obj["log"]; ok && len(bytes.TrimSpace(raw)) > 0 {
			_ = json.Unmarshal(raw, &entries)
		}
		entries = append(entries, entry)
		updated, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("marshal log: %w", err)
		}
		obj["log"] = updated
		return nil
	})
}

// SetDescription replaces a task's description, leaving every other field
// on the record untouched.
func (g *Graph) SetDescription(id, text string) error {
	desc, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("marshal description: %w", err)
	}
	return g.mutateTask(id, func(obj map[string]json.RawMessage) error {
		obj["description"] = desc
		return nil
	})
}

// CreateTask appends a new task record. Creating an id that already exists
// is success, which makes follow-up creation idempotent.
func (g *Graph) CreateTask(spec TaskSpec) error {
	lines, err := g.readLines()
	if err != nil {
		return err
	}
	for _, raw := range lines {
		obj, ok := decodeTask(raw)
		if !ok {
			continue
		}
		if taskFromFields(obj).ID == spec.ID {
			return nil
		}
	}

	record := map[string]any{
		"kind":        "task",
		"id":          spec.ID,
		"title":       spec.Title,
		"status":      StatusOpen,
		"description": spec.Description,
	}
	if len(spec.BlockedBy) > 0 {
		record["blocked_by"] = spec.BlockedBy
	}
	if len(spec.Tags) > 0 {
		record["tags"] = spec.Tags
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", spec.ID, err)
	}
	return g.writeLines(append(lines, line))
}
