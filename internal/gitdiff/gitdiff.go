// Package gitdiff reads the git working state as a read-only oracle: which
// paths changed relative to the last commit (staged, unstaged, untracked),
// per-file line counts, and the added lines themselves for keyword scanning.
// Nothing in this package mutates the repository.
package gitdiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// ErrNotARepo is returned when the given directory is not inside a git
// working tree.
var ErrNotARepo = errors.New("not a git repository")

// Status of a changed path relative to the last commit.
type Status string

const (
	StatusAdded     Status = "added"
	StatusModified  Status = "modified"
	StatusDeleted   Status = "deleted"
	StatusUntracked Status = "untracked"
)

// ChangeRecord describes one changed path.
type ChangeRecord struct {
	Path         string `json:"path"`
	Status       Status `json:"status"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// AddedLine is a single line added in the working tree, with its position in
// the new file. Used as evidence for keyword findings.
type AddedLine struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Snapshot is the working state of a repository at check time: an ordered
// set of ChangeRecords plus the added lines extracted from the diffs.
type Snapshot struct {
	Records    []ChangeRecord `json:"records"`
	AddedLines []AddedLine    `json:"added_lines,omitempty"`
}

// Paths returns the changed paths in record order.
func (s *Snapshot) Paths() []string {
	out := make([]string, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Path
	}
	return out
}

// FilesChanged is the number of changed paths.
func (s *Snapshot) FilesChanged() int { return len(s.Records) }

// LocChanged sums added plus removed lines across all records.
func (s *Snapshot) LocChanged() int {
	total := 0
	for _, r := range s.Records {
		total += r.LinesAdded + r.LinesRemoved
	}
	return total
}

// Collector gathers working state from a repository root.
type Collector struct {
	// RepoRoot is the absolute path to the git top level.
	RepoRoot string

	// Exclude lists path prefixes (directories, trailing slash implied)
	// always dropped from snapshots, regardless of any contract.
	Exclude []string
}

// DefaultExcludes are always stripped from snapshots: the task-graph store,
// git metadata, and this tool's own state directory.
var DefaultExcludes = []string{".git/", ".workgraph/", ".driftwatch/"}

// NewCollector builds a Collector for repoRoot with the default exclusions
// plus any extras.
func NewCollector(repoRoot string, extraExcludes ...string) *Collector {
	ex := append([]string(nil), DefaultExcludes...)
	ex = append(ex, extraExcludes...)
	return &Collector{RepoRoot: repoRoot, Exclude: ex}
}

// FindRoot resolves the git top-level directory containing dir.
func FindRoot(ctx context.Context, dir string) (string, error) {
	out, err := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotARepo, dir)
	}
	root := strings.TrimSpace(out)
	if root == "" {
		return "", fmt.Errorf("%w: %s", ErrNotARepo, dir)
	}
	return root, nil
}

// WorkingState collects the current snapshot: staged, unstaged, and
// untracked changes relative to the last commit.
func (c *Collector) WorkingState(ctx context.Context) (*Snapshot, error) {
	statuses := map[string]Status{}
	counts := map[string][2]int{}

	if err := c.collectNameStatus(ctx, statuses, false); err != nil {
		return nil, err
	}
	if err := c.collectNameStatus(ctx, statuses, true); err != nil {
		return nil, err
	}

	untracked, err := runGit(ctx, c.RepoRoot, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("list untracked: %w", err)
	}
	for _, path := range splitLines(untracked) {
		if _, seen := statuses[path]; !seen {
			statuses[path] = StatusUntracked
		}
	}

	if err := c.collectNumstat(ctx, counts, false); err != nil {
		return nil, err
	}
	if err := c.collectNumstat(ctx, counts, true); err != nil {
		return nil, err
	}

	var records []ChangeRecord
	for path, status := range statuses {
		if c.excluded(path) {
			continue
		}
		n := counts[path]
		records = append(records, ChangeRecord{
			Path:         path,
			Status:       status,
			LinesAdded:   n[0],
			LinesRemoved: n[1],
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	added, err := c.collectAddedLines(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Records: records, AddedLines: added}, nil
}

func (c *Collector) excluded(path string) bool {
	for _, prefix := range c.Exclude {
		if strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}
	return false
}

// collectNameStatus merges `git diff --name-status` output into statuses.
// Staged statuses win over unstaged ones for the added/deleted distinction.
func (c *Collector) collectNameStatus(ctx context.Context, statuses map[string]Status, cached bool) error {
	args := []string{"diff", "--name-status"}
	if cached {
		args = append(args, "--cached")
	}
	out, err := runGit(ctx, c.RepoRoot, args...)
	if err != nil {
		return fmt.Errorf("diff name-status: %w", err)
	}

	for _, line := range splitLines(out) {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		code, path := fields[0], fields[1]
		// Renames and copies report "R<score>\told\tnew"; track the new path.
		if len(fields) >= 3 && (strings.HasPrefix(code, "R") || strings.HasPrefix(code, "C")) {
			path = fields[2]
		}

		var status Status
		switch {
		case strings.HasPrefix(code, "A"):
			status = StatusAdded
		case strings.HasPrefix(code, "D"):
			status = StatusDeleted
		default:
			status = StatusModified
		}

		if prev, seen := statuses[path]; seen && prev != StatusModified {
			continue
		}
		statuses[path] = status
	}
	return nil
}

// collectNumstat accumulates per-path added/removed line counts.
func (c *Collector) collectNumstat(ctx context.Context, counts map[string][2]int, cached bool) error {
	args := []string{"diff", "--numstat"}
	if cached {
		args = append(args, "--cached")
	}
	out, err := runGit(ctx, c.RepoRoot, args...)
	if err != nil {
		return fmt.Errorf("diff numstat: %w", err)
	}

	for _, line := range splitLines(out) {
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		// Binary files report "-" for both counts.
		added, err1 := strconv.Atoi(fields[0])
		removed, err2 := strconv.Atoi(fields[1])
		if err1 != nil {
			added = 0
		}
		if err2 != nil {
			removed = 0
		}
		path := fields[2]
		n := counts[path]
		counts[path] = [2]int{n[0] + added, n[1] + removed}
	}
	return nil
}

// collectAddedLines parses the unified diffs (staged and unstaged) and
// returns every added line with its line number in the new file.
func (c *Collector) collectAddedLines(ctx context.Context) ([]AddedLine, error) {
	var all []AddedLine
	for _, cached := range []bool{false, true} {
		args := []string{"diff", "--unified=0"}
		if cached {
			args = append(args, "--cached")
		}
		out, err := runGit(ctx, c.RepoRoot, args...)
		if err != nil {
			return nil, fmt.Errorf("diff unified: %w", err)
		}
		lines, err := parseAddedLines([]byte(out))
		if err != nil {
			return nil, err
		}
		for _, l := range lines {
			if !c.excluded(l.Path) {
				all = append(all, l)
			}
		}
	}
	return all, nil
}

// parseAddedLines extracts added lines from raw unified diff output.
func parseAddedLines(raw []byte) ([]AddedLine, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	fileDiffs, err := godiff.ParseMultiFileDiff(raw)
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	var out []AddedLine
	for _, fd := range fileDiffs {
		if fd == nil {
			continue
		}
		path := diffPath(fd)
		if path == "" {
			continue
		}
		for _, hunk := range fd.Hunks {
			lineNo := int(hunk.NewStartLine)
			for _, body := range strings.Split(string(hunk.Body), "\n") {
				if body == "" {
					continue
				}
				switch body[0] {
				case '+':
					out = append(out, AddedLine{Path: path, Line: lineNo, Text: body[1:]})
					lineNo++
				case ' ':
					lineNo++
				}
			}
		}
	}
	return out, nil
}

func diffPath(fd *godiff.FileDiff) string {
	name := strings.TrimSpace(fd.NewName)
	if name == "" || name == "/dev/null" {
		name = strings.TrimSpace(fd.OrigName)
	}
	name = strings.Trim(name, "\"")
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	if name == "/dev/null" {
		return ""
	}
	return name
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
