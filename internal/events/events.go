// Package events implements the append-only report log between the monitor
// and the redirector. The monitor is the single writer and only ever
// appends; the redirector reads from a byte offset it persists elsewhere.
// This keeps the two processes decoupled and makes replay from the start of
// the log safe at any time.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/boshu2/driftwatch/internal/drift"
)

// FileName is the event log file under the .driftwatch directory.
const FileName = "events.jsonl"

// Envelope wraps one DriftReport with sequence metadata. Seq is the byte
// offset the record starts at, which is monotonically increasing for an
// append-only file and doubles as a resume token.
type Envelope struct {
	Seq       int64         `json:"seq"`
	Timestamp time.Time     `json:"timestamp"`
	Report    *drift.Report `json:"report"`
}

// Log is a file-backed append-only event log.
type Log struct {
	path string
}

// NewLog opens (lazily) the event log under toolDir.
func NewLog(toolDir string) *Log {
	return &Log{path: filepath.Join(toolDir, FileName)}
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Append writes one report as a single JSON line. Appends are the only
// mutation this type performs; the log is never rewritten in place.
func (l *Log) Append(report *drift.Report) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek event log: %w", err)
	}

	env := Envelope{
		Seq:       offset,
		Timestamp: report.Timestamp,
		Report:    report,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return f.Sync()
}

// ReadSince returns all events starting at the given byte offset and the
// offset one past the last consumed byte. A missing log yields no events.
// An offset beyond the end of the file means the log was truncated or
// replaced; reading restarts from the beginning. Malformed lines are
// skipped rather than failing the drain.
func (l *Log) ReadSince(offset int64) ([]Envelope, int64, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, offset, nil
	}
	if err != nil {
		return nil, offset, fmt.Errorf("open event log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat event log: %w", err)
	}
	if offset > info.Size() || offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek event log: %w", err)
	}

	var out []Envelope
	pos := offset

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		pos += int64(len(line)) + 1

		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil || env.Report == nil {
			continue
		}
		out = append(out, env)
	}
	if err := scanner.Err(); err != nil {
		return nil, offset, fmt.Errorf("read event log: %w", err)
	}

	return out, pos, nil
}
