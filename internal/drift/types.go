// Package drift classifies a working-tree snapshot against a task contract
// into typed findings, reduces findings to a traffic-light score, and
// assembles the immutable report exchanged between the monitor and the
// redirector. Everything in this package is a pure derivation: the same
// contract and snapshot always produce the same findings and score.
package drift

import (
	"sort"
	"time"
)

// Kind identifies one class of drift. The set is extensible; the scorer and
// the follow-up synthesizer treat unknown kinds generically.
type Kind string

const (
	KindScopeDrift      Kind = "scope_drift"
	KindDependencyDrift Kind = "dependency_drift"
	KindChurn           Kind = "churn"
	KindHardeningInCore Kind = "hardening_in_core"
	KindMissingContract Kind = "missing_contract"
)

// Severity of a single finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Score is the three-level aggregate verdict.
type Score string

const (
	ScoreGreen  Score = "green"
	ScoreYellow Score = "yellow"
	ScoreRed    Score = "red"
)

// Finding is one typed, evidenced instance of drift. Findings are never
// mutated after creation.
type Finding struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// Evidence lists path references, optionally suffixed with :line.
	Evidence []string `json:"evidence,omitempty"`
}

// Telemetry counter names always present in a report, even on a clean check,
// so trend data exists between findings.
const (
	TelemetryFilesChanged    = "files_changed"
	TelemetryLocChanged      = "loc_changed"
	TelemetryOutOfScopeFiles = "out_of_scope_files"
)

// ContractInfo is the slice of the parsed contract a report carries so the
// redirector can act without re-reading the task description.
type ContractInfo struct {
	Mode          string   `json:"mode"`
	Objective     string   `json:"objective,omitempty"`
	Touch         []string `json:"touch,omitempty"`
	PitStopAfter  int      `json:"pit_stop_after"`
	AutoFollowups bool     `json:"auto_followups"`
}

// Report is the unit exchanged between processes: one check of one task.
// Immutable once assembled.
type Report struct {
	TaskID    string    `json:"task_id"`
	TaskTitle string    `json:"task_title,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Score           Score          `json:"score"`
	Findings        []Finding      `json:"findings"`
	Telemetry       map[string]int `json:"telemetry"`
	Recommendations []string       `json:"recommendations,omitempty"`

	Contract ContractInfo `json:"contract"`
}

// Kinds returns the distinct finding kinds in emission order.
func (r *Report) Kinds() []Kind {
	seen := make(map[Kind]bool, len(r.Findings))
	var out []Kind
	for _, f := range r.Findings {
		if seen[f.Kind] {
			continue
		}
		seen[f.Kind] = true
		out = append(out, f.Kind)
	}
	return out
}

// KindStrings is Kinds rendered as sorted strings, used for state
// signatures and log lines.
func (r *Report) KindStrings() []string {
	kinds := r.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	sort.Strings(out)
	return out
}
