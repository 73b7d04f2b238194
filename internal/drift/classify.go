package drift

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/contract"
	"github.com/boshu2/driftwatch/internal/gitdiff"
)

// evidenceCap bounds how many paths a single finding lists.
const evidenceCap = 50

// Classify turns a contract plus a working-state snapshot into an ordered
// list of findings and the telemetry counters. missingContract marks a check
// that ran against Default() because the task had no contract block; it adds
// a low-severity finding so contract gaps surface in trend data.
func Classify(c *contract.Contract, snap *gitdiff.Snapshot, rules config.RulesConfig, missingContract bool) ([]Finding, map[string]int) {
	var findings []Finding

	telemetry := map[string]int{
		TelemetryFilesChanged:    snap.FilesChanged(),
		TelemetryLocChanged:      snap.LocChanged(),
		TelemetryOutOfScopeFiles: 0,
	}

	if missingContract {
		findings = append(findings, Finding{
			Kind:     KindMissingContract,
			Severity: SeverityLow,
			Message:  "no drift-contract block found in task description",
		})
	}

	if f, outOfScope := classifyScope(c, snap, rules); f != nil {
		telemetry[TelemetryOutOfScopeFiles] = outOfScope
		findings = append(findings, *f)
	}

	if f := classifyChurn(c, snap, rules); f != nil {
		findings = append(findings, *f)
	}

	if c.Mode == contract.ModeCore {
		if f := classifyHardening(c, snap, rules); f != nil {
			findings = append(findings, *f)
		}
	}

	if f := classifyDependencies(c, snap, rules); f != nil {
		findings = append(findings, *f)
	}

	return findings, telemetry
}

// classifyScope partitions changed paths against the touch globs. An empty
// touch list disables scope checking entirely.
func classifyScope(c *contract.Contract, snap *gitdiff.Snapshot, rules config.RulesConfig) (*Finding, int) {
	if len(c.Touch) == 0 || snap.FilesChanged() == 0 {
		return nil, 0
	}

	var unmatched []string
	for _, path := range snap.Paths() {
		if !matchAny(path, c.Touch) {
			unmatched = append(unmatched, path)
		}
	}
	if len(unmatched) == 0 {
		return nil, 0
	}

	fraction := float64(len(unmatched)) / float64(snap.FilesChanged())
	severity := SeverityHigh
	switch {
	case fraction < rules.ScopeLowBelow:
		severity = SeverityLow
	case fraction < rules.ScopeMediumBelow:
		severity = SeverityMedium
	}

	return &Finding{
		Kind:     KindScopeDrift,
		Severity: severity,
		Message:  fmt.Sprintf("%d of %d changed files outside touch globs", len(unmatched), snap.FilesChanged()),
		Evidence: capEvidence(unmatched),
	}, len(unmatched)
}

// classifyChurn compares the snapshot totals against the contract budgets.
// A zero budget disables that budget.
func classifyChurn(c *contract.Contract, snap *gitdiff.Snapshot, rules config.RulesConfig) *Finding {
	files, loc := snap.FilesChanged(), snap.LocChanged()

	ratio := 0.0
	var parts []string
	if c.MaxFiles > 0 && files > c.MaxFiles {
		ratio = max(ratio, float64(files)/float64(c.MaxFiles))
		parts = append(parts, fmt.Sprintf("%d files (max_files=%d)", files, c.MaxFiles))
	}
	if c.MaxLoc > 0 && loc > c.MaxLoc {
		ratio = max(ratio, float64(loc)/float64(c.MaxLoc))
		parts = append(parts, fmt.Sprintf("%d lines (max_loc=%d)", loc, c.MaxLoc))
	}
	if ratio == 0 {
		return nil
	}

	severity := SeverityMedium
	if ratio > rules.ChurnHighRatio {
		severity = SeverityHigh
	}

	return &Finding{
		Kind:     KindChurn,
		Severity: severity,
		Message:  "churn budget exceeded: " + strings.Join(parts, ", "),
	}
}

// classifyHardening scans added lines for the signal vocabulary. Files a
// contract non-goal explicitly names are exempt.
func classifyHardening(c *contract.Contract, snap *gitdiff.Snapshot, rules config.RulesConfig) *Finding {
	var evidence []string
	terms := map[string]bool{}

	for _, line := range snap.AddedLines {
		if exemptedByNonGoals(c, line.Path) {
			continue
		}
		lower := strings.ToLower(line.Text)
		for _, term := range rules.HardeningTerms {
			if strings.Contains(lower, strings.ToLower(term)) {
				evidence = append(evidence, fmt.Sprintf("%s:%d (%s)", line.Path, line.Line, term))
				terms[term] = true
			}
		}
	}
	if len(evidence) == 0 {
		return nil
	}

	matched := make([]string, 0, len(terms))
	for term := range terms {
		matched = append(matched, term)
	}
	sort.Strings(matched)

	return &Finding{
		Kind:     KindHardeningInCore,
		Severity: SeverityMedium,
		Message:  "possible hardening/fallback additions in core: " + strings.Join(matched, ", "),
		Evidence: capEvidence(evidence),
	}
}

// classifyDependencies flags changed dependency manifests that fall outside
// the touch scope (or any manifest change when scope checking is off).
func classifyDependencies(c *contract.Contract, snap *gitdiff.Snapshot, rules config.RulesConfig) *Finding {
	manifests := make(map[string]bool, len(rules.DependencyManifests))
	for _, name := range rules.DependencyManifests {
		manifests[name] = true
	}

	var hit []string
	for _, path := range snap.Paths() {
		if !manifests[baseName(path)] {
			continue
		}
		if len(c.Touch) > 0 && matchAny(path, c.Touch) {
			continue
		}
		hit = append(hit, path)
	}
	if len(hit) == 0 {
		return nil
	}

	return &Finding{
		Kind:     KindDependencyDrift,
		Severity: SeverityMedium,
		Message:  "dependency/lock files changed: " + strings.Join(hit, ", "),
		Evidence: capEvidence(hit),
	}
}

// matchAny reports whether path matches any of the globs. ** crosses path
// segments, * stays within one; matching is case-sensitive and relative to
// the repo root.
func matchAny(path string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, path); err == nil && ok {
			return true
		}
	}
	return false
}

// exemptedByNonGoals reports whether a non-goal explicitly names the path.
// Only path-shaped tokens count: a word of prose that happens to be a
// substring of the path (or vice versa) must not exempt anything.
func exemptedByNonGoals(c *contract.Contract, path string) bool {
	for _, ng := range c.NonGoals {
		for _, tok := range strings.Fields(ng) {
			tok = strings.Trim(tok, "`'\",;:()")
			if !pathShaped(tok) {
				continue
			}
			if tok == path {
				return true
			}
			if ok, err := doublestar.Match(tok, path); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// pathShaped filters non-goal tokens down to ones that plausibly reference
// files: they contain a path separator, a glob metacharacter, or a dot that
// is not sentence punctuation.
func pathShaped(tok string) bool {
	if tok == "" || tok == "." {
		return false
	}
	if strings.ContainsAny(tok, "/*?[") {
		return true
	}
	trimmed := strings.TrimRight(tok, ".")
	return strings.Contains(trimmed, ".")
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func capEvidence(paths []string) []string {
	if len(paths) > evidenceCap {
		return paths[:evidenceCap]
	}
	return paths
}
