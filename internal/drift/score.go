package drift

import (
	"time"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/contract"
	"github.com/boshu2/driftwatch/internal/gitdiff"
)

// countersteer is the static kind -> recommended action table. Actions are
// advisory and additive; nothing here blocks in-progress work.
var countersteer = map[Kind]string{
	KindScopeDrift:      "Revert out-of-scope file changes or expand the touch globs (driftwatch contract set-touch)",
	KindChurn:           "Split the task or raise the max_files/max_loc budgets in the contract",
	KindHardeningInCore: "Move guardrails/fallbacks into a harden follow-up task",
	KindDependencyDrift: "Confirm the dependency change is intentional; otherwise revert it",
	KindMissingContract: "Add a drift-contract block to the task description (driftwatch ensure-contracts --apply)",
}

// ComputeScore reduces findings to a traffic-light verdict: green on an
// empty list, red when any finding is high severity or two or more distinct
// kinds accumulate, yellow otherwise. Independent weak signals escalate on
// purpose; the engine prefers flagging too much over too little.
func ComputeScore(findings []Finding) Score {
	if len(findings) == 0 {
		return ScoreGreen
	}

	kinds := make(map[Kind]bool, len(findings))
	for _, f := range findings {
		if f.Severity == SeverityHigh {
			return ScoreRed
		}
		kinds[f.Kind] = true
	}
	if len(kinds) >= 2 {
		return ScoreRed
	}
	return ScoreYellow
}

// Recommend returns the countersteer action per present finding kind,
// deduplicated, in finding emission order.
func Recommend(findings []Finding) []string {
	seen := make(map[Kind]bool, len(findings))
	var out []string
	for _, f := range findings {
		if seen[f.Kind] {
			continue
		}
		seen[f.Kind] = true
		if action, ok := countersteer[f.Kind]; ok {
			out = append(out, action)
		}
	}
	return out
}

// Assemble composes the classifier and scorer into one immutable report.
func Assemble(taskID, taskTitle string, c *contract.Contract, snap *gitdiff.Snapshot, rules config.RulesConfig, missingContract bool, now time.Time) *Report {
	findings, telemetry := Classify(c, snap, rules, missingContract)

	return &Report{
		TaskID:          taskID,
		TaskTitle:       taskTitle,
		Timestamp:       now.UTC(),
		Score:           ComputeScore(findings),
		Findings:        findings,
		Telemetry:       telemetry,
		Recommendations: Recommend(findings),
		Contract: ContractInfo{
			Mode:          c.Mode,
			Objective:     c.Objective,
			Touch:         append([]string(nil), c.Touch...),
			PitStopAfter:  c.PitStopAfter,
			AutoFollowups: c.AutoFollowups,
		},
	}
}
