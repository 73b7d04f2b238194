package redirect

import (
	"fmt"
	"strings"

	"github.com/boshu2/driftwatch/internal/contract"
	"github.com/boshu2/driftwatch/internal/drift"
	"github.com/boshu2/driftwatch/internal/taskgraph"
)

// Deterministic follow-up id prefixes. The id is prefix + origin task id,
// so repeated synthesis for the same task and kind always collides into the
// idempotent create.
const (
	HardenPrefix  = "drift-harden-"
	ScopePrefix   = "drift-scope-"
	PitStopPrefix = "drift-pit-"
)

// ForKind maps a finding kind to the follow-up task it warrants, or nil for
// kinds that do not spawn follow-ups. The follow-up is blocked by the origin
// task: corrective work stays additive and never halts the work in flight.
func ForKind(kind drift.Kind, report *drift.Report) *taskgraph.TaskSpec {
	title := report.TaskTitle
	if title == "" {
		title = report.TaskID
	}

	switch kind {
	case drift.KindHardeningInCore:
		return &taskgraph.TaskSpec{
			ID:          HardenPrefix + report.TaskID,
			Title:       "harden: " + title,
			Description: followupDescription(report, kind, "Move guardrails/fallbacks out of core execution.", contract.ModeHarden),
			BlockedBy:   []string{report.TaskID},
			Tags:        []string{"drift", "harden"},
		}
	case drift.KindScopeDrift:
		return &taskgraph.TaskSpec{
			ID:          ScopePrefix + report.TaskID,
			Title:       "scope: " + title,
			Description: followupDescription(report, kind, "Triage out-of-scope file changes (update the contract touch set or revert).", contract.ModeExplore),
			BlockedBy:   []string{report.TaskID},
			Tags:        []string{"drift", "scope"},
		}
	default:
		return nil
	}
}

// PitStop synthesizes the one-shot escalation task for a sustained
// non-green streak.
func PitStop(report *drift.Report, streak int) taskgraph.TaskSpec {
	title := report.TaskTitle
	if title == "" {
		title = report.TaskID
	}

	var b strings.Builder
	b.WriteString("Persistent drift detected.\n\n")
	fmt.Fprintf(&b, "Origin: %s\nStreak: %d\n\n", report.TaskID, streak)

	b.WriteString("Findings:\n")
	if len(report.Findings) == 0 {
		b.WriteString("(none)\n")
	}
	for _, f := range report.Findings {
		fmt.Fprintf(&b, "- %s: %s\n", f.Kind, f.Message)
	}

	b.WriteString("\nCountersteer (recommended next actions):\n")
	if len(report.Recommendations) == 0 {
		b.WriteString("(none)\n")
	}
	for i, rec := range report.Recommendations {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", rec)
	}

	b.WriteString("\n")
	b.WriteString(contract.RenderBlock(followupContract("pit-stop: "+title, report, contract.ModeExplore)))

	return taskgraph.TaskSpec{
		ID:          PitStopPrefix + report.TaskID,
		Title:       "pit-stop: " + title,
		Description: b.String(),
		BlockedBy:   []string{report.TaskID},
		Tags:        []string{"drift", "pit-stop"},
	}
}

func followupDescription(report *drift.Report, kind drift.Kind, action, mode string) string {
	summary := ""
	for _, f := range report.Findings {
		if f.Kind == kind {
			summary = f.Message
			break
		}
	}

	var b strings.Builder
	b.WriteString(action)
	b.WriteString("\n\nContext:\n")
	fmt.Fprintf(&b, "- Origin task: %s\n", report.TaskID)
	if summary != "" {
		fmt.Fprintf(&b, "- Finding: %s\n", summary)
	}
	b.WriteString("\n")
	b.WriteString(contract.RenderBlock(followupContract(string(kind)+" follow-up", report, mode)))
	return b.String()
}

// followupContract stamps a fresh contract for the follow-up task, keeping
// the origin's touch scope so the follow-up inherits the same boundaries.
func followupContract(objective string, report *drift.Report, mode string) *contract.Contract {
	return contract.Default(objective, report.Contract.Touch).WithMode(mode)
}
