// Package formatter renders drift reports for the CLI in text, json, and
// markdown forms.
package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/boshu2/driftwatch/internal/drift"
)

// ReportFormatter writes one drift report to w.
type ReportFormatter interface {
	Format(w io.Writer, report *drift.Report) error
}

// ForOutput maps an --output flag value to a formatter.
func ForOutput(name string) (ReportFormatter, error) {
	switch name {
	case "", "text", "table":
		return &TextFormatter{}, nil
	case "json":
		return &JSONFormatter{Pretty: true}, nil
	case "jsonl":
		return &JSONFormatter{}, nil
	case "markdown", "md":
		return &MarkdownFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (text, json, jsonl, markdown)", name)
	}
}

// JSONFormatter writes the report as one JSON document. With Pretty off the
// output is a single line, suitable for piping into JSONL consumers.
type JSONFormatter struct {
	Pretty bool
}

func (jf *JSONFormatter) Format(w io.Writer, report *drift.Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if jf.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(report)
}

// TextFormatter writes a human-readable summary: a one-line verdict, a
// findings table, and countersteer recommendations.
type TextFormatter struct{}

func (tf *TextFormatter) Format(w io.Writer, report *drift.Report) error {
	title := report.TaskTitle
	if title == "" {
		title = report.TaskID
	}
	if _, err := fmt.Fprintf(w, "%s  %s [%s]\n", scoreBadge(report.Score), title, report.TaskID); err != nil {
		return err
	}
	fmt.Fprintf(w, "  mode=%s files=%d loc=%d out_of_scope=%d\n",
		report.Contract.Mode,
		report.Telemetry[drift.TelemetryFilesChanged],
		report.Telemetry[drift.TelemetryLocChanged],
		report.Telemetry[drift.TelemetryOutOfScopeFiles])

	if len(report.Findings) > 0 {
		fmt.Fprintln(w)
		table := NewTable(w, "KIND", "SEVERITY", "MESSAGE", "EVIDENCE")
		table.SetMaxWidth(2, 60)
		for _, f := range report.Findings {
			table.AddRow(string(f.Kind), string(f.Severity), f.Message, evidenceCell(f.Evidence))
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if len(report.Recommendations) > 0 {
		fmt.Fprintln(w)
		for _, rec := range report.Recommendations {
			fmt.Fprintf(w, "  next: %s\n", rec)
		}
	}
	return nil
}

func scoreBadge(s drift.Score) string {
	switch s {
	case drift.ScoreGreen:
		return "OK   "
	case drift.ScoreYellow:
		return "DRIFT"
	case drift.ScoreRed:
		return "RED  "
	default:
		return strings.ToUpper(string(s))
	}
}

// evidenceCell compresses an evidence list into one table cell.
func evidenceCell(evidence []string) string {
	const shown = 3
	if len(evidence) <= shown {
		return strings.Join(evidence, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(evidence[:shown], ", "), len(evidence)-shown)
}

// MarkdownFormatter writes the report as a markdown section, suitable for
// pasting into task notes and review threads.
type MarkdownFormatter struct{}

func (mf *MarkdownFormatter) Format(w io.Writer, report *drift.Report) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(markdownTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return tmpl.Execute(w, report)
}

const markdownTemplate = `## Drift report: {{ .TaskID }}

- **Score:** {{ .Score }}
- **Mode:** {{ .Contract.Mode }}
- **Checked:** {{ .Timestamp.Format "2006-01-02 15:04:05 MST" }}
- **Files changed:** {{ index .Telemetry "files_changed" }}
- **Lines changed:** {{ index .Telemetry "loc_changed" }}

{{- if .Findings }}

| Kind | Severity | Message |
|------|----------|---------|
{{- range .Findings }}
| {{ .Kind }} | {{ .Severity }} | {{ .Message }} |
{{- end }}
{{- end }}

{{- if .Recommendations }}

### Countersteer

{{- range .Recommendations }}
- {{ . }}
{{- end }}
{{- end }}
`
