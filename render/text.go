// ABOUTME: Plain-text and markdown rendering of finalized run reports.
// ABOUTME: Output is byte-deterministic for a given report; no clocks, no map iteration.
package render

import (
	"fmt"
	"strings"

	"github.com/2389-research/conveyor/engine"
)

// Text renders a report as a fixed-layout plain-text summary. Given the same
// report value, the output is byte-identical across calls.
func Text(report *engine.Report) string {
	var b strings.Builder

	name := report.Pipeline
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&b, "pipeline %s run %s\n", name, report.RunID)
	fmt.Fprintf(&b, "outcome: %s (total %s)\n\n", report.Outcome, report.TotalDuration)

	nameWidth := len("STAGE")
	statusWidth := len("STATUS")
	for _, s := range report.Stages {
		if len(s.Name) > nameWidth {
			nameWidth = len(s.Name)
		}
		if len(s.Status) > statusWidth {
			statusWidth = len(s.Status)
		}
	}

	fmt.Fprintf(&b, "%-*s  %-*s  %5s  %10s  %s\n", nameWidth, "STAGE", statusWidth, "STATUS", "EXIT", "DURATION", "DETAIL")
	for _, s := range report.Stages {
		detail := s.FailureReason
		if detail == "" {
			detail = s.SkipReason
		}
		fmt.Fprintf(&b, "%-*s  %-*s  %5d  %10s  %s\n",
			nameWidth, s.Name, statusWidth, string(s.Status), s.ExitCode, s.Duration.String(), detail)
	}

	if len(report.Warnings) > 0 {
		b.WriteString("\nwarnings:\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}

	if rc := report.RootCause; rc != nil {
		fmt.Fprintf(&b, "\nroot cause: stage %q\n", rc.Stage)
		fmt.Fprintf(&b, "  command: %s\n", rc.Command)
		fmt.Fprintf(&b, "  exit code: %d\n", rc.ExitCode)
		if rc.StderrTail != "" {
			b.WriteString("  stderr:\n")
			for _, line := range strings.Split(rc.StderrTail, "\n") {
				fmt.Fprintf(&b, "    %s\n", line)
			}
		}
	}

	return b.String()
}

// Markdown renders a report as a markdown document suitable for posting to a
// build summary or converting to HTML.
func Markdown(report *engine.Report) string {
	var b strings.Builder

	name := report.Pipeline
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&b, "# Pipeline %s — run %s\n\n", name, report.RunID)
	fmt.Fprintf(&b, "**Outcome:** %s · **Total:** %s\n\n", report.Outcome, report.TotalDuration)

	b.WriteString("| Stage | Status | Exit | Duration | Detail |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, s := range report.Stages {
		detail := s.FailureReason
		if detail == "" {
			detail = s.SkipReason
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %s |\n",
			s.Name, s.Status, s.ExitCode, s.Duration, escapePipes(detail))
	}

	if len(report.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	if rc := report.RootCause; rc != nil {
		b.WriteString("\n## Root cause\n\n")
		fmt.Fprintf(&b, "Stage `%s` failed running `%s` (exit %d).\n", rc.Stage, rc.Command, rc.ExitCode)
		if rc.StderrTail != "" {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", rc.StderrTail)
		}
	}

	return b.String()
}

// escapePipes keeps literal pipes from breaking markdown table cells.
func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
