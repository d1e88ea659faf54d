// ABOUTME: Defines lipgloss style constants for CLI run summaries and status coloring.
// ABOUTME: Provides Styled, which renders the report table with colored statuses for terminals.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/conveyor/engine"
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	SucceededStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	WarnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	SkippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// StyleForStatus returns the display style for a stage status.
func StyleForStatus(status engine.StageStatus) lipgloss.Style {
	switch status {
	case engine.StatusSucceeded:
		return SucceededStyle
	case engine.StatusFailedRequired, engine.StatusTimedOut, engine.StatusAborted:
		return FailedStyle
	case engine.StatusFailedIgnored:
		return WarnStyle
	default:
		return SkippedStyle
	}
}

// Styled renders the report for a terminal, coloring statuses and warnings.
// With noColor set it falls back to the plain deterministic Text form.
func Styled(report *engine.Report, noColor bool) string {
	if noColor {
		return Text(report)
	}

	var b strings.Builder

	name := report.Pipeline
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&b, "%s run %s\n", HeaderStyle.Render("pipeline "+name), report.RunID)

	outcomeStyle := SucceededStyle
	if report.Outcome != engine.OutcomeSucceeded {
		outcomeStyle = FailedStyle
	}
	fmt.Fprintf(&b, "outcome: %s (total %s)\n\n", outcomeStyle.Render(string(report.Outcome)), report.TotalDuration)

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

	fmt.Fprintln(&b, HeaderStyle.Render(fmt.Sprintf("%-*s  %-*s  %5s  %10s  %s",
		nameWidth, "STAGE", statusWidth, "STATUS", "EXIT", "DURATION", "DETAIL")))
	for _, s := range report.Stages {
		detail := s.FailureReason
		if detail == "" {
			detail = s.SkipReason
		}
		status := StyleForStatus(s.Status).Render(fmt.Sprintf("%-*s", statusWidth, string(s.Status)))
		fmt.Fprintf(&b, "%-*s  %s  %5d  %10s  %s\n",
			nameWidth, s.Name, status, s.ExitCode, s.Duration.String(), detail)
	}

	if len(report.Warnings) > 0 {
		b.WriteString("\n" + WarnStyle.Render("warnings:") + "\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}

	if rc := report.RootCause; rc != nil {
		b.WriteString("\n" + FailedStyle.Render(fmt.Sprintf("root cause: stage %q", rc.Stage)) + "\n")
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
