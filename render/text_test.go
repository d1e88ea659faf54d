// ABOUTME: Tests for plain-text, markdown, and HTML report rendering.
// ABOUTME: Checks byte determinism, table content, warnings, and root cause sections.
package render

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/2389-research/conveyor/engine"
)

func sampleReport() *engine.Report {
	return &engine.Report{
		RunID:         "01SAMPLE",
		Pipeline:      "release",
		Outcome:       engine.OutcomeFailedRequired,
		TotalDuration: 5 * time.Second,
		Stages: []engine.StageReport{
			{Name: "build", Status: engine.StatusSucceeded, Policy: engine.PolicyRequired, Duration: 2 * time.Second},
			{Name: "test", Status: engine.StatusFailedRequired, Policy: engine.PolicyRequired, ExitCode: 1,
				Duration: 3 * time.Second, FailureReason: `command "go test" exited with code 1`},
			{Name: "package", Status: engine.StatusSkipped, Policy: engine.PolicyRequired,
				SkipReason: `pipeline halted by required failure in "test"`},
		},
		RootCause: &engine.RootCause{
			Stage:      "test",
			Command:    "go test",
			ExitCode:   1,
			StderrTail: "--- FAIL: TestThing\nFAIL",
		},
		Warnings: []string{`stage "lint" failed (failed_ignored) but was not required: lint errors`},
	}
}

func TestText_ContainsAllStages(t *testing.T) {
	out := Text(sampleReport())

	for _, want := range []string{"build", "test", "package", "succeeded", "failed_required", "skipped"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q\n%s", want, out)
		}
	}
	if !strings.Contains(out, "pipeline release run 01SAMPLE") {
		t.Errorf("expected header line, got:\n%s", out)
	}
}

func TestText_ByteDeterministic(t *testing.T) {
	report := sampleReport()
	first := Text(report)
	for i := 0; i < 50; i++ {
		if Text(report) != first {
			t.Fatal("Text output differs across calls for the same report")
		}
	}
}

func TestText_RootCauseSection(t *testing.T) {
	out := Text(sampleReport())

	if !strings.Contains(out, `root cause: stage "test"`) {
		t.Errorf("expected root cause section:\n%s", out)
	}
	if !strings.Contains(out, "--- FAIL: TestThing") {
		t.Errorf("expected stderr tail:\n%s", out)
	}
}

func TestText_WarningsSection(t *testing.T) {
	out := Text(sampleReport())
	if !strings.Contains(out, "warnings:") || !strings.Contains(out, `stage "lint" failed`) {
		t.Errorf("expected warnings section:\n%s", out)
	}

	clean := sampleReport()
	clean.Warnings = nil
	clean.RootCause = nil
	out = Text(clean)
	if strings.Contains(out, "warnings:") || strings.Contains(out, "root cause") {
		t.Errorf("expected no warnings or root cause sections:\n%s", out)
	}
}

func TestText_UnnamedPipeline(t *testing.T) {
	report := sampleReport()
	report.Pipeline = ""
	if !strings.Contains(Text(report), "(unnamed)") {
		t.Error("expected placeholder for unnamed pipeline")
	}
}

func TestMarkdown_Table(t *testing.T) {
	out := Markdown(sampleReport())

	if !strings.Contains(out, "| Stage | Status | Exit | Duration | Detail |") {
		t.Errorf("expected table header:\n%s", out)
	}
	if !strings.Contains(out, "| test | failed_required | 1 |") {
		t.Errorf("expected test row:\n%s", out)
	}
	if !strings.Contains(out, "## Root cause") {
		t.Errorf("expected root cause heading:\n%s", out)
	}
}

func TestMarkdown_EscapesPipesInDetail(t *testing.T) {
	report := sampleReport()
	report.Stages[1].FailureReason = "a | b"

	out := Markdown(report)
	if !strings.Contains(out, `a \| b`) {
		t.Errorf("expected escaped pipe:\n%s", out)
	}
}

func TestHTML_RendersTable(t *testing.T) {
	out, err := HTML(sampleReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	html := string(out)
	if !strings.Contains(html, "<table>") {
		t.Errorf("expected an HTML table:\n%s", html)
	}
	if !strings.Contains(html, "failed_required") {
		t.Errorf("expected status cell:\n%s", html)
	}
}

func TestStyled_NoColorFallsBackToText(t *testing.T) {
	report := sampleReport()
	if Styled(report, true) != Text(report) {
		t.Error("no-color styled output must equal the plain text form")
	}
}

func TestStyled_ContainsStageNames(t *testing.T) {
	out := Styled(sampleReport(), false)
	for _, want := range []string{"build", "test", "package"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected styled output to contain %q", want)
		}
	}
}

func TestStyleForStatus(t *testing.T) {
	if !reflect.DeepEqual(StyleForStatus(engine.StatusSucceeded), SucceededStyle) {
		t.Error("succeeded must map to SucceededStyle")
	}
	if !reflect.DeepEqual(StyleForStatus(engine.StatusTimedOut), FailedStyle) {
		t.Error("timed_out must map to FailedStyle")
	}
	if !reflect.DeepEqual(StyleForStatus(engine.StatusFailedIgnored), WarnStyle) {
		t.Error("failed_ignored must map to WarnStyle")
	}
	if !reflect.DeepEqual(StyleForStatus(engine.StatusSkipped), SkippedStyle) {
		t.Error("skipped must map to SkippedStyle")
	}
}
