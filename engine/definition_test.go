// ABOUTME: Tests for YAML pipeline definition parsing and stage normalization.
// ABOUTME: Covers the run shorthand, defaults, policy/mode/timeout validation, and env layering.
package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefinition_RunShorthand(t *testing.T) {
	def, err := ParseDefinition([]byte(`
name: build-pipeline
stages:
  - name: build
    run: make build
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if def.Name != "build-pipeline" {
		t.Errorf("expected name build-pipeline, got %q", def.Name)
	}
	if len(def.Stages) != 1 {
		t.Fatalf("expected 1 stage, got %d", len(def.Stages))
	}

	stage := def.Stages[0]
	if len(stage.Commands) != 1 || stage.Commands[0].Shell != "make build" {
		t.Errorf("expected run shorthand to become one shell command, got %+v", stage.Commands)
	}
	if stage.Policy != PolicyRequired {
		t.Errorf("expected default policy required, got %s", stage.Policy)
	}
	if stage.Mode != ModeAll {
		t.Errorf("expected default mode all, got %s", stage.Mode)
	}
	if stage.Timeout != defaultStageTimeout {
		t.Errorf("expected default timeout, got %s", stage.Timeout)
	}
}

func TestParseDefinition_CommandList(t *testing.T) {
	def, err := ParseDefinition([]byte(`
stages:
  - name: test
    commands:
      - name: unit
        run: go test ./...
      - name: vet
        program: go
        args: [vet, ./...]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stage := def.Stages[0]
	if len(stage.Commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(stage.Commands))
	}
	if stage.Commands[0].Shell != "go test ./..." {
		t.Errorf("unexpected shell command: %+v", stage.Commands[0])
	}
	if stage.Commands[1].Program != "go" || len(stage.Commands[1].Args) != 2 {
		t.Errorf("unexpected program command: %+v", stage.Commands[1])
	}
}

func TestParseDefinition_RunAndCommandsExclusive(t *testing.T) {
	_, err := ParseDefinition([]byte(`
stages:
  - name: bad
    run: make
    commands:
      - run: make
`))
	if err == nil || !strings.Contains(err.Error(), "not both") {
		t.Errorf("expected exclusivity error, got %v", err)
	}
}

func TestParseDefinition_StageWithoutCommands(t *testing.T) {
	_, err := ParseDefinition([]byte(`
stages:
  - name: empty
`))
	if err == nil || !strings.Contains(err.Error(), "no commands") {
		t.Errorf("expected no-commands error, got %v", err)
	}
}

func TestParseDefinition_MissingStageName(t *testing.T) {
	_, err := ParseDefinition([]byte(`
stages:
  - run: make
`))
	if err == nil || !strings.Contains(err.Error(), "missing name") {
		t.Errorf("expected missing-name error, got %v", err)
	}
}

func TestParseDefinition_NoStages(t *testing.T) {
	if _, err := ParseDefinition([]byte(`name: empty`)); err == nil {
		t.Error("expected error for a pipeline with no stages")
	}
}

func TestParseDefinition_Defaults(t *testing.T) {
	def, err := ParseDefinition([]byte(`
defaults:
  policy: continue-on-error
  timeout: 5m
stages:
  - name: lint
    run: make lint
  - name: build
    run: make build
    policy: required
    timeout: 90s
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lint, build := def.Stages[0], def.Stages[1]
	if lint.Policy != PolicyContinueOnError || lint.Timeout != 5*time.Minute {
		t.Errorf("expected defaults applied to lint, got %s %s", lint.Policy, lint.Timeout)
	}
	if build.Policy != PolicyRequired || build.Timeout != 90*time.Second {
		t.Errorf("expected stage overrides on build, got %s %s", build.Policy, build.Timeout)
	}
}

func TestParseDefinition_InvalidPolicy(t *testing.T) {
	_, err := ParseDefinition([]byte(`
stages:
  - name: build
    run: make
    policy: optional
`))
	if err == nil || !strings.Contains(err.Error(), "invalid policy") {
		t.Errorf("expected invalid policy error, got %v", err)
	}
}

func TestParseDefinition_InvalidMode(t *testing.T) {
	_, err := ParseDefinition([]byte(`
stages:
  - name: build
    run: make
    mode: first
`))
	if err == nil || !strings.Contains(err.Error(), "invalid mode") {
		t.Errorf("expected invalid mode error, got %v", err)
	}
}

func TestParseDefinition_NegativeTimeout(t *testing.T) {
	_, err := ParseDefinition([]byte(`
stages:
  - name: build
    run: make
    timeout: -3s
`))
	if err == nil || !strings.Contains(err.Error(), "positive") {
		t.Errorf("expected positive timeout error, got %v", err)
	}
}

func TestParseDefinition_InvalidConditionRejectedAtParse(t *testing.T) {
	_, err := ParseDefinition([]byte(`
stages:
  - name: notify
    run: ./notify.sh
    condition: whenever
`))
	if err == nil || !strings.Contains(err.Error(), "invalid condition") {
		t.Errorf("expected condition parse error, got %v", err)
	}
}

func TestParseDefinition_StageEnvLayersUnderCommandEnv(t *testing.T) {
	def, err := ParseDefinition([]byte(`
stages:
  - name: build
    dir: /tmp
    env:
      CC: gcc
      DEBUG: "1"
    commands:
      - name: compile
        run: make
        env:
          CC: clang
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmd := def.Stages[0].Commands[0]
	if cmd.Env["CC"] != "clang" {
		t.Errorf("command env must override stage env, got %q", cmd.Env["CC"])
	}
	if cmd.Env["DEBUG"] != "1" {
		t.Errorf("stage env must flow into command env, got %q", cmd.Env["DEBUG"])
	}
	if cmd.Dir != "/tmp" {
		t.Errorf("stage dir must be command default, got %q", cmd.Dir)
	}
	if def.Stages[0].Dir != "/tmp" {
		t.Errorf("stage dir must be kept on the stage for artifact resolution, got %q", def.Stages[0].Dir)
	}
}

func TestParseDefinition_CommandNameDefaults(t *testing.T) {
	def, err := ParseDefinition([]byte(`
stages:
  - name: build
    commands:
      - run: make build
      - program: gofmt
        args: [-l, .]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmds := def.Stages[0].Commands
	if cmds[0].Name != "make build" {
		t.Errorf("expected shell text as default name, got %q", cmds[0].Name)
	}
	if cmds[1].Name != "gofmt" {
		t.Errorf("expected program as default name, got %q", cmds[1].Name)
	}
}

func TestLoadDefinition_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	source := []byte("name: demo\nstages:\n  - name: build\n    run: make\n")
	if err := os.WriteFile(path, source, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Name != "demo" {
		t.Errorf("expected name demo, got %q", def.Name)
	}

	if _, err := LoadDefinition(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
