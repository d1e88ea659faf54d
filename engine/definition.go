// ABOUTME: YAML pipeline definition loading and normalization into Stage values.
// ABOUTME: Handles the `run:` shell shorthand, stage defaults, and field-level validation.
package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultStageTimeout is used when neither the stage nor the pipeline defaults
// specify a timeout.
const defaultStageTimeout = 30 * time.Minute

// StagePolicy governs whether a stage failure aborts the pipeline.
type StagePolicy string

const (
	// PolicyRequired halts the pipeline when the stage fails.
	PolicyRequired StagePolicy = "required"
	// PolicyContinueOnError records the failure as a warning and keeps going.
	PolicyContinueOnError StagePolicy = "continue-on-error"
)

// RunMode controls how a stage's command list determines the stage result.
type RunMode string

const (
	// ModeAll requires every command to exit 0; execution stops at the first failure.
	ModeAll RunMode = "all"
	// ModeAny treats the command list as a fallback chain: the first success wins,
	// and the stage fails only if every command fails.
	ModeAny RunMode = "any"
)

// Stage is a named, policy-governed unit of work in a pipeline.
type Stage struct {
	Name      string
	Commands  []CommandSpec
	Policy    StagePolicy
	DependsOn []string
	Condition string
	Dir       string   // stage working directory; also where declared artifacts resolve
	Artifacts []string // declared output glob patterns
	Timeout   time.Duration
	Mode      RunMode
}

// Definition is a parsed pipeline definition: an ordered list of stages plus
// pipeline-wide environment overrides.
type Definition struct {
	Name   string
	Env    map[string]string
	Stages []*Stage
}

// fileDefinition mirrors the YAML document shape before normalization.
type fileDefinition struct {
	Name     string            `yaml:"name"`
	Env      map[string]string `yaml:"env"`
	Defaults fileDefaults      `yaml:"defaults"`
	Stages   []fileStage       `yaml:"stages"`
}

type fileDefaults struct {
	Timeout string `yaml:"timeout"`
	Policy  string `yaml:"policy"`
}

type fileStage struct {
	Name      string            `yaml:"name"`
	Run       string            `yaml:"run"`
	Commands  []fileCommand     `yaml:"commands"`
	DependsOn []string          `yaml:"depends_on"`
	Policy    string            `yaml:"policy"`
	Condition string            `yaml:"condition"`
	Artifacts []string          `yaml:"artifacts"`
	Timeout   string            `yaml:"timeout"`
	Mode      string            `yaml:"mode"`
	Dir       string            `yaml:"dir"`
	Env       map[string]string `yaml:"env"`
}

type fileCommand struct {
	Name    string            `yaml:"name"`
	Run     string            `yaml:"run"`
	Program string            `yaml:"program"`
	Args    []string          `yaml:"args"`
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`
}

// LoadDefinition reads and parses a pipeline definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline definition: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition parses YAML pipeline definition source into a normalized
// Definition. Structural validation (dependencies, cycles, condition
// references) happens later in BuildGraph; this function validates field
// values only.
func ParseDefinition(data []byte) (*Definition, error) {
	var fd fileDefinition
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("parse pipeline definition: %w", err)
	}

	if len(fd.Stages) == 0 {
		return nil, fmt.Errorf("pipeline definition has no stages")
	}

	defaultPolicy := PolicyRequired
	if fd.Defaults.Policy != "" {
		p, err := parsePolicy(fd.Defaults.Policy)
		if err != nil {
			return nil, fmt.Errorf("defaults: %w", err)
		}
		defaultPolicy = p
	}

	defaultTimeout := defaultStageTimeout
	if fd.Defaults.Timeout != "" {
		d, err := time.ParseDuration(fd.Defaults.Timeout)
		if err != nil {
			return nil, fmt.Errorf("defaults: invalid timeout %q: %v", fd.Defaults.Timeout, err)
		}
		defaultTimeout = d
	}

	def := &Definition{
		Name:   fd.Name,
		Env:    fd.Env,
		Stages: make([]*Stage, 0, len(fd.Stages)),
	}

	for i, fs := range fd.Stages {
		stage, err := normalizeStage(fs, defaultPolicy, defaultTimeout)
		if err != nil {
			name := fs.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return nil, fmt.Errorf("stage %s: %w", name, err)
		}
		def.Stages = append(def.Stages, stage)
	}

	return def, nil
}

// normalizeStage converts one YAML stage record into a Stage, applying the
// pipeline defaults and expanding the `run:` shorthand into a command list.
func normalizeStage(fs fileStage, defaultPolicy StagePolicy, defaultTimeout time.Duration) (*Stage, error) {
	if fs.Name == "" {
		return nil, fmt.Errorf("missing name")
	}

	if fs.Run != "" && len(fs.Commands) > 0 {
		return nil, fmt.Errorf("use either run or commands, not both")
	}
	if fs.Run == "" && len(fs.Commands) == 0 {
		return nil, fmt.Errorf("no commands")
	}

	policy := defaultPolicy
	if fs.Policy != "" {
		p, err := parsePolicy(fs.Policy)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	mode := ModeAll
	if fs.Mode != "" {
		switch RunMode(fs.Mode) {
		case ModeAll, ModeAny:
			mode = RunMode(fs.Mode)
		default:
			return nil, fmt.Errorf("invalid mode %q (want all or any)", fs.Mode)
		}
	}

	timeout := defaultTimeout
	if fs.Timeout != "" {
		d, err := time.ParseDuration(fs.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %v", fs.Timeout, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("timeout must be positive, got %q", fs.Timeout)
		}
		timeout = d
	}

	if fs.Condition != "" {
		if _, err := ParseCondition(fs.Condition); err != nil {
			return nil, err
		}
	}

	stage := &Stage{
		Name:      fs.Name,
		Policy:    policy,
		DependsOn: fs.DependsOn,
		Condition: fs.Condition,
		Dir:       fs.Dir,
		Artifacts: fs.Artifacts,
		Timeout:   timeout,
		Mode:      mode,
	}

	if fs.Run != "" {
		stage.Commands = []CommandSpec{{
			Name:  fs.Name,
			Shell: fs.Run,
			Dir:   fs.Dir,
			Env:   fs.Env,
		}}
		return stage, nil
	}

	for i, fc := range fs.Commands {
		spec, err := normalizeCommand(fc, fs)
		if err != nil {
			return nil, fmt.Errorf("command #%d: %w", i+1, err)
		}
		stage.Commands = append(stage.Commands, spec)
	}

	return stage, nil
}

// normalizeCommand converts one YAML command record into a CommandSpec,
// layering stage-level dir and env under the command's own settings.
func normalizeCommand(fc fileCommand, fs fileStage) (CommandSpec, error) {
	if fc.Run != "" && fc.Program != "" {
		return CommandSpec{}, fmt.Errorf("use either run or program, not both")
	}
	if fc.Run == "" && fc.Program == "" {
		return CommandSpec{}, fmt.Errorf("missing run or program")
	}

	spec := CommandSpec{
		Name:    fc.Name,
		Shell:   fc.Run,
		Program: fc.Program,
		Args:    fc.Args,
		Dir:     fc.Dir,
		Env:     mergeEnv(fs.Env, fc.Env),
	}
	if spec.Dir == "" {
		spec.Dir = fs.Dir
	}
	if spec.Name == "" {
		if spec.Shell != "" {
			spec.Name = spec.Shell
		} else {
			spec.Name = spec.Program
		}
	}
	return spec, nil
}

// parsePolicy maps a definition policy string to a StagePolicy.
func parsePolicy(s string) (StagePolicy, error) {
	switch StagePolicy(s) {
	case PolicyRequired, PolicyContinueOnError:
		return StagePolicy(s), nil
	default:
		return "", fmt.Errorf("invalid policy %q (want required or continue-on-error)", s)
	}
}

// mergeEnv overlays the second map on top of the first, returning nil when
// both are empty. Neither input map is mutated.
func mergeEnv(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
