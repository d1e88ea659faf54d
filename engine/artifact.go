// ABOUTME: Append-only artifact registry mapping stage name to produced artifact paths.
// ABOUTME: Resolves declared glob patterns and expands ${artifacts:stage} references in commands.
package engine

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// artifactRefPattern matches ${artifacts:stage} placeholders in command text.
var artifactRefPattern = regexp.MustCompile(`\$\{artifacts:([A-Za-z0-9_.-]+)\}`)

// ArtifactStore maps stage names to the ordered list of artifact paths they
// produced. Registration is append-only and idempotent: re-registering a stage
// merges, and duplicate paths are dropped rather than duplicated.
type ArtifactStore struct {
	mu      sync.RWMutex
	byStage map[string][]string
	seen    map[string]map[string]bool
}

// NewArtifactStore creates an empty artifact store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		byStage: make(map[string][]string),
		seen:    make(map[string]map[string]bool),
	}
}

// Register records artifact paths produced by a stage. Paths already
// registered for the stage are ignored, so repeated registration with the
// same paths leaves the store unchanged.
func (s *ArtifactStore) Register(stage string, paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.seen[stage]
	if seen == nil {
		seen = make(map[string]bool)
		s.seen[stage] = seen
	}
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		s.byStage[stage] = append(s.byStage[stage], p)
	}
}

// List returns the ordered artifact paths registered for a stage.
func (s *ArtifactStore) List(stage string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := s.byStage[stage]
	out := make([]string, len(paths))
	copy(out, paths)
	return out
}

// All returns a copy of the full stage-to-artifacts mapping.
func (s *ArtifactStore) All() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.byStage))
	for stage, paths := range s.byStage {
		cp := make([]string, len(paths))
		copy(cp, paths)
		out[stage] = cp
	}
	return out
}

// Expand returns a copy of spec with every ${artifacts:stage} placeholder
// replaced by the space-joined artifact list of that stage. Unregistered
// stages expand to the empty string.
func (s *ArtifactStore) Expand(spec CommandSpec) CommandSpec {
	expand := func(text string) string {
		return artifactRefPattern.ReplaceAllStringFunc(text, func(match string) string {
			stage := artifactRefPattern.FindStringSubmatch(match)[1]
			return strings.Join(s.List(stage), " ")
		})
	}

	out := spec
	out.Shell = expand(spec.Shell)
	if len(spec.Args) > 0 {
		out.Args = make([]string, len(spec.Args))
		for i, a := range spec.Args {
			out.Args[i] = expand(a)
		}
	}
	if len(spec.Env) > 0 {
		out.Env = make(map[string]string, len(spec.Env))
		for k, v := range spec.Env {
			out.Env[k] = expand(v)
		}
	}
	return out
}

// ResolveDeclared matches a stage's declared artifact patterns against the
// working directory. It returns the matched paths in sorted order plus the
// patterns that matched nothing; unmatched patterns are surfaced as warnings
// by the engine, never as failures.
func ResolveDeclared(stage *Stage, workDir string) (found []string, missing []string) {
	for _, pattern := range stage.Artifacts {
		glob := pattern
		if workDir != "" && !filepath.IsAbs(pattern) {
			glob = filepath.Join(workDir, pattern)
		}
		matches, err := filepath.Glob(glob)
		if err != nil || len(matches) == 0 {
			missing = append(missing, pattern)
			continue
		}
		sort.Strings(matches)
		found = append(found, matches...)
	}
	return found, missing
}

// artifactRefs returns the unique stage names referenced by ${artifacts:...}
// placeholders anywhere in the command spec.
func artifactRefs(spec CommandSpec) []string {
	texts := []string{spec.Shell}
	texts = append(texts, spec.Args...)
	for _, v := range spec.Env {
		texts = append(texts, v)
	}

	seen := make(map[string]bool)
	refs := make([]string, 0)
	for _, text := range texts {
		for _, match := range artifactRefPattern.FindAllStringSubmatch(text, -1) {
			if !seen[match[1]] {
				seen[match[1]] = true
				refs = append(refs, match[1])
			}
		}
	}
	sort.Strings(refs)
	return refs
}
