// ABOUTME: Command runner that executes one external process with capture and timeout.
// ABOUTME: Never errors past its boundary; launch failures and timeouts become CommandResult kinds.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ResultKind classifies how a command invocation ended.
type ResultKind string

const (
	KindOK            ResultKind = "ok"
	KindNonZeroExit   ResultKind = "non_zero_exit"
	KindLaunchFailure ResultKind = "launch_failure"
	KindTimeout       ResultKind = "timeout"
)

// CommandSpec describes one external process invocation. Either Shell (run via
// `sh -c`) or Program+Args is set, never both. Env is an overlay applied on
// top of the inherited environment; the parent process environment is never
// mutated.
type CommandSpec struct {
	Name    string
	Shell   string
	Program string
	Args    []string
	Dir     string
	Env     map[string]string
}

// Display returns a short human-readable form of the command for reports and
// diagnostics.
func (s CommandSpec) Display() string {
	if s.Shell != "" {
		return s.Shell
	}
	out := s.Program
	for _, a := range s.Args {
		out += " " + a
	}
	return out
}

// CommandResult captures the observable outcome of one command invocation.
type CommandResult struct {
	Spec     CommandSpec
	Kind     ResultKind
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Failed reports whether the invocation ended in anything but a clean exit.
func (r CommandResult) Failed() bool {
	return r.Kind != KindOK
}

// RunCommand executes the command described by spec, capturing stdout, stderr,
// and the exit code. The process runs in its own process group so the whole
// tree can be killed on timeout or cancellation. RunCommand never returns an
// error: a process that cannot be started yields ExitCode -1 with
// KindLaunchFailure and the reason in Stderr, and a deadline overrun yields
// KindTimeout.
func RunCommand(ctx context.Context, spec CommandSpec) CommandResult {
	start := time.Now()

	result := CommandResult{Spec: spec, Kind: KindOK}

	if err := ctx.Err(); err != nil {
		result.Kind = KindLaunchFailure
		result.ExitCode = -1
		result.Stderr = fmt.Sprintf("not started: %v", err)
		return result
	}

	var cmd *exec.Cmd
	if spec.Shell != "" {
		cmd = exec.CommandContext(ctx, "sh", "-c", spec.Shell)
	} else {
		cmd = exec.CommandContext(ctx, spec.Program, spec.Args...)
	}

	// Own process group so shell children die with the parent on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	if spec.Dir != "" {
		if _, err := os.Stat(spec.Dir); err != nil {
			result.Kind = KindLaunchFailure
			result.ExitCode = -1
			result.Stderr = fmt.Sprintf("invalid working directory %q: %v", spec.Dir, err)
			result.Duration = time.Since(start)
			return result
		}
		cmd.Dir = spec.Dir
	}

	if len(spec.Env) > 0 {
		cmd.Env = buildEnv(spec.Env)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Duration = time.Since(start)

	if runErr == nil {
		return result
	}

	if _, ok := runErr.(*exec.ExitError); !ok && ctx.Err() == nil {
		// The process never started: missing binary, permission denied, etc.
		result.Kind = KindLaunchFailure
		result.ExitCode = -1
		if result.Stderr != "" {
			result.Stderr += "\n"
		}
		result.Stderr += runErr.Error()
		return result
	}

	result.ExitCode = extractExitCode(runErr)

	if ctx.Err() == context.DeadlineExceeded {
		result.Kind = KindTimeout
		return result
	}

	result.Kind = KindNonZeroExit
	return result
}

// buildEnv constructs the child environment by inheriting the parent
// environment and overlaying the provided vars.
func buildEnv(overlay map[string]string) []string {
	env := os.Environ()
	for k, v := range overlay {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// extractExitCode pulls the integer exit code from an *exec.ExitError,
// defaulting to -1 if the type doesn't match (e.g. killed before exit).
func extractExitCode(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// killProcessGroup sends SIGKILL to the entire process group of the command so
// children spawned by the shell are terminated along with it.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
}
