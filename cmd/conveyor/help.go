// ABOUTME: Help display for the conveyor CLI with usage patterns, grouped flags, and examples.
// ABOUTME: Provides printHelp for formatted usage output on stderr or stdout.
package main

import (
	"fmt"
	"io"
)

// printHelp writes a formatted help message to w, including usage patterns,
// grouped flags, and examples.
func printHelp(w io.Writer, ver string) {
	fmt.Fprintf(w, "conveyor %s — YAML-defined CI pipeline runner\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  conveyor run <pipeline.yaml>        Run a pipeline")
	fmt.Fprintln(w, "  conveyor validate <pipeline.yaml>   Validate without executing")
	fmt.Fprintln(w, "  conveyor serve [-port 4077]         Serve the run history HTTP API")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Run Flags:")
	fmt.Fprintln(w, "  -work-dir <dir>       Working directory for stage commands (default: current directory)")
	fmt.Fprintln(w, "  -data-dir <dir>       Run history directory (default: $XDG_DATA_HOME/conveyor)")
	fmt.Fprintln(w, "  -verbose              Print engine lifecycle events to stderr")
	fmt.Fprintln(w, "  -no-color             Disable styled output")
	fmt.Fprintln(w, "  -no-history           Skip recording the run in the history store")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Serve Flags:")
	fmt.Fprintln(w, "  -port <port>          Server port (default: 4077)")
	fmt.Fprintln(w, "  -data-dir <dir>       Run history directory (default: $XDG_DATA_HOME/conveyor)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Other:")
	fmt.Fprintln(w, "  -version              Print version and exit")
	fmt.Fprintln(w, "  -help                 Show this help")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Exit codes:")
	fmt.Fprintln(w, "  0  pipeline succeeded")
	fmt.Fprintln(w, "  1  pipeline failed or definition invalid")
	fmt.Fprintln(w, "  2  run aborted or bad usage")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  conveyor run examples/build.yaml")
	fmt.Fprintln(w, "  conveyor run -verbose -work-dir ./app pipeline.yaml")
	fmt.Fprintln(w, "  conveyor validate pipeline.yaml")
	fmt.Fprintln(w, "  conveyor serve -port 8080")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Docs: https://github.com/2389-research/conveyor")
}
