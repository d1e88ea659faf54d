// ABOUTME: CLI entrypoint for the conveyor pipeline runner with run, validate, and serve modes.
// ABOUTME: Wires together the execution engine, history store, HTTP server, and signal handling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389-research/conveyor/engine"
	"github.com/2389-research/conveyor/history"
	"github.com/2389-research/conveyor/render"
	"github.com/2389-research/conveyor/web"
)

var version = "dev"

// Exit codes: 0 = pipeline succeeded, 1 = pipeline or validation failed,
// 2 = run aborted or bad usage.
const (
	exitOK      = 0
	exitFailed  = 1
	exitAborted = 2
)

func main() {
	loadDotEnv(".env")
	os.Exit(dispatch(os.Args[1:]))
}

// dispatch routes to a subcommand based on the first argument.
func dispatch(args []string) int {
	if len(args) == 0 {
		printHelp(os.Stderr, version)
		return exitOK
	}

	switch args[0] {
	case "run":
		return runPipeline(args[1:])
	case "validate":
		return validatePipeline(args[1:])
	case "serve":
		return runServer(args[1:])
	case "version", "-version", "--version":
		fmt.Printf("conveyor %s\n", version)
		return exitOK
	case "help", "-h", "-help", "--help":
		printHelp(os.Stdout, version)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", args[0])
		printHelp(os.Stderr, version)
		return exitAborted
	}
}

// runConfig holds flags for the run subcommand.
type runConfig struct {
	workDir      string
	dataDir      string
	verbose      bool
	noColor      bool
	noHistory    bool
	pipelineFile string
}

// runPipeline loads a pipeline definition, executes it, records the run in
// the history store, and prints the run report.
func runPipeline(args []string) int {
	var cfg runConfig

	fs := flag.NewFlagSet("conveyor run", flag.ContinueOnError)
	fs.StringVar(&cfg.workDir, "work-dir", "", "Working directory for stage commands (default: current directory)")
	fs.StringVar(&cfg.dataDir, "data-dir", "", "Data directory for run history (default: $XDG_DATA_HOME/conveyor)")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Print engine lifecycle events to stderr")
	fs.BoolVar(&cfg.noColor, "no-color", false, "Disable styled output")
	fs.BoolVar(&cfg.noHistory, "no-history", false, "Skip recording the run in the history store")
	fs.Usage = func() { printHelp(os.Stderr, version) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitAborted
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "error: missing pipeline file")
		return exitAborted
	}
	cfg.pipelineFile = fs.Arg(0)

	def, err := engine.LoadDefinition(cfg.pipelineFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}

	store := openHistory(cfg.dataDir, cfg.noHistory)
	if store != nil {
		defer store.Close()
	}

	engineCfg := engine.EngineConfig{
		WorkDir: cfg.workDir,
		RunID:   engine.NewRunID(),
	}
	if cfg.verbose {
		engineCfg.EventHandler = verboseEventHandler
	}

	eng := engine.NewEngine(engineCfg)

	// Set up context with signal handling for graceful cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	run, err := eng.Run(ctx, def)
	if err != nil {
		printGraphError(os.Stderr, err)
		return exitFailed
	}

	report := engine.Finalize(run)

	if store != nil {
		if err := store.RecordRun(run, cfg.pipelineFile, report); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not record run: %v\n", err)
		}
	}

	fmt.Print(render.Styled(report, cfg.noColor))

	switch run.Outcome {
	case engine.OutcomeSucceeded:
		return exitOK
	case engine.OutcomeAborted:
		return exitAborted
	default:
		return exitFailed
	}
}

// validatePipeline loads a pipeline definition and builds its graph without
// executing anything.
func validatePipeline(args []string) int {
	fs := flag.NewFlagSet("conveyor validate", flag.ContinueOnError)
	fs.Usage = func() { printHelp(os.Stderr, version) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitAborted
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "error: missing pipeline file")
		return exitAborted
	}

	def, err := engine.LoadDefinition(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}

	graph, err := engine.BuildGraph(def)
	if err != nil {
		printGraphError(os.Stderr, err)
		return exitFailed
	}

	fmt.Printf("Pipeline %q is valid: %d stages, order: %v\n", def.Name, len(graph.Order), graph.Order)
	return exitOK
}

// serveConfig holds flags for the serve subcommand.
type serveConfig struct {
	port    int
	dataDir string
}

// runServer starts the read-only HTTP API over the run history.
func runServer(args []string) int {
	var cfg serveConfig

	fs := flag.NewFlagSet("conveyor serve", flag.ContinueOnError)
	fs.IntVar(&cfg.port, "port", 4077, "Server port")
	fs.StringVar(&cfg.dataDir, "data-dir", "", "Data directory for run history (default: $XDG_DATA_HOME/conveyor)")
	fs.Usage = func() { printHelp(os.Stderr, version) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitAborted
	}

	dataDir, err := resolveDataDir(cfg.dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not resolve data dir: %v\n", err)
		return exitFailed
	}

	store, err := history.Open(historyPath(dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}
	defer store.Close()

	server := web.NewServer(store)
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.port)

	// Set up context with signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	fmt.Fprintf(os.Stderr, "listening on %s\n", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}

	return exitOK
}

// openHistory resolves the data directory and opens the history store.
// Failures degrade to warnings; a run never fails because history is
// unavailable.
func openHistory(override string, disabled bool) *history.Store {
	if disabled {
		return nil
	}

	dataDir, err := resolveDataDir(override)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not resolve data dir: %v\n", err)
		return nil
	}

	store, err := history.Open(historyPath(dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open history store: %v\n", err)
		return nil
	}
	return store
}

// printGraphError prints a graph construction error with a diagnostic label
// identifying the kind of structural problem.
func printGraphError(w *os.File, err error) {
	var dup *engine.DuplicateStageError
	var dep *engine.UnknownDependencyError
	var cycle *engine.CycleError

	switch {
	case errors.As(err, &dup):
		fmt.Fprintf(w, "error: duplicate stage name: %v\n", err)
	case errors.As(err, &dep):
		fmt.Fprintf(w, "error: unknown dependency: %v\n", err)
	case errors.As(err, &cycle):
		fmt.Fprintf(w, "error: dependency cycle: %v\n", err)
	default:
		fmt.Fprintf(w, "error: %v\n", err)
	}
}

// verboseEventHandler prints engine lifecycle events to stderr.
func verboseEventHandler(evt engine.EngineEvent) {
	switch evt.Type {
	case engine.EventPipelineStarted:
		fmt.Fprintf(os.Stderr, "[pipeline] started (run %v)\n", evt.Data["run_id"])
	case engine.EventStageStarted:
		fmt.Fprintf(os.Stderr, "[stage] %s started\n", evt.Stage)
	case engine.EventStageCompleted:
		fmt.Fprintf(os.Stderr, "[stage] %s completed\n", evt.Stage)
	case engine.EventStageFailed:
		if reason, ok := evt.Data["reason"]; ok {
			fmt.Fprintf(os.Stderr, "[stage] %s failed: %v\n", evt.Stage, reason)
		} else {
			fmt.Fprintf(os.Stderr, "[stage] %s failed\n", evt.Stage)
		}
	case engine.EventStageSkipped:
		fmt.Fprintf(os.Stderr, "[stage] %s skipped: %v\n", evt.Stage, evt.Data["reason"])
	case engine.EventArtifactStored:
		fmt.Fprintf(os.Stderr, "[artifact] %s registered %v\n", evt.Stage, evt.Data["paths"])
	case engine.EventArtifactMissing:
		fmt.Fprintf(os.Stderr, "[artifact] %s missing pattern %v\n", evt.Stage, evt.Data["pattern"])
	case engine.EventPipelineCompleted:
		fmt.Fprintf(os.Stderr, "[pipeline] completed\n")
	case engine.EventPipelineFailed:
		fmt.Fprintf(os.Stderr, "[pipeline] failed\n")
	case engine.EventPipelineAborted:
		fmt.Fprintf(os.Stderr, "[pipeline] aborted\n")
	}
}
