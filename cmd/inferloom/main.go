// Inferloom CLI - run and inspect declarative inference plans.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/inferloom/inferloom/internal/checkpoint"
	"github.com/inferloom/inferloom/internal/config"
	"github.com/inferloom/inferloom/internal/orchestrator"
	"github.com/inferloom/inferloom/internal/repository"
	"github.com/inferloom/inferloom/internal/sequence"
)

const usage = `Inferloom CLI - run and inspect declarative inference plans

USAGE:
    inferloom <command> [options]

COMMANDS:
    run                    Run a plan (concept_repo.json + inference_repo.json) to completion
    resume                 Resume a run from its latest checkpoint
    list_checkpoints       List recorded checkpoints for a run
    version                Show version information
    help                   Show this help message

RUN OPTIONS:
    -concepts <path>       Path to concept_repo.json (required)
    -inferences <path>     Path to inference_repo.json (required)
    -db <path>             Checkpoint database path (default: ./run.db, or DB_PATH)
    -run-id <id>           Pin the run_id instead of generating one
    -max-cycles <n>        Bound the scheduler's cycle count (default: MAX_CYCLES or 10000)
    -checkpoint-every <n>  Inferences between checkpoint writes (default: CHECKPOINT_EVERY or 1)
    -openai-model <name>   Chat completion model for the reference OpenAI body (default: gpt-4o)
    -base-dir <path>       Root directory for file_location/save_path resolution

RESUME OPTIONS:
    -concepts <path>       Path to concept_repo.json (required)
    -inferences <path>     Path to inference_repo.json (required)
    -db <path>             Checkpoint database path (required)
    -run-id <id>           Run to resume (required)
    -cycle <n>             Resume from a specific cycle instead of the latest checkpoint

LIST_CHECKPOINTS OPTIONS:
    -db <path>             Checkpoint database path (required)
    -run-id <id>           Run to list (required)

EXAMPLES:
    inferloom run -concepts concept_repo.json -inferences inference_repo.json -db run.db

    inferloom resume -concepts concept_repo.json -inferences inference_repo.json -db run.db -run-id 2f1e...  -cycle 4

    inferloom list_checkpoints -db run.db -run-id 2f1e...
`

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		handleRun(os.Args[2:])
	case "resume":
		handleResume(os.Args[2:])
	case "list_checkpoints":
		handleListCheckpoints(os.Args[2:])
	case "version":
		fmt.Printf("inferloom v%s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func handleRun(args []string) {
	cfg := config.Load()

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	conceptsPath := fs.String("concepts", "", "Path to concept_repo.json (required)")
	inferencesPath := fs.String("inferences", "", "Path to inference_repo.json (required)")
	dbPath := fs.String("db", cfg.DBPath, "Checkpoint database path")
	runID := fs.String("run-id", "", "Pin the run_id instead of generating one")
	maxCycles := fs.Int("max-cycles", cfg.MaxCycles, "Bound the scheduler's cycle count")
	checkpointEvery := fs.Int("checkpoint-every", cfg.CheckpointEvery, "Inferences between checkpoint writes")
	openaiModel := fs.String("openai-model", "", "Chat completion model for the reference OpenAI body")
	baseDir := fs.String("base-dir", "", "Root directory for file_location/save_path resolution")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if *conceptsPath == "" || *inferencesPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -concepts and -inferences are required")
		os.Exit(1)
	}

	concepts, err := repository.LoadConceptRepo(*conceptsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading concept repo: %v\n", err)
		os.Exit(1)
	}
	inferences, err := repository.LoadInferenceRepo(*inferencesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading inference repo: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stderr).Level(logLevel(cfg.LogLevel)).With().Timestamp().Logger()
	body := sequence.NewOpenAIBody("", *openaiModel, *baseDir)

	opts := []orchestrator.Option{
		orchestrator.WithBody(body),
		orchestrator.WithLogger(logger),
		orchestrator.WithMaxCycles(*maxCycles),
		orchestrator.WithCheckpointEvery(*checkpointEvery),
		orchestrator.WithDBPath(*dbPath),
	}
	if *runID != "" {
		opts = append(opts, orchestrator.WithRunID(*runID))
	}

	engine, err := orchestrator.NewOrchestrator(concepts, inferences, body, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: constructing orchestrator: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("run_id: %s\n", engine.RunID())
	results, err := engine.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: run failed: %v\n", err)
		os.Exit(1)
	}

	for _, c := range results {
		fmt.Printf("final concept %q -> %v\n", c.Name, c.Reference.Data)
	}
	if failed := engine.FailedInferences(); len(failed) > 0 {
		fmt.Println("failed inferences:")
		for _, f := range failed {
			fmt.Printf("  %s: %s\n", f.FlowIndex, f.Detail)
		}
	}
}

func handleResume(args []string) {
	cfg := config.Load()

	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	conceptsPath := fs.String("concepts", "", "Path to concept_repo.json (required)")
	inferencesPath := fs.String("inferences", "", "Path to inference_repo.json (required)")
	dbPath := fs.String("db", "", "Checkpoint database path (required)")
	runID := fs.String("run-id", "", "Run to resume (required)")
	cycle := fs.Int("cycle", -1, "Resume from a specific cycle instead of the latest checkpoint")
	maxCycles := fs.Int("max-cycles", cfg.MaxCycles, "Bound the scheduler's cycle count")
	checkpointEvery := fs.Int("checkpoint-every", cfg.CheckpointEvery, "Inferences between checkpoint writes")
	openaiModel := fs.String("openai-model", "", "Chat completion model for the reference OpenAI body")
	baseDir := fs.String("base-dir", "", "Root directory for file_location/save_path resolution")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if *conceptsPath == "" || *inferencesPath == "" || *dbPath == "" || *runID == "" {
		fmt.Fprintln(os.Stderr, "Error: -concepts, -inferences, -db, and -run-id are required")
		os.Exit(1)
	}

	concepts, err := repository.LoadConceptRepo(*conceptsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading concept repo: %v\n", err)
		os.Exit(1)
	}
	inferences, err := repository.LoadInferenceRepo(*inferencesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading inference repo: %v\n", err)
		os.Exit(1)
	}

	body := sequence.NewOpenAIBody("", *openaiModel, *baseDir)
	opts := []orchestrator.Option{
		orchestrator.WithMaxCycles(*maxCycles),
		orchestrator.WithCheckpointEvery(*checkpointEvery),
	}

	var engine *orchestrator.Orchestrator
	if *cycle >= 0 {
		engine, err = orchestrator.LoadCheckpoint(concepts, inferences, body, *dbPath, *runID, opts, *cycle)
	} else {
		engine, err = orchestrator.LoadCheckpoint(concepts, inferences, body, *dbPath, *runID, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading checkpoint: %v\n", err)
		os.Exit(1)
	}

	results, err := engine.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: run failed: %v\n", err)
		os.Exit(1)
	}
	for _, c := range results {
		fmt.Printf("final concept %q -> %v\n", c.Name, c.Reference.Data)
	}
}

func handleListCheckpoints(args []string) {
	fs := flag.NewFlagSet("list_checkpoints", flag.ExitOnError)
	dbPath := fs.String("db", "", "Checkpoint database path (required)")
	runID := fs.String("run-id", "", "Run to list (required)")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if *dbPath == "" || *runID == "" {
		fmt.Fprintln(os.Stderr, "Error: -db and -run-id are required")
		os.Exit(1)
	}

	store, err := checkpoint.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening checkpoint store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	refs, err := store.ListCheckpoints(context.Background(), *runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: listing checkpoints: %v\n", err)
		os.Exit(1)
	}
	if len(refs) == 0 {
		fmt.Println("No checkpoints found")
		return
	}
	fmt.Printf("Found %d checkpoint(s) for run %s:\n\n", len(refs), *runID)
	for _, r := range refs {
		fmt.Printf("cycle=%d inference_count=%d created_at=%s\n", r.Cycle, r.InferenceCount, r.CreatedAt.Format(time.RFC3339))
	}
}

func logLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
