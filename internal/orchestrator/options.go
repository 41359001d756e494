package orchestrator

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/inferloom/inferloom/internal/sequence"
)

// Options configures a new Orchestrator, grounded on the teacher's
// EngineConfig/DefaultEngineConfig + functional-option constructors
// (factory.go, internal/application/executor/engine.go), generalized from
// the teacher's fixed-struct EngineConfig to functional options since the
// engine's construction surface (spec.md §6.3) is a single factory call
// rather than a long-lived service with many call sites.
type Options struct {
	Body             sequence.Body
	ParadigmRegistry sequence.ParadigmRegistry
	Logger           zerolog.Logger
	MaxCycles        int
	CheckpointEvery  int
	RunID            string
	DBPath           string
	Retry            sequence.RetryPolicy
}

// Option mutates Options during NewOrchestrator construction.
type Option func(*Options)

// DefaultOptions mirrors the teacher's DefaultEngineConfig: sensible
// defaults for every field an Option doesn't override.
func DefaultOptions() Options {
	return Options{
		Logger:          zerolog.New(os.Stderr).With().Timestamp().Logger(),
		MaxCycles:       10_000,
		CheckpointEvery: 1,
		Retry:           sequence.NoRetry(),
	}
}

// WithBody supplies the BodyInterface implementation used by imperative/
// judgement sequences.
func WithBody(body sequence.Body) Option {
	return func(o *Options) { o.Body = body }
}

// WithParadigmRegistry supplies the paradigm-id resolver MFP consults.
func WithParadigmRegistry(registry sequence.ParadigmRegistry) Option {
	return func(o *Options) { o.ParadigmRegistry = registry }
}

// WithLogger overrides the default stderr zerolog.Logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMaxCycles bounds the main loop's cycle count (spec.md §4.6).
func WithMaxCycles(n int) Option {
	return func(o *Options) { o.MaxCycles = n }
}

// WithCheckpointEvery sets how many dispatched inferences elapse between
// checkpoint writes (spec.md §4.5: "after every N inferences or at every
// cycle boundary").
func WithCheckpointEvery(n int) Option {
	return func(o *Options) { o.CheckpointEvery = n }
}

// WithRunID pins the run_id instead of generating one.
func WithRunID(runID string) Option {
	return func(o *Options) { o.RunID = runID }
}

// WithDBPath points the checkpoint store at a specific SQLite file
// (spec.md §6.4: "/data/runs/{run_id}/run.db"). Empty disables
// checkpointing.
func WithDBPath(path string) Option {
	return func(o *Options) { o.DBPath = path }
}

// WithRetry overrides the default no-retry policy for BodyError (spec.md
// §7).
func WithRetry(policy sequence.RetryPolicy) Option {
	return func(o *Options) { o.Retry = policy }
}
