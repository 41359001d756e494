package orchestrator

import (
	"context"
	"fmt"

	"github.com/inferloom/inferloom/internal/checkpoint"
	"github.com/inferloom/inferloom/internal/repository"
	"github.com/inferloom/inferloom/internal/sequence"
)

// LoadCheckpoint rebuilds a running Orchestrator from a previously persisted
// checkpoint (spec.md §4.5 "Resume"): latest checkpoint by default, or the
// one recorded at a specific cycle when cycle is supplied.
func LoadCheckpoint(concepts *repository.ConceptRepo, inferences *repository.InferenceRepo, body sequence.Body, dbPath, runID string, opts []Option, cycle ...int) (*Orchestrator, error) {
	o, err := newBareOrchestrator(concepts, inferences, body, dbPath, runID, opts)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var state checkpoint.State
	var atCycle, atCount int
	if len(cycle) > 0 {
		refs, err := o.store.ListCheckpoints(ctx, runID)
		if err != nil {
			return nil, err
		}
		found := false
		for _, r := range refs {
			if r.Cycle == cycle[0] {
				state, err = o.store.LoadAt(ctx, runID, r.Cycle, r.InferenceCount)
				if err != nil {
					return nil, err
				}
				atCycle, atCount = r.Cycle, r.InferenceCount
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no checkpoint for run %s at cycle %d", runID, cycle[0])
		}
	} else {
		state, atCycle, atCount, err = o.store.LoadLatest(ctx, runID)
		if err != nil {
			return nil, err
		}
	}

	o.blackboard, o.workspace = checkpoint.Hydrate(state)
	o.handlers = buildHandlers(o.blackboard, o.opts)
	o.cycle = atCycle
	o.inferenceCount = atCount
	return o, nil
}

// ForkCheckpoint copies sourceRunID's checkpoint history (up to and including
// cycle, or the latest cycle if omitted) under newRunID and returns an
// Orchestrator hydrated from the forked state, ready to diverge (spec.md
// §4.5 "Fork").
func ForkCheckpoint(concepts *repository.ConceptRepo, inferences *repository.InferenceRepo, body sequence.Body, dbPath, sourceRunID, newRunID string, opts []Option, cycle ...int) (*Orchestrator, error) {
	probe, err := newBareOrchestrator(concepts, inferences, body, dbPath, sourceRunID, opts)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	forkCycle := cycle
	if len(forkCycle) == 0 {
		_, latestCycle, _, err := probe.store.LoadLatest(ctx, sourceRunID)
		if err != nil {
			return nil, err
		}
		forkCycle = []int{latestCycle}
	}
	if err := probe.store.Fork(ctx, sourceRunID, forkCycle[0], newRunID); err != nil {
		return nil, err
	}
	probe.store.Close()

	return LoadCheckpoint(concepts, inferences, body, dbPath, newRunID, opts, forkCycle[0])
}

// newBareOrchestrator constructs an Orchestrator wired to a checkpoint store
// at dbPath/runID but without seeding ground concepts, since LoadCheckpoint/
// ForkCheckpoint immediately overwrite the Blackboard/Workspace from a
// persisted State.
func newBareOrchestrator(concepts *repository.ConceptRepo, inferences *repository.InferenceRepo, body sequence.Body, dbPath, runID string, opts []Option) (*Orchestrator, error) {
	options := DefaultOptions()
	options.Body = body
	options.DBPath = dbPath
	options.RunID = runID
	for _, o := range opts {
		o(&options)
	}

	o := &Orchestrator{
		concepts:        concepts,
		inferences:      inferences,
		runID:           options.RunID,
		maxCycles:       options.MaxCycles,
		checkpointEvery: options.CheckpointEvery,
		opts:            options,
		timingFlags:     make(map[string]timingOutcome),
		breakpoints:     make(map[string]bool),
		skipBreakpoint:  make(map[string]bool),
	}

	store, err := checkpoint.NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(context.Background()); err != nil {
		return nil, err
	}
	o.store = store
	return o, nil
}
