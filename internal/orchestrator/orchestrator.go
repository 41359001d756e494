// Package orchestrator implements the top-level scheduler loop (spec.md
// §4.6): builds the waitlist, scans it each cycle for ready inferences,
// dispatches them to the appropriate sequence handler, applies the result
// back to the Blackboard and Workspace, checkpoints, and detects
// termination. Grounded on the teacher's WorkflowEngine three-phase
// Plan→Execute→Finalize shape (internal/application/executor/engine.go),
// generalized from a parallel multi-node-per-step engine to the spec's
// single-threaded-per-run, priority-ordered waitlist scan.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/inferloom/inferloom/internal/blackboard"
	"github.com/inferloom/inferloom/internal/checkpoint"
	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/internal/repository"
	"github.com/inferloom/inferloom/internal/sequence"
	"github.com/inferloom/inferloom/internal/workspace"
	"github.com/inferloom/inferloom/reference"
)

// RunStatus is the terminal classification of a run (spec.md §7
// "User-visible behavior").
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusStuck     RunStatus = "stuck"
	StatusCancelled RunStatus = "cancelled"
)

// CompletedConcept is one final concept's terminal value, returned by Run.
type CompletedConcept struct {
	Name      string
	Reference *reference.Reference
}

// FailedInference describes one inference that reached a non-success
// terminal detail, surfaced in the final diagnostic snapshot (spec.md §7).
type FailedInference struct {
	FlowIndex string
	Detail    domain.CompletionDetail
	Error     string
}

// StepResult is returned by a single Step() call.
type StepResult struct {
	Cycle      int
	Progressed bool
	Terminal   bool
	Status     RunStatus
}

// timingOutcome is what a dispatched timing inference records against its
// parent's flow_index, consulted by every later readiness check in the same
// or later cycles (spec.md §4.4.3, §4.6 "evaluate_timing_children").
type timingOutcome struct {
	ready bool
	skip  bool
}

// Orchestrator is the top-level driver described in spec.md §4.6 / §6.3.
type Orchestrator struct {
	concepts    *repository.ConceptRepo
	inferences  *repository.InferenceRepo
	blackboard  *blackboard.Blackboard
	workspace   *workspace.Workspace
	store       *checkpoint.Store
	handlers    map[domain.SequenceKind]sequence.Handler

	runID           string
	cycle           int
	inferenceCount  int
	maxCycles       int
	checkpointEvery int
	opts            Options

	timingFlags map[string]timingOutcome

	stopSignal     atomic.Bool
	pauseSignal    atomic.Bool
	breakpoints    map[string]bool
	skipBreakpoint map[string]bool
}

// NewOrchestrator constructs an Orchestrator over the given static
// repositories, ready to Run from an empty Blackboard/Workspace (spec.md
// §4.6 "Initialization").
func NewOrchestrator(concepts *repository.ConceptRepo, inferences *repository.InferenceRepo, body sequence.Body, opts ...Option) (*Orchestrator, error) {
	options := DefaultOptions()
	options.Body = body
	for _, o := range opts {
		o(&options)
	}
	if options.RunID == "" {
		options.RunID = uuid.NewString()
	}

	o := &Orchestrator{
		concepts:        concepts,
		inferences:      inferences,
		blackboard:      blackboard.New(),
		workspace:       workspace.New(),
		runID:           options.RunID,
		maxCycles:       options.MaxCycles,
		checkpointEvery: options.CheckpointEvery,
		opts:            options,
		timingFlags:     make(map[string]timingOutcome),
		breakpoints:     make(map[string]bool),
		skipBreakpoint:  make(map[string]bool),
	}
	o.handlers = buildHandlers(o.blackboard, options)

	if options.DBPath != "" {
		store, err := checkpoint.NewStore(options.DBPath)
		if err != nil {
			return nil, domain.NewEngineError(domain.ErrKindCheckpointIO, "opening checkpoint store", err)
		}
		if err := store.InitSchema(context.Background()); err != nil {
			return nil, domain.NewEngineError(domain.ErrKindCheckpointIO, "initializing checkpoint schema", err)
		}
		o.store = store
	}

	if err := o.seedGroundConcepts(); err != nil {
		return nil, err
	}
	return o, nil
}

func buildHandlers(bb *blackboard.Blackboard, opts Options) map[domain.SequenceKind]sequence.Handler {
	return map[domain.SequenceKind]sequence.Handler{
		domain.SequenceSimple:     sequence.SimpleHandler{},
		domain.SequenceGrouping:   sequence.GroupingHandler{},
		domain.SequenceAssigning:  sequence.AssigningHandler{AddAlias: bb.AddAlias},
		domain.SequenceTiming:     sequence.TimingHandler{},
		domain.SequenceLooping:    sequence.LoopingHandler{},
		domain.SequenceImperative: sequence.ImperativeHandler{Body: opts.Body, Registry: opts.ParadigmRegistry, Retry: opts.Retry},
		domain.SequenceJudgement:  sequence.JudgementHandler{Body: opts.Body, Registry: opts.ParadigmRegistry, Retry: opts.Retry},
	}
}

// seedGroundConcepts populates the Blackboard per spec.md §4.6
// Initialization step 2: ground concepts -> complete with initial_data,
// every other concept -> pending.
func (o *Orchestrator) seedGroundConcepts() error {
	for _, c := range o.concepts.All() {
		if c.IsGround {
			ref, err := groundReference(c)
			if err != nil {
				return err
			}
			o.blackboard.SetConceptValue(c.Name, ref)
		} else {
			o.blackboard.SetConceptStatus(c.Name, domain.ConceptPending)
		}
	}
	return nil
}

func groundReference(c *domain.Concept) (*reference.Reference, error) {
	if len(c.AxisNames) == 0 {
		return reference.NewScalar(c.InitialData), nil
	}
	ref := &reference.Reference{
		Axes:        c.AxisNames,
		ElementType: reference.HintScalar,
	}
	ref.Shape, ref.Data = axisShapeOf(c.InitialData, len(c.AxisNames))
	if err := ref.Validate(); err != nil {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation, fmt.Sprintf("ground concept %q", c.Name), err)
	}
	return ref, nil
}

// axisShapeOf wraps a ground concept's raw JSON-decoded reference_data into
// the nested-[]any shape Reference.Data expects, inferring shape from the
// JSON array nesting itself.
func axisShapeOf(data any, depth int) ([]int, any) {
	if depth == 0 {
		return nil, data
	}
	items, ok := data.([]any)
	if !ok {
		// Scalar supplied for a multi-axis concept: treat as a singleton
		// along every remaining axis.
		shape := make([]int, depth)
		for i := range shape {
			shape[i] = 1
		}
		return shape, wrapSingleton(data, depth)
	}
	subShape, _ := axisShapeOf(firstOrNil(items), depth-1)
	shape := append([]int{len(items)}, subShape...)
	out := make([]any, len(items))
	for i, item := range items {
		_, out[i] = axisShapeOf(item, depth-1)
	}
	return shape, out
}

func firstOrNil(items []any) any {
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

func wrapSingleton(data any, depth int) any {
	if depth == 0 {
		return data
	}
	return []any{wrapSingleton(data, depth-1)}
}

// RunID returns the orchestrator's run identifier.
func (o *Orchestrator) RunID() string { return o.runID }

// Stop requests cooperative cancellation; the loop exits after the
// in-flight inference completes (spec.md §5 "Cancellation semantics").
func (o *Orchestrator) Stop() { o.stopSignal.Store(true) }

// Pause requests the main loop to suspend after the current cycle.
func (o *Orchestrator) Pause() { o.pauseSignal.Store(true) }

// Resume clears a pause and allows one pass through any currently-hit
// breakpoints (spec.md §6.3).
func (o *Orchestrator) Resume() {
	o.pauseSignal.Store(false)
	for k := range o.breakpoints {
		o.skipBreakpoint[k] = true
	}
}

// SetBreakpoint pauses the loop before dispatching flowIndex.
func (o *Orchestrator) SetBreakpoint(flowIndex string) { o.breakpoints[flowIndex] = true }

// ClearBreakpoint removes a previously set breakpoint.
func (o *Orchestrator) ClearBreakpoint(flowIndex string) {
	delete(o.breakpoints, flowIndex)
	delete(o.skipBreakpoint, flowIndex)
}

// SnapshotState captures the live Blackboard + Workspace as a checkpointable
// State (spec.md §6.3 SnapshotState).
func (o *Orchestrator) SnapshotState() checkpoint.State {
	return checkpoint.Snapshot(o.blackboard, o.workspace)
}

// Run drives the main loop to completion (or cancellation/stuck/max-cycles),
// returning every completed final concept (spec.md §4.6, §6.3).
func (o *Orchestrator) Run() ([]CompletedConcept, error) {
	for {
		if o.stopSignal.Load() {
			o.checkpointNow(context.Background())
			return o.finalConcepts(), nil
		}
		if o.pauseSignal.Load() {
			return o.finalConcepts(), nil
		}
		result, err := o.Step()
		if err != nil {
			return nil, err
		}
		if result.Terminal {
			return o.finalConcepts(), nil
		}
	}
}

// Step performs exactly one waitlist scan (one "cycle" in spec.md §4.6's
// pseudocode) and reports whether it made progress and whether the run has
// reached a terminal state.
func (o *Orchestrator) Step() (StepResult, error) {
	if o.cycle >= o.maxCycles {
		return StepResult{Cycle: o.cycle, Terminal: true, Status: StatusStuck}, nil
	}

	progressed := false
	for _, inf := range o.inferences.AllInferencesSorted() {
		if o.stopSignal.Load() {
			break
		}
		flowIndex := inf.FlowIndex.String()
		if o.blackboard.StatusOfInference(flowIndex).IsTerminal() {
			continue
		}
		if !o.dependenciesComplete(inf) {
			continue
		}

		ready, skip := o.evaluateTimingChildren(inf)
		if !ready {
			continue
		}

		if o.breakpoints[flowIndex] && !o.skipBreakpoint[flowIndex] {
			o.pauseSignal.Store(true)
			return StepResult{Cycle: o.cycle, Progressed: progressed, Status: StatusRunning}, nil
		}
		delete(o.skipBreakpoint, flowIndex)

		if skip {
			o.applySkip(inf)
			progressed = true
			continue
		}

		made, err := o.dispatch(inf)
		if err != nil {
			return StepResult{}, err
		}
		if made {
			progressed = true
		}
		if o.inferenceCount%o.checkpointEvery == 0 {
			o.checkpointNow(context.Background())
		}
	}

	o.cycle++
	if !progressed {
		o.checkpointNow(context.Background())
	}

	if !progressed {
		status := o.terminalStatus()
		return StepResult{Cycle: o.cycle, Progressed: false, Terminal: true, Status: status}, nil
	}
	if o.allFinalComplete() {
		return StepResult{Cycle: o.cycle, Progressed: true, Terminal: true, Status: StatusCompleted}, nil
	}
	return StepResult{Cycle: o.cycle, Progressed: true, Status: StatusRunning}, nil
}

// dependenciesComplete checks "all value_concepts and context_concepts
// complete" (spec.md §4.6), resolving aliases through the Blackboard.
func (o *Orchestrator) dependenciesComplete(inf *domain.Inference) bool {
	for _, name := range inf.ValueConcepts {
		if o.blackboard.StatusOfConcept(name) != domain.ConceptComplete {
			return false
		}
	}
	for _, name := range inf.ContextConcepts {
		if o.blackboard.StatusOfConcept(name) != domain.ConceptComplete {
			return false
		}
	}
	return true
}

// evaluateTimingChildren implements spec.md §4.6's readiness test: ready
// means every timing child of inf has already executed and recorded a
// decision (not yet decided — e.g. its condition concept isn't complete —
// blocks the parent for this scan, same as any other unmet dependency);
// skip is the disjunction of their to_be_skipped flags (a single @if that
// wants to skip wins, per §8's "Conflicting nested @if ... parent is
// skipped" boundary). A timing child's own gate truth value (outcome.ready,
// i.e. States.TimingReady) only decides outcome.skip — it must not also
// gate the parent's scheduling readiness, or a failed condition would leave
// the parent permanently pending instead of skipped.
func (o *Orchestrator) evaluateTimingChildren(inf *domain.Inference) (ready, skip bool) {
	children := o.inferences.Children(inf.FlowIndex.String())
	var timingChildren []*domain.Inference
	for _, c := range children {
		if c.Sequence == domain.SequenceTiming {
			timingChildren = append(timingChildren, c)
		}
	}
	if len(timingChildren) == 0 {
		return true, false
	}
	for _, tc := range timingChildren {
		outcome, ok := o.timingFlags[tc.FlowIndex.String()]
		if !ok {
			return false, false
		}
		if outcome.skip {
			skip = true
		}
	}
	return true, skip
}

// applySkip marks inf skipped and completes its concept_to_infer with an
// empty reference matching its declared axes, all cells SKIP (spec.md §4.6
// "Skip propagation").
func (o *Orchestrator) applySkip(inf *domain.Inference) {
	o.blackboard.SetInferenceSkipped(inf.FlowIndex.String())
	concept, err := o.concepts.GetConcept(inf.ConceptToInfer)
	axes := []string{reference.NoneAxis}
	if err == nil && len(concept.AxisNames) > 0 {
		axes = concept.AxisNames
	}
	empty := emptyReference(axes)
	o.blackboard.SetConceptValue(inf.ConceptToInfer, empty)
	o.opts.Logger.Info().Str("run_id", o.runID).Str("flow_index", inf.FlowIndex.String()).
		Int("cycle", o.cycle).Msg("inference_skipped")
}

func emptyReference(axes []string) *reference.Reference {
	shape := make([]int, len(axes))
	for i := range shape {
		shape[i] = 1
	}
	data := any(reference.Skip)
	for range axes {
		data = []any{data}
	}
	return &reference.Reference{Axes: axes, Shape: shape, Data: data}
}

// dispatch runs inf's handler and applies its result to the Blackboard/
// Workspace. Returns whether this call made scheduling progress.
func (o *Orchestrator) dispatch(inf *domain.Inference) (bool, error) {
	flowIndex := inf.FlowIndex.String()
	handler, ok := o.handlers[inf.Sequence]
	if !ok {
		return false, domain.NewEngineError(domain.ErrKindPlanValidation, "unknown sequence "+string(inf.Sequence), nil)
	}

	o.blackboard.SetInferenceStarted(flowIndex)
	o.inferenceCount++
	if o.store != nil {
		_ = o.store.RecordExecutionStart(context.Background(), o.runID, o.cycle, flowIndex)
	}
	o.opts.Logger.Debug().Str("run_id", o.runID).Str("flow_index", flowIndex).Int("cycle", o.cycle).Msg("inference_started")

	snap := o.blackboard.Snapshot()
	states := sequence.NewStates(inf, snap, o.workspace)
	states.ProducerOf = o.inferences.ProducerOf
	result, err := handler.Run(states)
	if err != nil {
		o.blackboard.SetInferenceComplete(flowIndex, domain.DetailError)
		o.recordExecutionComplete(flowIndex, "failed", string(domain.DetailError), err.Error())
		o.opts.Logger.Error().Err(err).Str("run_id", o.runID).Str("flow_index", flowIndex).Msg("inference_failed")
		return true, nil
	}
	s := result.States

	if inf.Sequence == domain.SequenceTiming {
		if !s.TimingReady && !s.ToBeSkipped {
			// Condition not complete yet: the gate is undecided, so the timing
			// inference stays pending and is re-run on a later scan.
			return false, nil
		}
		o.applyTimingResult(inf, s)
		o.recordExecutionComplete(flowIndex, "complete", string(domain.DetailSuccess), "")
		return true, nil
	}

	if inf.Sequence == domain.SequenceLooping && s.Output == nil && s.CompletionDetail == "" {
		// Loop not yet complete: leave inf pending, but persist workspace
		// progress (spec.md §4.4.4 "Termination"); the blackboard status
		// stays pending/in_progress so it is revisited next cycle.
		o.blackboard.SetConceptStatus(inf.ConceptToInfer, domain.ConceptPending)
		return s.IsLoopProgress, nil
	}

	if s.Output != nil {
		o.blackboard.SetConceptValue(inf.ConceptToInfer, s.Output)
	}
	if s.TruthMask != nil {
		o.blackboard.SetTruthMask(inf.ConceptToInfer, *s.TruthMask)
	}
	detail := s.CompletionDetail
	if detail == "" {
		detail = domain.DetailSuccess
	}
	o.blackboard.SetInferenceComplete(flowIndex, detail)
	o.recordExecutionComplete(flowIndex, "complete", string(detail), "")
	o.opts.Logger.Debug().Str("run_id", o.runID).Str("flow_index", flowIndex).
		Str("detail", string(detail)).Int("cycle", o.cycle).Msg("inference_completed")
	return true, nil
}

func (o *Orchestrator) applyTimingResult(inf *domain.Inference, s *sequence.States) {
	o.timingFlags[inf.FlowIndex.String()] = timingOutcome{ready: s.TimingReady, skip: s.ToBeSkipped}
	// Timing inferences produce no reference (spec.md §4.4.3 "does not
	// modify references"); still complete their nominal concept so the
	// blackboard invariant (spec.md §8 invariant 1) holds uniformly.
	o.blackboard.SetConceptValue(inf.ConceptToInfer, reference.NewScalar(s.TimingReady))
	o.blackboard.SetInferenceComplete(inf.FlowIndex.String(), domain.DetailSuccess)
}

func (o *Orchestrator) recordExecutionComplete(flowIndex, status, detail, errText string) {
	if o.store == nil {
		return
	}
	_ = o.store.RecordExecutionComplete(context.Background(), o.runID, o.cycle, flowIndex, status, detail, errText)
}

func (o *Orchestrator) checkpointNow(ctx context.Context) {
	if o.store == nil {
		return
	}
	state := checkpoint.Snapshot(o.blackboard, o.workspace)
	if err := o.store.Checkpoint(ctx, o.runID, o.cycle, o.inferenceCount, state); err != nil {
		o.opts.Logger.Warn().Err(err).Str("run_id", o.runID).Msg("checkpoint_write_failed")
		return
	}
	o.opts.Logger.Debug().Str("run_id", o.runID).Int("cycle", o.cycle).Msg("checkpoint_written")
}

func (o *Orchestrator) allFinalComplete() bool {
	for _, c := range o.concepts.All() {
		if c.IsFinal && o.blackboard.StatusOfConcept(c.Name) != domain.ConceptComplete {
			return false
		}
	}
	return true
}

func (o *Orchestrator) terminalStatus() RunStatus {
	if o.stopSignal.Load() {
		return StatusCancelled
	}
	if o.allFinalComplete() {
		return StatusCompleted
	}
	for _, inf := range o.inferences.AllInferencesSorted() {
		if detail, ok := o.blackboard.CompletionDetailOf(inf.FlowIndex.String()); ok && detail == domain.DetailError {
			return StatusFailed
		}
	}
	return StatusStuck
}

func (o *Orchestrator) finalConcepts() []CompletedConcept {
	var out []CompletedConcept
	for _, c := range o.concepts.All() {
		if !c.IsFinal {
			continue
		}
		if ref, err := o.blackboard.ValueOfConcept(c.Name); err == nil {
			out = append(out, CompletedConcept{Name: c.Name, Reference: ref})
		}
	}
	return out
}

// Summary is a point-in-time count of inference statuses, grounded on the
// teacher's ExecutionPlanner.GetPlanSummary: enough for a CLI progress line
// without building a graph UI (out of scope per spec.md §1).
type Summary struct {
	Cycle      int
	Pending    int
	InProgress int
	Complete   int
	Skipped    int
	Total      int
}

// Summary reports the current cycle and per-status inference counts.
func (o *Orchestrator) Summary() Summary {
	s := Summary{Cycle: o.cycle}
	for _, inf := range o.inferences.AllInferencesSorted() {
		s.Total++
		switch o.blackboard.StatusOfInference(inf.FlowIndex.String()) {
		case domain.InferencePending:
			s.Pending++
		case domain.InferenceInProgress:
			s.InProgress++
		case domain.InferenceComplete:
			s.Complete++
		case domain.InferenceSkipped:
			s.Skipped++
		}
	}
	return s
}

// FailedInferences returns every inference whose completion_detail is
// error or condition_not_met, for the final diagnostic snapshot (spec.md §7
// "enumerates failed inferences with their detail strings").
func (o *Orchestrator) FailedInferences() []FailedInference {
	var out []FailedInference
	for _, inf := range o.inferences.AllInferencesSorted() {
		detail, ok := o.blackboard.CompletionDetailOf(inf.FlowIndex.String())
		if !ok || detail == domain.DetailSuccess || detail == domain.DetailSkipped {
			continue
		}
		out = append(out, FailedInference{FlowIndex: inf.FlowIndex.String(), Detail: detail})
	}
	return out
}
