// Package sequence implements the seven pluggable sequence handlers (spec.md
// §4.4): simple, grouping, assigning, timing, looping, imperative, judgement.
// Every handler is a fixed pipeline of named steps sharing a mutable States
// record, grounded on the teacher's NodeExecutor dispatch-by-type shape
// (internal/application/executor/node_executors.go) generalized from "one
// node type, one Go struct" to "one sequence kind, one States pipeline".
package sequence

import (
	"github.com/inferloom/inferloom/internal/blackboard"
	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/internal/workspace"
	"github.com/inferloom/inferloom/reference"
)

// States is the mutable record threaded through a handler's named steps.
type States struct {
	Inference *domain.Inference
	Snapshot  *blackboard.Snapshot
	Workspace *workspace.Workspace

	// ProducerOf resolves a concept name to the flow_index of the inference
	// whose concept_to_infer produced it (spec.md §4.4.3's timing gate needs
	// this to read that inference's completion_detail). Set by the
	// orchestrator before dispatch; nil in handlers that don't need it.
	ProducerOf func(conceptName string) (flowIndex string, ok bool)

	// Syntax holds the parsed working_interpretation, populated by IWI.
	Syntax map[string]any

	// Values holds deep-copied input references keyed by concept name,
	// populated by IR.
	Values map[string]*reference.Reference
	// Context holds deep-copied context-concept references, populated by IR.
	Context map[string]*reference.Reference

	// Output is the handler's produced reference, set by the sequence-
	// specific step and finalized by OR.
	Output *reference.Reference

	// TimingReady/ToBeSkipped are the two flags the timing handler sets on
	// its parent (spec.md §4.4.3). The judgement handler also records its
	// quantifier verdict in TimingReady; other handlers leave both unset.
	TimingReady  bool
	ToBeSkipped  bool

	// CompletionDetail is set by OR/OWI (or earlier, on skip/error) and
	// read by the orchestrator to update the Blackboard.
	CompletionDetail domain.CompletionDetail

	// IsLoopProgress is set by the looping handler's LR step; the
	// orchestrator uses it for the loop no-progress termination check.
	IsLoopProgress bool

	// Filters accumulated by IR from the Workspace for this inference's own
	// flow_index (applies a timing child's injected mask to this handler's
	// inputs).
	AppliedFilterAxis string
	AppliedMask       []bool

	// TruthMask is set by the judgement handler's TIP step; the
	// orchestrator writes it to the Blackboard via SetTruthMask.
	TruthMask *blackboard.TruthMask
}

// Result is what a Handler.Run returns: the States record (for Output,
// TimingReady/ToBeSkipped, CompletionDetail, IsLoopProgress) plus any error.
type Result struct {
	States *States
}

// Handler is implemented by each of the seven sequence pipelines.
type Handler interface {
	Run(states *States) (*Result, error)
}

// NewStates builds a fresh States for one dispatch of inf.
func NewStates(inf *domain.Inference, snap *blackboard.Snapshot, ws *workspace.Workspace) *States {
	return &States{
		Inference: inf,
		Snapshot:  snap,
		Workspace: ws,
		Values:    make(map[string]*reference.Reference),
		Context:   make(map[string]*reference.Reference),
	}
}

// iwi (Input Working Interpretation) parses working_interpretation into
// States.Syntax. Every handler's pipeline starts here.
func iwi(s *States) {
	s.Syntax = s.Inference.WorkingInterpretation
}

// ir (Input References) loads value_concepts (and context_concepts) from the
// snapshot Blackboard, deep-copies them, and applies any workspace-injected
// filter for this inference's own flow_index.
func ir(s *States) error {
	for _, name := range s.Inference.ValueConcepts {
		ref, err := s.Snapshot.ValueOfConcept(name)
		if err != nil {
			return err
		}
		s.Values[name] = ref.Clone()
	}
	for _, name := range s.Inference.ContextConcepts {
		ref, err := s.Snapshot.ValueOfConcept(name)
		if err != nil {
			// Context concepts are soft dependencies (e.g. loop carry
			// sources); absence is not fatal at IR time.
			continue
		}
		s.Context[name] = ref.Clone()
	}

	if s.Workspace != nil {
		if mask, ok := s.Workspace.CombinedMask(s.Inference.FlowIndex.String()); ok {
			filterAxis, _ := stringField(s.Syntax, "filter_axis")
			if filterAxis == "" {
				filterAxis = reference.NoneAxis
			}
			s.AppliedFilterAxis = filterAxis
			s.AppliedMask = mask
			for name, ref := range s.Values {
				if ref.HasAxis(filterAxis) {
					masked, err := reference.ApplyTruthMask(ref, mask, filterAxis)
					if err == nil {
						s.Values[name] = masked
					}
				}
			}
		}
	}
	return nil
}

// or (Output References) is the shared finalization step: if CompletionDetail
// was not already set by the sequence-specific step, defaults to success
// when Output is non-nil.
func or(s *States) {
	if s.CompletionDetail == "" {
		if s.Output != nil {
			s.CompletionDetail = domain.DetailSuccess
		} else {
			s.CompletionDetail = domain.DetailConditionNotMet
		}
	}
}

// owi (Output Working Interpretation) is a no-op hook point for handlers
// that need to stamp syntax-derived flags back (looping overrides this via
// its own OWI logic inline, since it needs workspace state OR can't see).
func owi(_ *States) {}

func stringField(syntax map[string]any, key string) (string, bool) {
	v, ok := syntax[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolField(syntax map[string]any, key string) bool {
	v, ok := syntax[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
