package sequence

import (
	"github.com/expr-lang/expr"

	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/internal/workspace"
	"github.com/inferloom/inferloom/reference"
)

// TimingHandler implements @., @:', @:! (spec.md §4.4.3): IWI, T, OWI. It
// never modifies references — it sets timing_ready/to_be_skipped on the
// parent inference and, when the gate passes, injects a FilterSpec into the
// Workspace.
type TimingHandler struct{}

// TimingOutcome is what the T step computes; the orchestrator applies it to
// the parent inference's scheduling state.
type TimingOutcome struct {
	TimingReady bool
	ToBeSkipped bool
	Filter      *workspace.FilterSpec
	ParentFlowIndex string
}

func (TimingHandler) Run(s *States) (*Result, error) {
	iwi(s)
	outcome, err := t(s)
	if err != nil {
		return nil, err
	}
	s.TimingReady = outcome.TimingReady
	s.ToBeSkipped = outcome.ToBeSkipped
	if outcome.Filter != nil && s.Workspace != nil {
		s.Workspace.AddFilter(outcome.ParentFlowIndex, *outcome.Filter)
	}
	owi(s)
	return &Result{States: s}, nil
}

// t reads the condition concept's producing-inference completion_detail
// directly from the (live, per spec.md §4.3 "Timing handlers read the live
// Blackboard") snapshot and decides readiness per the §4.4.3 decision table.
func t(s *States) (TimingOutcome, error) {
	conditionName, ok := stringField(s.Syntax, "condition")
	if !ok || conditionName == "" {
		return TimingOutcome{}, domain.NewEngineError(domain.ErrKindUnknownCondition, "timing inference missing working_interpretation.condition", nil)
	}

	parent, ok := stringField(s.Syntax, "parent_flow_index")
	if !ok {
		if p, ok := s.Inference.FlowIndex.Parent(); ok {
			parent = p.String()
		}
	}

	status := s.Snapshot.StatusOfConcept(conditionName)
	if status != domain.ConceptComplete {
		// Condition not yet available: parent is not ready and not yet
		// decided to be skipped. The scheduler will revisit next cycle.
		return TimingOutcome{TimingReady: false, ToBeSkipped: false, ParentFlowIndex: parent}, nil
	}

	// Read the completion_detail of the inference that produced
	// conditionName (spec.md §4.4.3): condition_not_met denotes false,
	// success/None denotes true. The producer's flow_index is resolved by
	// the orchestrator (which owns the InferenceRepo) via ProducerOf, not a
	// plan-authored field.
	var detail domain.CompletionDetail
	if s.ProducerOf != nil {
		if producerFlowIndex, ok := s.ProducerOf(conditionName); ok {
			d, _ := s.Snapshot.CompletionDetailOf(producerFlowIndex)
			detail = d
		}
	}

	truthy := detail != domain.DetailConditionNotMet

	if gateExpr, ok := stringField(s.Syntax, "gate_expr"); ok && gateExpr != "" {
		val, err := s.Snapshot.ValueOfConcept(conditionName)
		if err == nil {
			env := map[string]any{"value": firstLeaf(val)}
			program, cerr := expr.Compile(gateExpr, expr.Env(env))
			if cerr == nil {
				if out, rerr := expr.Run(program, env); rerr == nil {
					if b, ok := out.(bool); ok {
						truthy = b
					}
				}
			}
		}
	}

	marker, _ := stringField(s.Syntax, "marker")
	ready := truthy
	skip := !truthy
	if marker == "@:!" {
		ready = !truthy
		skip = truthy
	}

	outcome := TimingOutcome{TimingReady: ready, ToBeSkipped: skip, ParentFlowIndex: parent}

	if ready {
		if mask, ok := s.Snapshot.GetTruthMask(conditionName); ok {
			outcome.Filter = &workspace.FilterSpec{
				TruthMask:       mask.Mask,
				ConditionName:   conditionName,
				SourceFlowIndex: s.Inference.FlowIndex.String(),
			}
		}
	}
	return outcome, nil
}

// firstLeaf returns the first non-SKIP leaf of ref, or nil for an empty
// reference. Used to hand a gate_expr a scalar "value" binding even when the
// condition concept is a singleton reference rather than a raw scalar.
func firstLeaf(ref *reference.Reference) any {
	leaves := reference.GetLeaves(ref)
	if len(leaves) == 0 {
		return nil
	}
	return leaves[0]
}
