package sequence

import (
	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/internal/workspace"
	"github.com/inferloom/inferloom/reference"
)

// LoopingHandler implements *every / *. (spec.md §4.4.4): IWI, IR, GR, LR,
// OR, OWI.
type LoopingHandler struct{}

func (LoopingHandler) Run(s *States) (*Result, error) {
	iwi(s)
	if err := ir(s); err != nil {
		return nil, err
	}

	loopIndex := intField(s.Syntax, "loop_index")
	loopBaseConcept, _ := stringField(s.Syntax, "loop_base_concept")
	createAxis, hasCreateAxis := stringField(s.Syntax, "create_axis")
	conceptToInfer := s.Inference.ConceptToInfer

	// GR: flatten the base collection to an ordered list of elements.
	base := s.Values[loopBaseConcept]
	if base == nil {
		base = s.Context[loopBaseConcept]
	}
	if base == nil {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation, "looping sequence missing loop_base_concept value", nil)
	}
	elements := reference.GetLeavesIncludingSkip(base)

	loopKey := workspace.LoopKey(loopIndex, loopBaseConcept)
	inLoopConcepts := inLoopConceptMap(s.Syntax)

	progressed := false
	for ordinal, elem := range elements {
		if _, exists := s.Workspace.GetIteration(loopKey, ordinal); exists {
			continue
		}
		slot := workspace.IterationSlot{loopBaseConcept: reference.NewScalar(elem)}
		for name, carryIndex := range inLoopConcepts {
			var carried *reference.Reference
			if carryIndex == 0 {
				carried = s.Context[name]
			} else if prior, ok := s.Workspace.GetIteration(loopKey, ordinal-carryIndex); ok {
				carried = prior[name]
			}
			if carried != nil {
				slot[name] = carried
			}
		}
		if s.Workspace.RecordIteration(loopKey, ordinal, loopBaseConcept, slot[loopBaseConcept]) {
			progressed = true
		}
		for name, ref := range slot {
			if name == loopBaseConcept {
				continue
			}
			if s.Workspace.RecordIteration(loopKey, ordinal, name, ref) {
				progressed = true
			}
		}
	}
	s.IsLoopProgress = progressed

	// When every element's slot has the inferred concept present, aggregate
	// along create_axis (or the loop base axis) and write the output.
	ordinals := s.Workspace.IterationSlots(loopKey)
	complete := len(ordinals) == len(elements) && len(elements) > 0
	var aggregated []*reference.Reference
	for _, ord := range ordinals {
		slot, ok := s.Workspace.GetIteration(loopKey, ord)
		if !ok {
			complete = false
			break
		}
		val, ok := slot[conceptToInfer]
		if !ok {
			complete = false
			continue
		}
		aggregated = append(aggregated, val)
	}

	if len(elements) == 0 {
		// Empty base collection: output has shape (0,) along create_axis,
		// loop completes in one cycle (spec.md §8 boundary behavior).
		axis := createAxis
		if !hasCreateAxis || axis == "" {
			axis = loopBaseConcept
		}
		s.Output = &reference.Reference{Axes: []string{axis}, Shape: []int{0}, Data: []any{}}
		s.CompletionDetail = domain.DetailSuccess
		return &Result{States: s}, nil
	}

	if complete {
		axis := createAxis
		if !hasCreateAxis || axis == "" {
			axis = loopBaseConcept
		}
		out, err := reference.Concat(aggregated, axis, nil)
		if err != nil {
			return nil, err
		}
		s.Output = out
		s.CompletionDetail = domain.DetailSuccess
	}
	// Not yet complete: Output stays nil; the orchestrator re-schedules the
	// loop's child inferences next cycle. completion_detail is left unset
	// so `or` doesn't mark this as condition_not_met prematurely — the
	// completeness check above governs the loop's completion status.
	return &Result{States: s}, nil
}

func inLoopConceptMap(syntax map[string]any) map[string]int {
	raw, ok := syntax["in_loop_concept"]
	if !ok {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		switch n := v.(type) {
		case int:
			out[k] = n
		case float64:
			out[k] = int(n)
		}
	}
	return out
}

func intField(syntax map[string]any, key string) int {
	v, ok := syntax[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
