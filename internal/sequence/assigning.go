package sequence

import (
	"fmt"

	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/reference"
)

// AssigningHandler implements $=, $., $%, $+, $- (spec.md §4.4.2): IWI, IR,
// AR, OR, OWI.
type AssigningHandler struct {
	// AddAlias is called by AR for identity ($=) assignments. The handler
	// holds no Blackboard reference itself; the orchestrator wires this
	// callback to Blackboard.AddAlias, so the alias is registered on the
	// live Blackboard while the handler runs.
	AddAlias func(primary, secondary string)
}

func (h AssigningHandler) Run(s *States) (*Result, error) {
	iwi(s)
	if err := ir(s); err != nil {
		return nil, err
	}
	if err := h.ar(s); err != nil {
		return nil, err
	}
	or(s)
	owi(s)
	return &Result{States: s}, nil
}

func (h AssigningHandler) ar(s *States) error {
	marker, _ := stringField(s.Syntax, "marker")
	switch marker {
	case "identity", "$=":
		return h.identity(s)
	case "specification", "$.":
		return h.specification(s)
	case "abstraction", "$%":
		return h.abstraction(s)
	case "continuation", "$+":
		return h.continuation(s)
	case "selection", "$-":
		return h.selection(s)
	default:
		return domain.NewEngineError(domain.ErrKindPlanValidation, "assigning sequence missing or unknown syntax.marker", nil)
	}
}

// identity ($=): register primary <- secondary with the Blackboard; output
// equals source unchanged.
func (h AssigningHandler) identity(s *States) error {
	if len(s.Inference.ValueConcepts) != 1 {
		return domain.NewEngineError(domain.ErrKindPlanValidation, "identity assignment requires exactly one value_concept", nil)
	}
	secondary := s.Inference.ValueConcepts[0]
	primary := s.Inference.ConceptToInfer
	if h.AddAlias != nil {
		h.AddAlias(primary, secondary)
	}
	s.Output = s.Values[secondary]
	return nil
}

// specification ($.): select the first non-SKIP cell along the input's
// primary axis satisfying an optional selector.
func (h AssigningHandler) specification(s *States) error {
	if len(s.Inference.ValueConcepts) != 1 {
		return domain.NewEngineError(domain.ErrKindPlanValidation, "specification assignment requires exactly one value_concept", nil)
	}
	ref := s.Values[s.Inference.ValueConcepts[0]]
	if ref == nil || len(ref.Axes) == 0 {
		return domain.NewEngineError(domain.ErrKindPlanValidation, "specification source has no axes", nil)
	}
	primaryAxis := ref.Axes[0]
	selector, hasSelector := stringField(s.Syntax, "selector")

	leaves := sliceAlongAxis(ref, primaryAxis)
	for _, leaf := range leaves {
		if reference.IsSkip(leaf) {
			continue
		}
		if hasSelector && !matchesSelector(leaf, selector) {
			continue
		}
		s.Output = reference.NewScalar(leaf)
		return nil
	}
	// No cell satisfied the selector: empty output, condition_not_met.
	s.CompletionDetail = domain.DetailConditionNotMet
	return nil
}

// abstraction ($%): wrap a literal value from working_interpretation as a
// reference with declared axes.
func (h AssigningHandler) abstraction(s *States) error {
	value, ok := s.Syntax["value"]
	if !ok {
		return domain.NewEngineError(domain.ErrKindPlanValidation, "abstraction assignment missing working_interpretation.value", nil)
	}
	axes := stringSliceField(s.Syntax, "axes")
	if len(axes) == 0 {
		s.Output = reference.NewScalar(value)
		return nil
	}
	shape := make([]int, len(axes))
	var data any = value
	for i := range axes {
		shape[i] = 1
		data = []any{data}
	}
	s.Output = &reference.Reference{
		Axes:  axes,
		Shape: shape,
		Data:  data,
	}
	return nil
}

// continuation ($+): concatenate a new element into an existing base
// reference along a named axis; used for loop-body state accumulation.
func (h AssigningHandler) continuation(s *States) error {
	baseName, _ := stringField(s.Syntax, "base_concept")
	axis, _ := stringField(s.Syntax, "axis")
	if len(s.Inference.ValueConcepts) != 1 {
		return domain.NewEngineError(domain.ErrKindPlanValidation, "continuation assignment requires exactly one value_concept", nil)
	}
	newElem := s.Values[s.Inference.ValueConcepts[0]]

	base, ok := s.Context[baseName]
	if !ok {
		// No prior base: the new element starts the sequence.
		s.Output = newElem
		return nil
	}
	if axis == "" {
		axis = base.Axes[0]
	}
	out, err := reference.Concat([]*reference.Reference{base, newElem}, axis, nil)
	if err != nil {
		return err
	}
	s.Output = out
	return nil
}

// selection ($-): projects the source onto the axes listed in
// working_interpretation.axes (every other axis must be singleton); with no
// axes listed the source passes through unchanged. No predicate is
// evaluated: cells are never filtered by value.
func (h AssigningHandler) selection(s *States) error {
	if len(s.Inference.ValueConcepts) != 1 {
		return domain.NewEngineError(domain.ErrKindPlanValidation, "selection assignment requires exactly one value_concept", nil)
	}
	ref := s.Values[s.Inference.ValueConcepts[0]]
	axes := stringSliceField(s.Syntax, "axes")
	if len(axes) == 0 {
		s.Output = ref
		return nil
	}
	out, err := reference.Project(ref, axes)
	if err != nil {
		return err
	}
	s.Output = out
	return nil
}

// sliceAlongAxis returns the list of sub-values (or leaves, if the axis is
// the last one) obtained by fixing axis at every index in turn.
func sliceAlongAxis(ref *reference.Reference, axis string) []any {
	pos := -1
	for i, a := range ref.Axes {
		if a == axis {
			pos = i
			break
		}
	}
	if pos != 0 {
		return reference.GetLeavesIncludingSkip(ref)
	}
	data, ok := ref.Data.([]any)
	if !ok {
		return nil
	}
	return data
}

// matchesSelector is a minimal structural selector: exact-match against a
// scalar, or field presence for map leaves. Real selector grammars are a
// Body/paradigm concern (expr-lang is used for richer predicates in timing
// and judgement; this keeps assigning's own selection simple per its role
// as a syntactic, not semantic, handler).
func matchesSelector(leaf any, selector string) bool {
	if selector == "" {
		return true
	}
	m, ok := leaf.(map[string]any)
	if !ok {
		return fmt.Sprint(leaf) == selector
	}
	_, present := m[selector]
	return present
}
