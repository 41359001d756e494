// Package repository implements the immutable, loadable concept/inference
// stores (spec.md §4.2), grounded on the teacher's domain.Workflow aggregate
// but split into two flat, read-only lookup stores per the flatter plan
// artifact model this engine loads.
package repository

import (
	"fmt"
	"sort"

	"github.com/inferloom/inferloom/internal/domain"
)

// ConceptRepo is an immutable, name-keyed store of Concepts.
type ConceptRepo struct {
	byName map[string]*domain.Concept
}

// NewConceptRepo builds a ConceptRepo from a loaded concept list. Returns a
// PlanValidation error if any name collides.
func NewConceptRepo(concepts []*domain.Concept) (*ConceptRepo, error) {
	byName := make(map[string]*domain.Concept, len(concepts))
	for _, c := range concepts {
		if _, dup := byName[c.Name]; dup {
			return nil, domain.NewEngineError(domain.ErrKindPlanValidation,
				fmt.Sprintf("duplicate concept name %q", c.Name), nil)
		}
		byName[c.Name] = c
	}
	return &ConceptRepo{byName: byName}, nil
}

// GetConcept returns the named concept, or ErrUnknownConcept.
func (r *ConceptRepo) GetConcept(name string) (*domain.Concept, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, domain.NewEngineError(domain.ErrKindUnknownConcept, name, nil)
	}
	return c, nil
}

// All returns every concept, in no particular order.
func (r *ConceptRepo) All() []*domain.Concept {
	out := make([]*domain.Concept, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	return out
}

// InferenceRepo is an immutable, flow-index-keyed store of Inferences.
type InferenceRepo struct {
	byFlowIndex map[string]*domain.Inference
	sorted      []*domain.Inference
	byConcept   map[string]string
}

// NewInferenceRepo builds an InferenceRepo from a loaded inference list,
// pre-sorting by flow_index (spec.md §4.2: numeric component comparison,
// leaves before ancestors). Returns PlanValidation on a duplicate flow_index
// or an inference with an empty concept_to_infer.
func NewInferenceRepo(inferences []*domain.Inference) (*InferenceRepo, error) {
	byFlowIndex := make(map[string]*domain.Inference, len(inferences))
	for _, inf := range inferences {
		key := inf.FlowIndex.String()
		if _, dup := byFlowIndex[key]; dup {
			return nil, domain.NewEngineError(domain.ErrKindPlanValidation,
				fmt.Sprintf("duplicate flow_index %q", key), nil)
		}
		if inf.ConceptToInfer == "" {
			return nil, domain.NewEngineError(domain.ErrKindPlanValidation,
				fmt.Sprintf("inference %q has no concept_to_infer", key), nil)
		}
		byFlowIndex[key] = inf
	}

	sorted := make([]*domain.Inference, 0, len(inferences))
	sorted = append(sorted, inferences...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FlowIndex.Less(sorted[j].FlowIndex)
	})

	byConcept := make(map[string]string, len(inferences))
	for _, inf := range inferences {
		byConcept[inf.ConceptToInfer] = inf.FlowIndex.String()
	}

	return &InferenceRepo{byFlowIndex: byFlowIndex, sorted: sorted, byConcept: byConcept}, nil
}

// ProducerOf returns the flow_index of the inference whose concept_to_infer
// is conceptName, used by the timing handler to read that inference's
// completion_detail (spec.md §4.4.3).
func (r *InferenceRepo) ProducerOf(conceptName string) (string, bool) {
	flowIndex, ok := r.byConcept[conceptName]
	return flowIndex, ok
}

// GetInference returns the inference at flowIndex.
func (r *InferenceRepo) GetInference(flowIndex string) (*domain.Inference, error) {
	inf, ok := r.byFlowIndex[flowIndex]
	if !ok {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation,
			fmt.Sprintf("unknown flow_index %q", flowIndex), nil)
	}
	return inf, nil
}

// AllInferencesSorted returns inferences ordered by flow_index, leaves
// before ancestors (deepest-first tie-break), per spec.md §4.2.
func (r *InferenceRepo) AllInferencesSorted() []*domain.Inference {
	return r.sorted
}

// Children returns every inference whose flow_index is a direct child of
// parent's.
func (r *InferenceRepo) Children(parent string) []*domain.Inference {
	p := parent
	var out []*domain.Inference
	parsed := parseOrZero(p)
	for _, inf := range r.sorted {
		if inf.FlowIndex.IsChildOf(parsed) {
			out = append(out, inf)
		}
	}
	return out
}

// Parent returns the inference whose flow_index is the direct parent of
// child's, or nil if child is top-level or its parent isn't in the repo.
func (r *InferenceRepo) Parent(child string) *domain.Inference {
	parsed := parseOrZero(child)
	parentIdx, ok := parsed.Parent()
	if !ok {
		return nil
	}
	inf, ok := r.byFlowIndex[parentIdx.String()]
	if !ok {
		return nil
	}
	return inf
}

func parseOrZero(s string) domain.FlowIndex {
	return domain.ParseFlowIndex(s)
}
