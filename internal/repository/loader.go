package repository

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/inferloom/inferloom/internal/domain"
)

// conceptRecord mirrors concept_repo.json's wire shape (spec.md §6.1).
// Unknown fields are ignored by encoding/json by default.
type conceptRecord struct {
	ConceptName        string   `json:"concept_name"`
	Type               string   `json:"type"`
	IsGroundConcept    bool     `json:"is_ground_concept"`
	IsFinalConcept     bool     `json:"is_final_concept"`
	IsInvariant        bool     `json:"is_invariant"`
	ReferenceAxisNames []string `json:"reference_axis_names"`
	ReferenceData      any      `json:"reference_data"`
}

// inferenceRecord mirrors inference_repo.json's wire shape.
type inferenceRecord struct {
	FlowInfo struct {
		FlowIndex string `json:"flow_index"`
	} `json:"flow_info"`
	InferenceSequence     string         `json:"inference_sequence"`
	ConceptToInfer        string         `json:"concept_to_infer"`
	FunctionConcept       string         `json:"function_concept"`
	ValueConcepts         []string       `json:"value_concepts"`
	ContextConcepts       []string       `json:"context_concepts"`
	WorkingInterpretation map[string]any `json:"working_interpretation"`
}

// LoadConceptRepo reads and validates concept_repo.json.
func LoadConceptRepo(path string) (*ConceptRepo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation, "opening concept repo", err)
	}
	defer f.Close()
	return decodeConceptRepo(f)
}

func decodeConceptRepo(r io.Reader) (*ConceptRepo, error) {
	var records []conceptRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation, "decoding concept repo", err)
	}

	concepts := make([]*domain.Concept, 0, len(records))
	var problems []string
	for i, rec := range records {
		if rec.ConceptName == "" {
			problems = append(problems, fmt.Sprintf("record %d: missing concept_name", i))
			continue
		}
		concepts = append(concepts, &domain.Concept{
			Name:        rec.ConceptName,
			TypeTag:     typeTagFromWire(rec.Type),
			IsGround:    rec.IsGroundConcept,
			IsFinal:     rec.IsFinalConcept,
			AxisNames:   rec.ReferenceAxisNames,
			InitialData: rec.ReferenceData,
		})
	}
	if len(problems) > 0 {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation, joinProblems(problems), nil)
	}
	return NewConceptRepo(concepts)
}

// typeTagFromWire maps the NormCode syntactic type markers onto TypeTag.
// Unrecognized markers default to TypeOperator, the catch-all for syntactic
// operator concepts the engine doesn't need to distinguish further.
func typeTagFromWire(marker string) domain.TypeTag {
	switch marker {
	case "{}":
		return domain.TypeObject
	case "[]":
		return domain.TypeRelation
	case "<>":
		return domain.TypeProposition
	case ":S:":
		return domain.TypeSubject
	case "::({})":
		return domain.TypeImperative
	case "<{}>":
		return domain.TypeJudgement
	default:
		return domain.TypeOperator
	}
}

// LoadInferenceRepo reads and validates inference_repo.json.
func LoadInferenceRepo(path string) (*InferenceRepo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation, "opening inference repo", err)
	}
	defer f.Close()
	return decodeInferenceRepo(f)
}

func decodeInferenceRepo(r io.Reader) (*InferenceRepo, error) {
	var records []inferenceRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation, "decoding inference repo", err)
	}

	inferences := make([]*domain.Inference, 0, len(records))
	var problems []string
	for i, rec := range records {
		if rec.FlowInfo.FlowIndex == "" {
			problems = append(problems, fmt.Sprintf("record %d: missing flow_info.flow_index", i))
			continue
		}
		if rec.ConceptToInfer == "" {
			problems = append(problems, fmt.Sprintf("record %d (%s): missing concept_to_infer", i, rec.FlowInfo.FlowIndex))
			continue
		}
		if rec.InferenceSequence == "" {
			problems = append(problems, fmt.Sprintf("record %d (%s): missing inference_sequence", i, rec.FlowInfo.FlowIndex))
			continue
		}
		wi := rec.WorkingInterpretation
		if wi == nil {
			wi = map[string]any{}
		}
		inferences = append(inferences, &domain.Inference{
			FlowIndex:             domain.ParseFlowIndex(rec.FlowInfo.FlowIndex),
			Sequence:              domain.SequenceKind(rec.InferenceSequence),
			ConceptToInfer:        rec.ConceptToInfer,
			FunctionConcept:       rec.FunctionConcept,
			ValueConcepts:         rec.ValueConcepts,
			ContextConcepts:       rec.ContextConcepts,
			WorkingInterpretation: wi,
		})
	}
	if len(problems) > 0 {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation, joinProblems(problems), nil)
	}
	return NewInferenceRepo(inferences)
}

func joinProblems(problems []string) string {
	out := "plan validation failed:"
	for _, p := range problems {
		out += "\n  - " + p
	}
	return out
}
