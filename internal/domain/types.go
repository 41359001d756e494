// Package domain holds the static plan types (Concept, Inference) and the
// engine's error taxonomy. Domain types are immutable once loaded; mutable
// per-run state lives in blackboard and workspace.
package domain

import "fmt"

// TypeTag classifies what kind of thing a Concept denotes.
type TypeTag string

const (
	TypeObject      TypeTag = "object"
	TypeRelation    TypeTag = "relation"
	TypeProposition TypeTag = "proposition"
	TypeSubject     TypeTag = "subject"
	TypeImperative  TypeTag = "imperative"
	TypeJudgement   TypeTag = "judgement"
	TypeOperator    TypeTag = "operator"
)

// SequenceKind selects which handler an Inference dispatches to.
type SequenceKind string

const (
	SequenceGrouping  SequenceKind = "grouping"
	SequenceAssigning SequenceKind = "assigning"
	SequenceTiming    SequenceKind = "timing"
	SequenceLooping   SequenceKind = "looping"
	SequenceImperative SequenceKind = "imperative"
	SequenceJudgement SequenceKind = "judgement"
	SequenceSimple    SequenceKind = "simple"
)

// ConceptStatus is the Blackboard lifecycle state of a concept's value.
type ConceptStatus string

const (
	ConceptEmpty    ConceptStatus = "empty"
	ConceptPending  ConceptStatus = "pending"
	ConceptInProgress ConceptStatus = "in_progress"
	ConceptComplete ConceptStatus = "complete"
)

// InferenceStatus is the Blackboard lifecycle state of an inference.
type InferenceStatus string

const (
	InferencePending    InferenceStatus = "pending"
	InferenceInProgress InferenceStatus = "in_progress"
	InferenceComplete   InferenceStatus = "complete"
	InferenceSkipped    InferenceStatus = "skipped"
)

// IsTerminal reports whether an inference will never be scheduled again.
func (s InferenceStatus) IsTerminal() bool {
	return s == InferenceComplete || s == InferenceSkipped
}

// CompletionDetail records why an inference reached a terminal status.
type CompletionDetail string

const (
	DetailSuccess         CompletionDetail = "success"
	DetailConditionNotMet CompletionDetail = "condition_not_met"
	DetailSkipped         CompletionDetail = "skipped"
	DetailError           CompletionDetail = "error"
)

// Concept is an immutable, named node in the plan's concept repository.
type Concept struct {
	Name        string
	TypeTag     TypeTag
	IsGround    bool
	IsFinal     bool
	AxisNames   []string
	InitialData any // present iff IsGround
}

// Inference is a single logical step in the plan's inference repository.
type Inference struct {
	FlowIndex             FlowIndex
	Sequence              SequenceKind
	ConceptToInfer        string
	FunctionConcept       string
	ValueConcepts         []string
	ContextConcepts       []string
	WorkingInterpretation map[string]any
}

// ErrorKind enumerates the engine's closed error taxonomy (spec.md §7).
type ErrorKind string

const (
	ErrKindPlanValidation    ErrorKind = "PlanValidation"
	ErrKindUnknownConcept    ErrorKind = "UnknownConcept"
	ErrKindUnknownCondition  ErrorKind = "UnknownCondition"
	ErrKindNotComplete       ErrorKind = "NotComplete"
	ErrKindMissingCreateAxis ErrorKind = "MissingCreateAxis"
	ErrKindTimingStuck       ErrorKind = "TimingStuck"
	ErrKindLoopNoProgress    ErrorKind = "LoopNoProgress"
	ErrKindBodyError         ErrorKind = "BodyError"
	ErrKindCheckpointIO      ErrorKind = "CheckpointIO"
)

// EngineError is the typed error every engine component returns, following
// the teacher's DomainError{Code, Message, Err} + Unwrap() shape, generalized
// to a closed Kind enum since the engine's taxonomy is fixed at compile time.
type EngineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Err }

// NewEngineError builds an EngineError, optionally wrapping a cause.
func NewEngineError(kind ErrorKind, message string, cause error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Err: cause}
}

// Sentinel errors for errors.Is comparisons against a specific kind without
// needing to construct a full EngineError on the caller side.
var (
	ErrUnknownConcept    = &EngineError{Kind: ErrKindUnknownConcept, Message: "unknown concept"}
	ErrUnknownCondition  = &EngineError{Kind: ErrKindUnknownCondition, Message: "unknown condition concept"}
	ErrNotComplete       = &EngineError{Kind: ErrKindNotComplete, Message: "concept not complete"}
	ErrMissingCreateAxis = &EngineError{Kind: ErrKindMissingCreateAxis, Message: "create_axis required in &across per-ref mode"}
	ErrTimingStuck       = &EngineError{Kind: ErrKindTimingStuck, Message: "timing gate made no progress"}
	ErrLoopNoProgress    = &EngineError{Kind: ErrKindLoopNoProgress, Message: "loop made no progress across a full scan"}
)

// Is implements errors.Is-compatible comparison keyed on Kind, so a wrapped
// EngineError still matches its sentinel regardless of Message/Err.
func (e *EngineError) Is(target error) bool {
	other, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
