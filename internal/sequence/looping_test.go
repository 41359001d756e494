package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloom/inferloom/internal/blackboard"
	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/internal/workspace"
	"github.com/inferloom/inferloom/reference"
)

func newLoopInference(syntax map[string]any) *domain.Inference {
	return &domain.Inference{
		FlowIndex:             domain.ParseFlowIndex("2"),
		Sequence:              domain.SequenceLooping,
		ConceptToInfer:        "digit_sum",
		WorkingInterpretation: syntax,
	}
}

func TestLoopingEmptyBaseCollectionCompletesImmediately(t *testing.T) {
	bb := blackboard.New()
	bb.SetConceptValue("digits", &reference.Reference{Axes: []string{"digit"}, Shape: []int{0}, Data: []any{}})

	inf := newLoopInference(map[string]any{
		"loop_index":        1,
		"loop_base_concept": "digits",
	})
	inf.ValueConcepts = []string{"digits"}
	s := NewStates(inf, bb.Snapshot(), workspace.New())

	res, err := LoopingHandler{}.Run(s)
	require.NoError(t, err)
	require.NotNil(t, res.States.Output)
	assert.Equal(t, domain.DetailSuccess, res.States.CompletionDetail)
	assert.Equal(t, []int{0}, res.States.Output.Shape)
}

func TestLoopingNotYetCompleteLeavesOutputNil(t *testing.T) {
	bb := blackboard.New()
	bb.SetConceptValue("digits", &reference.Reference{
		Axes: []string{"digit"}, Shape: []int{2}, Data: []any{"a", "b"},
	})

	inf := newLoopInference(map[string]any{
		"loop_index":        1,
		"loop_base_concept": "digits",
	})
	inf.ValueConcepts = []string{"digits"}
	ws := workspace.New()
	s := NewStates(inf, bb.Snapshot(), ws)

	res, err := LoopingHandler{}.Run(s)
	require.NoError(t, err)
	assert.Nil(t, res.States.Output)
	assert.Equal(t, domain.CompletionDetail(""), res.States.CompletionDetail)
	assert.True(t, res.States.IsLoopProgress)

	// Both ordinals recorded the loop base element, but the child inference
	// that computes digit_sum per-iteration hasn't run yet.
	loopKey := workspace.LoopKey(1, "digits")
	assert.Equal(t, []int{0, 1}, ws.IterationSlots(loopKey))
}

func TestLoopingAggregatesOnceEveryIterationHasTheInferredConcept(t *testing.T) {
	bb := blackboard.New()
	bb.SetConceptValue("digits", &reference.Reference{
		Axes: []string{"digit"}, Shape: []int{2}, Data: []any{"a", "b"},
	})

	inf := newLoopInference(map[string]any{
		"loop_index":        1,
		"loop_base_concept": "digits",
	})
	inf.ValueConcepts = []string{"digits"}
	ws := workspace.New()
	loopKey := workspace.LoopKey(1, "digits")
	// Simulate the loop body's child inferences having already recorded
	// digit_sum for every ordinal.
	ws.RecordIteration(loopKey, 0, "digits", reference.NewScalar("a"))
	ws.RecordIteration(loopKey, 0, "digit_sum", reference.NewScalar(1))
	ws.RecordIteration(loopKey, 1, "digits", reference.NewScalar("b"))
	ws.RecordIteration(loopKey, 1, "digit_sum", reference.NewScalar(2))

	s := NewStates(inf, bb.Snapshot(), ws)
	res, err := LoopingHandler{}.Run(s)
	require.NoError(t, err)
	require.NotNil(t, res.States.Output)
	assert.Equal(t, domain.DetailSuccess, res.States.CompletionDetail)
	assert.Equal(t, []string{"digits", reference.NoneAxis}, res.States.Output.Axes)
	assert.Equal(t, []int{2, 1}, res.States.Output.Shape)
}

func TestLoopingCarriesForwardInLoopConcept(t *testing.T) {
	bb := blackboard.New()
	bb.SetConceptValue("digits", &reference.Reference{
		Axes: []string{"digit"}, Shape: []int{2}, Data: []any{"a", "b"},
	})
	bb.SetConceptValue("carry", reference.NewScalar(0))

	inf := newLoopInference(map[string]any{
		"loop_index":        1,
		"loop_base_concept": "digits",
		"in_loop_concept":   map[string]any{"carry": 0},
	})
	inf.ValueConcepts = []string{"digits"}
	inf.ContextConcepts = []string{"carry"}
	ws := workspace.New()
	s := NewStates(inf, bb.Snapshot(), ws)

	_, err := LoopingHandler{}.Run(s)
	require.NoError(t, err)

	loopKey := workspace.LoopKey(1, "digits")
	slot0, ok := ws.GetIteration(loopKey, 0)
	require.True(t, ok)
	assert.Equal(t, []any{0}, slot0["carry"].Data)
}
