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

func newStatesFixture(inf *domain.Inference, bb *blackboard.Blackboard) *States {
	return NewStates(inf, bb.Snapshot(), workspace.New())
}

func TestSimpleHandlerPassesValueThrough(t *testing.T) {
	bb := blackboard.New()
	bb.SetConceptValue("A", reference.NewScalar(7))

	inf := &domain.Inference{
		FlowIndex:     domain.ParseFlowIndex("1"),
		Sequence:      domain.SequenceSimple,
		ConceptToInfer: "B",
		ValueConcepts: []string{"A"},
	}
	s := newStatesFixture(inf, bb)

	res, err := SimpleHandler{}.Run(s)
	require.NoError(t, err)
	assert.Equal(t, []any{7}, res.States.Output.Data)
	assert.Equal(t, domain.DetailSuccess, res.States.CompletionDetail)
}

func TestSimpleHandlerRejectsMultipleValueConcepts(t *testing.T) {
	bb := blackboard.New()
	bb.SetConceptValue("A", reference.NewScalar(1))
	bb.SetConceptValue("B", reference.NewScalar(2))

	inf := &domain.Inference{
		FlowIndex:     domain.ParseFlowIndex("1"),
		Sequence:      domain.SequenceSimple,
		ConceptToInfer: "C",
		ValueConcepts: []string{"A", "B"},
	}
	s := newStatesFixture(inf, bb)

	_, err := SimpleHandler{}.Run(s)
	require.Error(t, err)
}
