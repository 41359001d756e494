package blackboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/reference"
)

func TestSetConceptValueTransitionsToComplete(t *testing.T) {
	b := New()
	assert.Equal(t, domain.ConceptEmpty, b.StatusOfConcept("A"))

	ref := reference.NewScalar(42)
	b.SetConceptValue("A", ref)
	assert.Equal(t, domain.ConceptComplete, b.StatusOfConcept("A"))

	v, err := b.ValueOfConcept("A")
	require.NoError(t, err)
	assert.Same(t, ref, v)
}

func TestValueOfConceptFailsWhenNotComplete(t *testing.T) {
	b := New()
	b.SetConceptStatus("A", domain.ConceptPending)
	_, err := b.ValueOfConcept("A")
	require.Error(t, err)
	var ee *domain.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, domain.ErrKindNotComplete, ee.Kind)
	assert.True(t, errors.Is(err, domain.ErrNotComplete))
}

func TestAddAliasResolvesBothNames(t *testing.T) {
	b := New()
	b.AddAlias("primary", "secondary")
	ref := reference.NewScalar("v")
	b.SetConceptValue("secondary", ref)

	v, err := b.ValueOfConcept("primary")
	require.NoError(t, err)
	assert.Same(t, ref, v)

	assert.Equal(t, "primary", b.Resolve("secondary"))
}

func TestTruthMaskRoundTrip(t *testing.T) {
	b := New()
	b.SetTruthMask("J", TruthMask{FilterAxis: "x", Mask: []bool{true, false}})
	m, ok := b.GetTruthMask("J")
	require.True(t, ok)
	assert.Equal(t, []bool{true, false}, m.Mask)
}

func TestSnapshotIsIndependentOfLaterWrites(t *testing.T) {
	b := New()
	b.SetConceptValue("A", reference.NewScalar(1))
	snap := b.Snapshot()

	b.SetConceptValue("A", reference.NewScalar(2))

	v, err := snap.ValueOfConcept("A")
	require.NoError(t, err)
	assert.Equal(t, []any{1}, v.Data)
}

func TestInferenceStatusTransitions(t *testing.T) {
	b := New()
	assert.Equal(t, domain.InferencePending, b.StatusOfInference("1"))
	b.SetInferenceStarted("1")
	assert.Equal(t, domain.InferenceInProgress, b.StatusOfInference("1"))
	b.SetInferenceComplete("1", domain.DetailSuccess)
	assert.Equal(t, domain.InferenceComplete, b.StatusOfInference("1"))
	detail, ok := b.CompletionDetailOf("1")
	require.True(t, ok)
	assert.Equal(t, domain.DetailSuccess, detail)
}
