package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConcepts = `[
  {"concept_name": "A", "type": "{}", "is_ground_concept": true, "reference_axis_names": ["x"], "reference_data": [1,2]},
  {"concept_name": "B", "type": "[]", "is_ground_concept": false, "is_final_concept": true}
]`

const sampleInferences = `[
  {"flow_info": {"flow_index": "1"}, "inference_sequence": "simple", "concept_to_infer": "B",
   "function_concept": "id", "value_concepts": ["A"], "working_interpretation": {}},
  {"flow_info": {"flow_index": "1.1"}, "inference_sequence": "timing", "concept_to_infer": "B",
   "function_concept": "gate", "value_concepts": []}
]`

func TestDecodeConceptRepo(t *testing.T) {
	repo, err := decodeConceptRepo(strings.NewReader(sampleConcepts))
	require.NoError(t, err)
	a, err := repo.GetConcept("A")
	require.NoError(t, err)
	assert.True(t, a.IsGround)
	b, err := repo.GetConcept("B")
	require.NoError(t, err)
	assert.True(t, b.IsFinal)
}

func TestDecodeConceptRepoMissingName(t *testing.T) {
	_, err := decodeConceptRepo(strings.NewReader(`[{"type": "{}"}]`))
	require.Error(t, err)
}

func TestDecodeInferenceRepoSortsByFlowIndex(t *testing.T) {
	repo, err := decodeInferenceRepo(strings.NewReader(sampleInferences))
	require.NoError(t, err)
	sorted := repo.AllInferencesSorted()
	require.Len(t, sorted, 2)
	// "1.1" is deeper and shares the "1" prefix, so it sorts before "1".
	assert.Equal(t, "1.1", sorted[0].FlowIndex.String())
	assert.Equal(t, "1", sorted[1].FlowIndex.String())
}

func TestInferenceRepoChildrenAndParent(t *testing.T) {
	repo, err := decodeInferenceRepo(strings.NewReader(sampleInferences))
	require.NoError(t, err)
	children := repo.Children("1")
	require.Len(t, children, 1)
	assert.Equal(t, "1.1", children[0].FlowIndex.String())

	parent := repo.Parent("1.1")
	require.NotNil(t, parent)
	assert.Equal(t, "1", parent.FlowIndex.String())
}

func TestDecodeInferenceRepoMissingFlowIndex(t *testing.T) {
	_, err := decodeInferenceRepo(strings.NewReader(`[{"concept_to_infer": "X"}]`))
	require.Error(t, err)
}
