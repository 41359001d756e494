package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/internal/repository"
	"github.com/inferloom/inferloom/reference"
)

// stubBody is a minimal Body used to drive imperative/judgement dispatch in
// orchestrator-level tests without a live tool call.
type stubBody struct {
	results map[string]any
}

func (b *stubBody) CallParadigm(paradigmID string, inputs map[string]any) (any, error) {
	if r, ok := b.results[paradigmID]; ok {
		return r, nil
	}
	return inputs, nil
}
func (b *stubBody) ReadFile(path string) (string, error)         { return "", nil }
func (b *stubBody) WriteFile(path string, content string) error { return nil }
func (b *stubBody) ReadMemorized(key string) (any, error)        { return nil, nil }

func mustConceptRepo(t *testing.T, concepts []*domain.Concept) *repository.ConceptRepo {
	t.Helper()
	cr, err := repository.NewConceptRepo(concepts)
	require.NoError(t, err)
	return cr
}

func mustInferenceRepo(t *testing.T, infs []*domain.Inference) *repository.InferenceRepo {
	t.Helper()
	ir, err := repository.NewInferenceRepo(infs)
	require.NoError(t, err)
	return ir
}

// TestOrchestratorRunsSimpleChainToCompletion exercises the main loop end to
// end over a tiny ground -> simple -> simple chain, per spec.md §4.6.
func TestOrchestratorRunsSimpleChainToCompletion(t *testing.T) {
	concepts := mustConceptRepo(t, []*domain.Concept{
		{Name: "seed", IsGround: true, InitialData: 5},
		{Name: "step1"},
		{Name: "final_out", IsFinal: true},
	})
	infs := mustInferenceRepo(t, []*domain.Inference{
		{FlowIndex: domain.ParseFlowIndex("1"), Sequence: domain.SequenceSimple, ConceptToInfer: "step1", ValueConcepts: []string{"seed"}},
		{FlowIndex: domain.ParseFlowIndex("2"), Sequence: domain.SequenceSimple, ConceptToInfer: "final_out", ValueConcepts: []string{"step1"}},
	})

	o, err := NewOrchestrator(concepts, infs, &stubBody{})
	require.NoError(t, err)

	final, err := o.Run()
	require.NoError(t, err)
	require.Len(t, final, 1)
	assert.Equal(t, "final_out", final[0].Name)
	assert.Equal(t, []any{5}, final[0].Reference.Data)
	assert.Empty(t, o.FailedInferences())
}

// TestOrchestratorSkipCascade is spec.md §8 scenario 4 ("Skip cascade"): a
// judgement that evaluates false (condition_not_met) drives its parent's
// @:' timing gate to skip; the parent's concept_to_infer completes empty,
// and a downstream consumer still completes successfully over that empty
// value.
func TestOrchestratorSkipCascade(t *testing.T) {
	concepts := mustConceptRepo(t, []*domain.Concept{
		{Name: "text", IsGround: true, InitialData: "hello"},
		{Name: "verdict"},
		{Name: "gate"},
		{Name: "analysis"},
		{Name: "final_out", IsFinal: true},
	})
	infs := mustInferenceRepo(t, []*domain.Inference{
		{
			FlowIndex:      domain.ParseFlowIndex("1"),
			Sequence:       domain.SequenceJudgement,
			ConceptToInfer: "verdict",
			ValueConcepts:  []string{"text"},
			WorkingInterpretation: map[string]any{
				"paradigm_id": "is_long_enough",
				"quantifier":  "ALL True",
				"assertion":   "value == true",
			},
		},
		{
			FlowIndex:      domain.ParseFlowIndex("2"),
			Sequence:       domain.SequenceImperative,
			ConceptToInfer: "analysis",
			ValueConcepts:  []string{"text"},
			WorkingInterpretation: map[string]any{
				"paradigm_id": "analyze",
			},
		},
		{
			FlowIndex:       domain.ParseFlowIndex("2.1"),
			Sequence:        domain.SequenceTiming,
			ConceptToInfer:  "gate",
			ContextConcepts: []string{"verdict"},
			WorkingInterpretation: map[string]any{
				"condition": "verdict",
				"marker":    "@:'",
			},
		},
		{
			FlowIndex:      domain.ParseFlowIndex("3"),
			Sequence:       domain.SequenceSimple,
			ConceptToInfer: "final_out",
			ValueConcepts:  []string{"analysis"},
		},
	})

	body := &stubBody{results: map[string]any{"is_long_enough": false}}
	o, err := NewOrchestrator(concepts, infs, body)
	require.NoError(t, err)

	final, err := o.Run()
	require.NoError(t, err)
	require.Len(t, final, 1)
	assert.Equal(t, "final_out", final[0].Name)
	assert.Equal(t, []any{reference.Skip}, final[0].Reference.Data)

	detail, ok := o.blackboard.CompletionDetailOf("2")
	require.True(t, ok)
	assert.Equal(t, domain.DetailSkipped, detail)
}

// TestOrchestratorResumeAfterCheckpointReachesSameTerminalState is spec.md
// §8 scenario 5 ("Resume after crash"): persisting mid-run and resuming from
// the latest checkpoint reaches the same terminal state as an uninterrupted
// run over the same plan.
func TestOrchestratorResumeAfterCheckpointReachesSameTerminalState(t *testing.T) {
	concepts := mustConceptRepo(t, []*domain.Concept{
		{Name: "seed", IsGround: true, InitialData: 7},
		{Name: "step1"},
		{Name: "final_out", IsFinal: true},
	})
	// final_out (flow "1") is scanned before step1 (flow "2") within a
	// cycle, so the chain takes two Step() cycles to complete: the first
	// leaves final_out pending (its dependency isn't complete yet), the
	// second completes it once step1 is in.
	newInfs := func() *repository.InferenceRepo {
		return mustInferenceRepo(t, []*domain.Inference{
			{FlowIndex: domain.ParseFlowIndex("1"), Sequence: domain.SequenceSimple, ConceptToInfer: "final_out", ValueConcepts: []string{"step1"}},
			{FlowIndex: domain.ParseFlowIndex("2"), Sequence: domain.SequenceSimple, ConceptToInfer: "step1", ValueConcepts: []string{"seed"}},
		})
	}

	refOrch, err := NewOrchestrator(concepts, newInfs(), &stubBody{}, WithMaxCycles(50))
	require.NoError(t, err)
	refFinal, err := refOrch.Run()
	require.NoError(t, err)
	require.Len(t, refFinal, 1)

	dbPath := filepath.Join(t.TempDir(), "run.db")
	runID := "resume-test-run"
	interrupted, err := NewOrchestrator(concepts, newInfs(), &stubBody{}, WithDBPath(dbPath), WithRunID(runID), WithMaxCycles(50))
	require.NoError(t, err)

	first, err := interrupted.Step()
	require.NoError(t, err)
	assert.True(t, first.Progressed)
	assert.False(t, first.Terminal, "chain should not complete in the first cycle given this scan order")

	resumed, err := LoadCheckpoint(concepts, newInfs(), &stubBody{}, dbPath, runID, nil)
	require.NoError(t, err)

	resumedFinal, err := resumed.Run()
	require.NoError(t, err)
	require.Len(t, resumedFinal, 1)
	assert.Equal(t, refFinal[0].Name, resumedFinal[0].Name)
	assert.Equal(t, refFinal[0].Reference.Data, resumedFinal[0].Reference.Data)
}
