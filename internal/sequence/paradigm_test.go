package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTvaDispatchesReadWriteAndMemorizedSteps(t *testing.T) {
	body := newFakeBody()
	body.files["in.txt"] = "hello"
	body.memorized["k"] = "remembered"

	paradigm := &Paradigm{
		ID: "pipeline",
		Steps: []ParadigmStep{
			{Name: "read", Tool: "read_file", Inputs: map[string]any{"path": "in.txt"}, Output: "content"},
			{Name: "write", Tool: "write_file", Inputs: map[string]any{"path": "out.txt", "content": "$content"}, Output: "written"},
			{Name: "recall", Tool: "read_memorized", Inputs: map[string]any{"key": "k"}, Output: "result"},
		},
	}

	out, err := tva(body, "pipeline", paradigm, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "remembered", out)
	assert.Equal(t, "hello", body.writes["out.txt"])
}

func TestTvaDefaultToolNameIsDelegatedToBody(t *testing.T) {
	body := newFakeBody()
	body.results["custom_tool"] = "ok"
	paradigm := &Paradigm{
		ID:    "p",
		Steps: []ParadigmStep{{Name: "s", Tool: "custom_tool", Output: "r"}},
	}

	out, err := tva(body, "p", paradigm, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestTvaWrapsBodyErrorWithRetriableFlag(t *testing.T) {
	body := newFakeBody()
	body.failUntil = 10
	body.retriable = true
	paradigm := &Paradigm{
		ID:    "p",
		Steps: []ParadigmStep{{Name: "s", Tool: "call_paradigm", Inputs: map[string]any{"retriable": true}, Output: "r"}},
	}

	_, err := tva(body, "p", paradigm, map[string]any{})
	require.Error(t, err)
	var berr *BodyError
	require.ErrorAs(t, err, &berr)
	assert.True(t, berr.Retriable)
}

func TestMfpWithNoRegistryDelegatesToCallParadigm(t *testing.T) {
	p, err := mfp(nil, "anything")
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "call_paradigm", p.Steps[0].Tool)
}

func TestRunPythonScriptStepReusesExistingScript(t *testing.T) {
	body := newFakeBody()
	body.files["script.py"] = "print('already here')"
	body.results["run_script"] = "ran"

	out, err := runPythonScriptStep(body, map[string]any{"script_path": "script.py"})
	require.NoError(t, err)
	assert.Equal(t, "ran", out)
	assert.Empty(t, body.writes["script.py"], "existing script should not be regenerated")
}

func TestRunPythonScriptStepGeneratesWhenMissing(t *testing.T) {
	body := newFakeBody()
	body.files["prompt.txt"] = "write a script that sums digits"
	body.results["llm_complete"] = "print('generated')"
	body.results["run_script"] = "ran"

	out, err := runPythonScriptStep(body, map[string]any{
		"script_path": "script.py",
		"prompt_path": "prompt.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "ran", out)
	assert.Equal(t, "print('generated')", body.writes["script.py"])
}

func TestRunPythonScriptStepRegeneratesOnExplicitFlag(t *testing.T) {
	body := newFakeBody()
	body.files["script.py"] = "print('stale')"
	body.files["prompt.txt"] = "write a fresh script"
	body.results["llm_complete"] = "print('fresh')"
	body.results["run_script"] = "ran"

	out, err := runPythonScriptStep(body, map[string]any{
		"script_path": "script.py",
		"prompt_path": "prompt.txt",
		"regenerate":  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ran", out)
	assert.Equal(t, "print('fresh')", body.writes["script.py"])
}
