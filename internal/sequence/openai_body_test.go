package sequence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise OpenAIBody's filesystem and memory bookkeeping only.
// callLLM and runScript require a live OpenAI endpoint and a python3
// interpreter respectively, so they're left to integration testing against a
// real Body rather than faked here.

func TestOpenAIBodyWriteThenReadFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	b := NewOpenAIBody("unused-key", "", dir)

	require.NoError(t, b.WriteFile("notes/out.txt", "hello world"))
	content, err := b.ReadFile("notes/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", content)
}

func TestOpenAIBodyResolvePathJoinsBaseDirForRelativePaths(t *testing.T) {
	b := NewOpenAIBody("k", "m", "/base")
	assert.Equal(t, filepath.Join("/base", "rel.txt"), b.resolvePath("rel.txt"))
	assert.Equal(t, "/abs/path.txt", b.resolvePath("/abs/path.txt"))
}

func TestOpenAIBodyResolvePathNoBaseDirLeavesRelativePathUnchanged(t *testing.T) {
	b := NewOpenAIBody("k", "m", "")
	assert.Equal(t, "rel.txt", b.resolvePath("rel.txt"))
}

func TestOpenAIBodyRememberAndReadMemorized(t *testing.T) {
	b := NewOpenAIBody("k", "m", "")
	b.Remember("seed", 42)
	v, err := b.ReadMemorized("seed")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestOpenAIBodyReadMemorizedUnknownKeyFails(t *testing.T) {
	b := NewOpenAIBody("k", "m", "")
	_, err := b.ReadMemorized("missing")
	require.Error(t, err)
}

func TestOpenAIBodyDefaultModelFallback(t *testing.T) {
	b := NewOpenAIBody("k", "", "")
	assert.Equal(t, "gpt-4o", b.model)
}

func TestOpenAIBodyCallParadigmUnknownIDFails(t *testing.T) {
	b := NewOpenAIBody("k", "m", "")
	_, err := b.CallParadigm("not_a_real_paradigm", nil)
	require.Error(t, err)
}
