package sequence

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBody is a reference BodyInterface implementation (spec.md §6.2),
// grounded on the teacher's OpenAICompletionExecutor
// (internal/application/executor/node_executors.go): same client
// construction, same prompt-in/content-out shape, generalized from a single
// workflow node type to the engine's CallParadigm contract. It is a
// reference Body for exercising imperative/judgement end to end — callers
// may supply their own.
type OpenAIBody struct {
	client *openai.Client
	model  string

	mu         sync.RWMutex
	memorized  map[string]any
	baseDir    string // root for relative file_location/script_location/save_path paths
}

// NewOpenAIBody constructs a Body backed by the OpenAI chat completions API.
// apiKey follows the teacher's resolution order: an explicit key wins, falls
// back to OPENAI_API_KEY from the environment.
func NewOpenAIBody(apiKey, model, baseDir string) *OpenAIBody {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIBody{
		client:    openai.NewClient(apiKey),
		model:     model,
		memorized: make(map[string]any),
		baseDir:   baseDir,
	}
}

// Remember seeds a memorized_parameter key, e.g. from run configuration.
func (b *OpenAIBody) Remember(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memorized[key] = value
}

// CallParadigm implements the imperative/judgement pipeline's single
// required Body method (spec.md §6.2). Two paradigm ids are understood:
//   - "llm_complete": sends inputs["prompt"] (or the sole positional input)
//     to the chat completions API and returns the trimmed content, mirroring
//     the teacher's OpenAICompletionExecutor.Execute.
//   - "run_script": executes a previously materialized python script
//     (spec.md §4.4.6) via the Body's own exec.Cmd boundary — the
//     orchestration core never shells out directly, only the Body does.
func (b *OpenAIBody) CallParadigm(paradigmID string, inputs map[string]any) (any, error) {
	switch paradigmID {
	case "llm_complete":
		return b.callLLM(inputs)
	case "run_script":
		return b.runScript(inputs)
	default:
		return nil, fmt.Errorf("openai body: unknown paradigm %q", paradigmID)
	}
}

func (b *OpenAIBody) callLLM(inputs map[string]any) (any, error) {
	prompt, _ := inputs["prompt"].(string)
	if prompt == "" {
		prompt, _ = inputs["input_1"].(string)
	}
	if prompt == "" {
		return nil, fmt.Errorf("openai body: llm_complete requires a prompt input")
	}
	resp, err := b.client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (b *OpenAIBody) runScript(inputs map[string]any) (any, error) {
	path, _ := inputs["script_path"].(string)
	if path == "" {
		return nil, fmt.Errorf("openai body: run_script requires script_path")
	}
	cmd := exec.Command("python3", b.resolvePath(path))
	var out strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("script %s: %w: %s", path, err, out.String())
	}
	return strings.TrimSpace(out.String()), nil
}

func (b *OpenAIBody) resolvePath(path string) string {
	if filepath.IsAbs(path) || b.baseDir == "" {
		return path
	}
	return filepath.Join(b.baseDir, path)
}

// ReadFile implements perception wrappers %{file_location}, %{prompt_location},
// %{script_location} (spec.md §4.4.5).
func (b *OpenAIBody) ReadFile(path string) (string, error) {
	content, err := os.ReadFile(b.resolvePath(path))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// WriteFile implements %{save_path} and script-generation persistence
// (spec.md §4.4.6).
func (b *OpenAIBody) WriteFile(path string, content string) error {
	full := b.resolvePath(path)
	if dir := filepath.Dir(full); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(full, []byte(content), 0o644)
}

// ReadMemorized implements %{memorized_parameter} (spec.md §4.4.5).
func (b *OpenAIBody) ReadMemorized(key string) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.memorized[key]
	if !ok {
		return nil, fmt.Errorf("memorized parameter %q not set", key)
	}
	return v, nil
}
