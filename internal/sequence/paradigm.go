package sequence

import (
	"fmt"

	"github.com/inferloom/inferloom/internal/domain"
)

// ParadigmStep is one entry in a declarative paradigm graph: a tool
// affordance (e.g. format-prompt, call-llm, parse-json, save-file) with a
// named output that later steps can reference.
type ParadigmStep struct {
	Name   string         `json:"name"`
	Tool   string         `json:"tool"`
	Inputs map[string]any `json:"inputs"`
	Output string         `json:"output"`
}

// Paradigm is the declarative JSON step-graph a working_interpretation's
// paradigm id resolves to, generalized from the teacher's one-node-type-
// per-executor split (node_executors.go) into one paradigm-step-per-entry.
type Paradigm struct {
	ID    string         `json:"id"`
	Steps []ParadigmStep `json:"steps"`
}

// ParadigmRegistry resolves a paradigm id to its declarative step graph.
// The engine ships no concrete registry (spec.md's Non-goals exclude a
// paradigm registry beyond the Paradigm interface); callers supply one.
type ParadigmRegistry interface {
	Resolve(paradigmID string) (*Paradigm, error)
}

// mfp (Model Function Perception) materializes a composed callable from the
// paradigm specification. Rather than literally building a closure, it
// returns the resolved Paradigm; tva interprets its steps against the
// inputs MVP gathered.
func mfp(registry ParadigmRegistry, paradigmID string) (*Paradigm, error) {
	if registry == nil {
		// No registry configured: treat the paradigm id itself as the sole
		// step, delegating entirely to the Body's CallParadigm.
		return &Paradigm{ID: paradigmID, Steps: []ParadigmStep{{Name: "call", Tool: "call_paradigm", Output: "result"}}}, nil
	}
	p, err := registry.Resolve(paradigmID)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindBodyError, "resolving paradigm "+paradigmID, err)
	}
	return p, nil
}

// tva (Tool Value Actuation) calls the composed function with the resolved
// inputs. Each step's tool is dispatched to the Body; "call_paradigm"-tooled
// steps pass paradigmID through unchanged, letting a Body implement entire
// composed behaviors itself (the reference OpenAI Body does this for
// "llm_complete"), while step graphs with more than one step let a richer
// Body expose finer-grained tools (format_prompt, parse_json, ...).
func tva(body Body, paradigmID string, paradigm *Paradigm, inputs map[string]any) (any, error) {
	var last any
	env := make(map[string]any, len(inputs))
	for k, v := range inputs {
		env[k] = v
	}
	for _, step := range paradigm.Steps {
		stepInputs := resolveStepInputs(step.Inputs, env, inputs)
		var out any
		var err error
		switch step.Tool {
		case "call_paradigm", "":
			out, err = body.CallParadigm(paradigmID, stepInputs)
		case "read_file":
			path, _ := stepInputs["path"].(string)
			out, err = body.ReadFile(path)
		case "write_file":
			path, _ := stepInputs["path"].(string)
			content, _ := stepInputs["content"].(string)
			err = body.WriteFile(path, content)
			out = content
		case "read_memorized":
			key, _ := stepInputs["key"].(string)
			out, err = body.ReadMemorized(key)
		case "python_script":
			out, err = runPythonScriptStep(body, stepInputs)
		default:
			out, err = body.CallParadigm(step.Tool, stepInputs)
		}
		if err != nil {
			retriable := boolField(stepInputs, "retriable")
			if inner, ok := err.(*BodyError); ok && inner.Retriable {
				retriable = true
			}
			return nil, &BodyError{Paradigm: paradigmID, Err: err, Retriable: retriable}
		}
		if step.Output != "" {
			env[step.Output] = out
		}
		last = out
	}
	return last, nil
}

// runPythonScriptStep implements the script-backed imperative/judgement path
// (spec.md §4.4.6): on first run, if script_location is absent, generate it
// from prompt_location via the Body's LLM facility and persist it;
// subsequent runs reuse the persisted file unless regenerate is set
// (spec.md §9 Open Question 3, resolved as "reuse if file exists;
// regenerate on explicit flag only").
func runPythonScriptStep(body Body, stepInputs map[string]any) (any, error) {
	scriptPath, _ := stepInputs["script_path"].(string)
	promptPath, _ := stepInputs["prompt_path"].(string)
	regenerate := boolField(stepInputs, "regenerate")

	if scriptPath == "" {
		return nil, fmt.Errorf("python_script step requires script_path")
	}

	_, err := body.ReadFile(scriptPath)
	needsGeneration := regenerate || err != nil
	if needsGeneration {
		template, terr := body.ReadFile(promptPath)
		if terr != nil {
			return nil, fmt.Errorf("loading prompt_location %s: %w", promptPath, terr)
		}
		generated, gerr := body.CallParadigm("llm_complete", map[string]any{"prompt": template})
		if gerr != nil {
			return nil, fmt.Errorf("generating script from %s: %w", promptPath, gerr)
		}
		content, _ := generated.(string)
		if werr := body.WriteFile(scriptPath, content); werr != nil {
			return nil, fmt.Errorf("persisting generated script %s: %w", scriptPath, werr)
		}
	}

	return body.CallParadigm("run_script", map[string]any{"script_path": scriptPath})
}

func resolveStepInputs(declared map[string]any, env map[string]any, fallback map[string]any) map[string]any {
	if len(declared) == 0 {
		return fallback
	}
	out := make(map[string]any, len(declared))
	for k, v := range declared {
		if ref, ok := v.(string); ok {
			if len(ref) > 1 && ref[0] == '$' {
				if resolved, ok := env[ref[1:]]; ok {
					out[k] = resolved
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}
