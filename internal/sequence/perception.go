package sequence

import (
	"fmt"
	"strings"

	"github.com/inferloom/inferloom/reference"
)

// perceptionWrapper recognizes one of the %{...}(...) MVP wrapper forms
// documented in spec.md §4.4.5.
type perceptionWrapper struct {
	Kind string // file_location, prompt_location, script_location, memorized_parameter, save_path
	Arg  string
}

func parsePerceptionWrapper(s string) (perceptionWrapper, bool) {
	for _, kind := range []string{"file_location", "prompt_location", "script_location", "memorized_parameter", "save_path"} {
		prefix := "%{" + kind + "}("
		if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, ")") {
			arg := s[len(prefix) : len(s)-1]
			return perceptionWrapper{Kind: kind, Arg: arg}, true
		}
	}
	return perceptionWrapper{}, false
}

// resolvePerception applies a wrapper's side-effecting read against body,
// returning the value to bind as the input, plus whether this input should
// instead be recorded as a pending write target (save_path) for MIA.
func resolvePerception(body Body, w perceptionWrapper) (value any, isWriteTarget bool, err error) {
	switch w.Kind {
	case "file_location":
		content, err := body.ReadFile(w.Arg)
		return content, false, err
	case "prompt_location":
		content, err := body.ReadFile(w.Arg)
		return content, false, err
	case "script_location":
		content, err := body.ReadFile(w.Arg)
		if err != nil {
			// Absent script: MVP returns the path itself; TVA/script-backed
			// generation (spec.md §4.4.6) is responsible for creating it.
			return w.Arg, false, nil
		}
		return content, false, nil
	case "memorized_parameter":
		val, err := body.ReadMemorized(w.Arg)
		return val, false, err
	case "save_path":
		return w.Arg, true, nil
	default:
		return nil, false, fmt.Errorf("unknown perception wrapper %q", w.Kind)
	}
}

// mvp (Memory Value Perception) gathers inputs for an imperative/judgement
// inference: resolves value_order (positional binding) and value_selectors
// (structured extraction, with optional unpack), then resolves perception
// wrappers on every string-typed input.
func mvp(s *States, body Body) (map[string]any, []string, error) {
	order := stringSliceField(s.Syntax, "value_order")
	selectors := mapField(s.Syntax, "value_selectors")

	inputs := make(map[string]any)
	var saveTargets []string

	names := s.Inference.ValueConcepts
	if len(order) > 0 {
		names = order
	}

	for i, name := range names {
		ref, ok := s.Values[name]
		if !ok {
			continue
		}
		var value any = ref
		if sel, ok := selectors[name]; ok {
			selStr, _ := sel.(string)
			extracted, unpack, err := applySelector(ref, selStr)
			if err != nil {
				return nil, nil, err
			}
			if unpack {
				if items, ok := extracted.([]any); ok {
					for j, item := range items {
						inputs[fmt.Sprintf("%s_%d", name, j+1)] = item
					}
					continue
				}
			}
			value = extracted
		} else {
			value = reference.GetLeaves(ref)
			if leaves, ok := value.([]any); ok && len(leaves) == 1 {
				value = leaves[0]
			}
		}

		if strVal, ok := value.(string); ok {
			if wrapper, matched := parsePerceptionWrapper(strVal); matched {
				resolved, isWrite, err := resolvePerception(body, wrapper)
				if err != nil {
					return nil, nil, err
				}
				if isWrite {
					saveTargets = append(saveTargets, resolved.(string))
					continue
				}
				value = resolved
			}
		}

		key := fmt.Sprintf("input_%d", i+1)
		inputs[key] = value
		inputs[name] = value
	}

	return inputs, saveTargets, nil
}

// applySelector extracts "[index].key" (or bare "key") from a structured
// reference, per spec.md §4.4.5. unpack reports whether the caller should
// spread a list result into multiple positional inputs.
func applySelector(ref *reference.Reference, selector string) (any, bool, error) {
	unpack := strings.HasPrefix(selector, "unpack:")
	selector = strings.TrimPrefix(selector, "unpack:")

	leaves := reference.GetLeaves(ref)
	if strings.HasPrefix(selector, "[") {
		end := strings.Index(selector, "]")
		if end < 0 {
			return nil, false, fmt.Errorf("malformed selector %q", selector)
		}
		var idx int
		fmt.Sscanf(selector[1:end], "%d", &idx)
		rest := strings.TrimPrefix(selector[end+1:], ".")
		if idx < 0 || idx >= len(leaves) {
			return nil, false, fmt.Errorf("selector index %d out of range", idx)
		}
		leaf := leaves[idx]
		if rest == "" {
			return leaf, unpack, nil
		}
		m, ok := leaf.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("selector %q expects a dict leaf", selector)
		}
		return m[rest], unpack, nil
	}

	if selector == "" {
		return leaves, unpack, nil
	}
	var out []any
	for _, leaf := range leaves {
		if m, ok := leaf.(map[string]any); ok {
			out = append(out, m[selector])
		}
	}
	if len(out) == 1 {
		return out[0], unpack, nil
	}
	return out, unpack, nil
}

func mapField(syntax map[string]any, key string) map[string]any {
	raw, ok := syntax[key]
	if !ok {
		return nil
	}
	m, _ := raw.(map[string]any)
	return m
}
