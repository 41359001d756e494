package sequence

import (
	"github.com/expr-lang/expr"

	"github.com/inferloom/inferloom/internal/blackboard"
	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/reference"
)

// ImperativeHandler implements the imperative sequence (spec.md §4.4.5):
// IWI, IR, MFP, MVP, TVA, TIP, MIA, OR, OWI.
type ImperativeHandler struct {
	Body     Body
	Registry ParadigmRegistry
	Retry    RetryPolicy
}

func (h ImperativeHandler) Run(s *States) (*Result, error) {
	iwi(s)
	if err := ir(s); err != nil {
		return nil, err
	}
	if err := h.run(s, false); err != nil {
		return nil, err
	}
	or(s)
	owi(s)
	return &Result{States: s}, nil
}

// JudgementHandler is the imperative pipeline with TIP additionally
// computing a boolean / truth mask over the result.
type JudgementHandler struct {
	Body     Body
	Registry ParadigmRegistry
	Retry    RetryPolicy
}

func (h JudgementHandler) Run(s *States) (*Result, error) {
	iwi(s)
	if err := ir(s); err != nil {
		return nil, err
	}
	handler := ImperativeHandler{Body: h.Body, Registry: h.Registry, Retry: h.Retry}
	if err := handler.run(s, true); err != nil {
		return nil, err
	}
	or(s)
	owi(s)
	return &Result{States: s}, nil
}

// run is shared between imperative and judgement: MFP, MVP, TVA, TIP, MIA.
func (h ImperativeHandler) run(s *States, isJudgement bool) error {
	paradigmID, _ := stringField(s.Syntax, "paradigm_id")

	paradigm, err := mfp(h.Registry, paradigmID)
	if err != nil {
		return err
	}

	inputs, saveTargets, err := mvp(s, h.Body)
	if err != nil {
		return err
	}

	result, err := h.callWithRetry(paradigmID, paradigm, inputs, s)
	if err != nil {
		var berr *BodyError
		if asBodyError(err, &berr) {
			s.CompletionDetail = domain.DetailError
		}
		return err
	}

	out, truthMask, passed, err := tip(s, result, isJudgement)
	if err != nil {
		return err
	}
	s.Output = out

	if isJudgement {
		if truthMask != nil {
			s.TruthMask = &blackboard.TruthMask{FilterAxis: out.Axes[0], Mask: truthMask}
			s.TimingReady = passed
			if !s.TimingReady {
				s.CompletionDetail = domain.DetailConditionNotMet
			}
		}
	}

	// MIA: confirm any side-effect outputs the paradigm indicated (file
	// writes already happened in TVA via perception save_path resolution;
	// this records them for logging/checkpointing purposes only).
	mia(s, saveTargets)

	return nil
}

func (h ImperativeHandler) callWithRetry(paradigmID string, paradigm *Paradigm, inputs map[string]any, s *States) (any, error) {
	result, err := tva(h.Body, paradigmID, paradigm, inputs)
	if err == nil {
		return result, nil
	}
	var berr *BodyError
	if !asBodyError(err, &berr) || h.Retry.MaxAttempts < 1 {
		return nil, err
	}
	if !berr.Retriable && !boolField(s.Syntax, "retriable") {
		return nil, err
	}
	// Single bounded retry (spec.md §7): "retry once if marked retriable".
	return tva(h.Body, paradigmID, paradigm, inputs)
}

func asBodyError(err error, target **BodyError) bool {
	berr, ok := err.(*BodyError)
	if ok {
		*target = berr
	}
	return ok
}

// tip (Tool Inference Perception) wraps the raw result as a Reference of the
// declared o_shape; for judgement it additionally computes a per-cell truth
// mask and the quantifier's verdict over that mask.
func tip(s *States, result any, isJudgement bool) (*reference.Reference, []bool, bool, error) {
	oShape := stringSliceField(s.Syntax, "o_shape")
	var out *reference.Reference
	if len(oShape) == 0 {
		out = reference.NewScalar(result)
	} else {
		shape := make([]int, len(oShape))
		var data any = result
		for i := range oShape {
			shape[i] = 1
			data = []any{data}
		}
		out = &reference.Reference{Axes: oShape, Shape: shape, Data: data}
	}

	if !isJudgement {
		return out, nil, false, nil
	}

	quantifier, _ := stringField(s.Syntax, "quantifier")
	assertion, _ := stringField(s.Syntax, "assertion")
	leaves := reference.GetLeaves(out)

	mask := make([]bool, len(leaves))
	for i, leaf := range leaves {
		mask[i] = evalAssertion(assertion, leaf)
	}

	passed := applyQuantifier(quantifier, mask)
	return out, mask, passed, nil
}

// evalAssertion compiles and runs a small expr-lang boolean expression
// against a single leaf, bound as `value`. A leaf that's already a bool
// (common for pre-evaluated judgement inputs) short-circuits compilation.
func evalAssertion(assertion string, leaf any) bool {
	if assertion == "" {
		if b, ok := leaf.(bool); ok {
			return b
		}
		return leaf != nil && !reference.IsSkip(leaf)
	}
	env := map[string]any{"value": leaf}
	program, err := expr.Compile(assertion, expr.Env(env))
	if err != nil {
		return false
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}

func applyQuantifier(quantifier string, mask []bool) bool {
	switch quantifier {
	case "ALL True", "":
		return allTrue(mask)
	case "ANY True":
		for _, b := range mask {
			if b {
				return true
			}
		}
		return false
	case "FOR EACH True":
		// Per-element: the mask itself is the result (downstream filter
		// propagation), so the gate always passes regardless of how many
		// elements are true.
		return true
	case "ALL False":
		for _, b := range mask {
			if b {
				return false
			}
		}
		return true
	default:
		return allTrue(mask)
	}
}

func allTrue(mask []bool) bool {
	if len(mask) == 0 {
		return false
	}
	for _, b := range mask {
		if !b {
			return false
		}
	}
	return true
}

// mia (Memory Inference Actuation) records confirmed side-effect writes on
// States for logging/checkpointing; the writes themselves already happened
// when MVP resolved %{save_path} and TVA's Body call used it.
func mia(s *States, saveTargets []string) {
	if len(saveTargets) == 0 {
		return
	}
	if s.Syntax == nil {
		s.Syntax = map[string]any{}
	}
	s.Syntax["_confirmed_writes"] = saveTargets
}
