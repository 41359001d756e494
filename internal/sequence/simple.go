package sequence

import "github.com/inferloom/inferloom/internal/domain"

// SimpleHandler is the passthrough pipeline: IWI, IR, OR, OWI. Its output is
// the sole value concept's reference, unchanged.
type SimpleHandler struct{}

func (SimpleHandler) Run(s *States) (*Result, error) {
	iwi(s)
	if err := ir(s); err != nil {
		return nil, err
	}

	if len(s.Inference.ValueConcepts) != 1 {
		return nil, domain.NewEngineError(domain.ErrKindPlanValidation,
			"simple sequence requires exactly one value_concept", nil)
	}
	s.Output = s.Values[s.Inference.ValueConcepts[0]]

	or(s)
	owi(s)
	return &Result{States: s}, nil
}
