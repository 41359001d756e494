package sequence

import (
	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/reference"
)

// GroupingHandler implements &in / &across (spec.md §4.4.1): IWI, IR, GR,
// OR, OWI. GR produces one output reference by combining the handler's
// input references per syntax.marker.
type GroupingHandler struct{}

func (GroupingHandler) Run(s *States) (*Result, error) {
	iwi(s)
	if err := ir(s); err != nil {
		return nil, err
	}
	if err := gr(s); err != nil {
		return nil, err
	}
	or(s)
	owi(s)
	return &Result{States: s}, nil
}

// gr dispatches on syntax.marker ("in" or "across") and performs the
// collapse/annotate/concat discipline documented in spec.md §4.4.1.
func gr(s *States) error {
	marker, _ := stringField(s.Syntax, "marker")
	byAxes := byAxesPerRef(s.Syntax, len(s.Inference.ValueConcepts))
	protectAxes := stringSliceField(s.Syntax, "protect_axes")
	createAxis, hasCreateAxis := stringField(s.Syntax, "create_axis")

	protectSet := make(map[string]struct{}, len(protectAxes))
	for _, a := range protectAxes {
		protectSet[a] = struct{}{}
	}

	collapsed := make([]*reference.Reference, 0, len(s.Inference.ValueConcepts))
	collapsedNames := make([]string, 0, len(s.Inference.ValueConcepts))
	for i, name := range s.Inference.ValueConcepts {
		ref := s.Values[name]
		if ref == nil {
			continue
		}
		axesToCollapse := filterProtected(byAxes[i], protectSet)
		var out *reference.Reference
		var err error
		if len(axesToCollapse) == 0 {
			out = ref
		} else {
			out, err = reference.Collapse(ref, axesToCollapse)
			if err != nil {
				return err
			}
		}
		collapsed = append(collapsed, out)
		collapsedNames = append(collapsedNames, name)
	}

	switch marker {
	case "in":
		// Labeled mode: combine the collapsed inputs, then annotate each
		// resulting leaf with the input concept names it was assembled from
		// (spec.md §4.4.1 "annotate each leaf with the input's concept
		// name"). Concat's own names parameter labels per-ref on the way in;
		// CrossProduct has no such parameter, so its combined per-cell
		// tuples are labeled afterward via Annotate(out, collapsedNames).
		if hasCreateAxis && createAxis != "" {
			out, err := reference.Concat(collapsed, createAxis, collapsedNames)
			if err != nil {
				return err
			}
			s.Output = out
			return nil
		}
		out, err := reference.CrossProduct(collapsed, nil)
		if err != nil {
			return err
		}
		if len(collapsedNames) > 1 {
			if annotated, aerr := reference.Annotate(out, collapsedNames); aerr == nil {
				out = annotated
			}
			// A single-ref cross product's leaf isn't an N-tuple to label
			// per name (Annotate fails ShapeMismatch); leave it unlabeled.
		}
		s.Output = out
		return nil

	case "across":
		if hasCreateAxis && createAxis != "" {
			out, err := reference.Concat(collapsed, createAxis, nil)
			if err != nil {
				return err
			}
			s.Output = out
			return nil
		}
		if raw, ok := s.Syntax["by_axes"]; ok {
			if _, flat := asStringSlice(raw); !flat {
				return domain.NewEngineError(domain.ErrKindMissingCreateAxis, "grouping &across with per-ref by_axes requires create_axis", nil)
			}
		}
		if len(collapsed) == 0 {
			return domain.NewEngineError(domain.ErrKindMissingCreateAxis, "grouping &across with no inputs and no create_axis", nil)
		}
		// No create_axis: flatten every collapsed ref's leaves into one
		// list (spec.md §4.4.1: "otherwise leaves are flattened into a
		// single list").
		var leaves []any
		for _, ref := range collapsed {
			leaves = append(leaves, reference.GetLeaves(ref)...)
		}
		s.Output = &reference.Reference{
			Axes:  []string{reference.NoneAxis},
			Shape: []int{1},
			Data:  []any{leaves},
		}
		return nil

	default:
		return domain.NewEngineError(domain.ErrKindPlanValidation, "grouping sequence missing or unknown syntax.marker", nil)
	}
}

// byAxesPerRef normalizes working_interpretation.by_axes, which may be
// encoded either as a flat []string (applied identically to every ref) or
// as [][]string (per-ref). On a per-ref list whose length doesn't match n,
// the first entry is broadcast to every ref; no warning is emitted for the
// mismatch.
func byAxesPerRef(syntax map[string]any, n int) [][]string {
	raw, ok := syntax["by_axes"]
	if !ok {
		return make([][]string, n)
	}

	if flat, ok := asStringSlice(raw); ok {
		out := make([][]string, n)
		for i := range out {
			out[i] = flat
		}
		return out
	}

	if nested, ok := raw.([]any); ok {
		perRef := make([][]string, 0, len(nested))
		for _, item := range nested {
			if s, ok := asStringSlice(item); ok {
				perRef = append(perRef, s)
			} else {
				perRef = append(perRef, nil)
			}
		}
		if len(perRef) == n {
			return perRef
		}
		// Dual-encoding fallback (spec.md §9 Open Question 1): length
		// mismatch broadcasts the first entry to every ref rather than
		// dropping axes silently.
		out := make([][]string, n)
		var first []string
		if len(perRef) > 0 {
			first = perRef[0]
		}
		for i := range out {
			out[i] = first
		}
		return out
	}

	return make([][]string, n)
}

func asStringSlice(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func stringSliceField(syntax map[string]any, key string) []string {
	raw, ok := syntax[key]
	if !ok {
		return nil
	}
	s, _ := asStringSlice(raw)
	return s
}

func filterProtected(axes []string, protect map[string]struct{}) []string {
	if len(protect) == 0 {
		return axes
	}
	var out []string
	for _, a := range axes {
		if _, protected := protect[a]; !protected {
			out = append(out, a)
		}
	}
	return out
}
