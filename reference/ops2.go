package reference

// unionAxes merges axis lists from multiple refs, preserving first-occurrence
// order across inputs, per spec.md §4.1's documented tie-break.
func unionAxes(axisLists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, axes := range axisLists {
		for _, a := range axes {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// CrossProduct combines refs into a reference whose axes are the union of
// all inputs' axes (first-occurrence order); axes with distinct names become
// independent dimensions. Axes that share a name across inputs always form
// a single aligned dimension, whether or not they are listed in sharedAxes;
// sharedAxes only adds a check that every input has the axis with equal
// size. With empty sharedAxes and distinct axis names the result is the
// full Cartesian product.
func CrossProduct(refs []*Reference, sharedAxes []string) (*Reference, error) {
	if len(refs) == 0 {
		return nil, newShapeMismatch("cross_product requires at least one reference")
	}
	for _, axis := range sharedAxes {
		for _, r := range refs {
			if !r.HasAxis(axis) {
				return nil, newAxisUnknown(axis)
			}
		}
		sz := -1
		for _, r := range refs {
			s := r.Shape[r.axisIndex(axis)]
			if sz == -1 {
				sz = s
			} else if s != sz {
				return nil, newShapeMismatch("shared axis " + axis + " size mismatch across inputs")
			}
		}
	}

	axisLists := make([][]string, len(refs))
	for i, r := range refs {
		axisLists[i] = r.Axes
	}
	outAxes := unionAxes(axisLists...)

	outShape := make([]int, len(outAxes))
	// axisOwner[a] = index of the first ref that declares axis a (used to
	// pull the size and to index that ref's data for that axis).
	axisOwner := make(map[string]int, len(outAxes))
	for _, r := range refs {
		for _, a := range r.Axes {
			if _, ok := axisOwner[a]; !ok {
				axisOwner[a] = refIndexOf(refs, r)
			}
		}
	}
	for i, a := range outAxes {
		owner := axisOwner[a]
		outShape[i] = refs[owner].Shape[refs[owner].axisIndex(a)]
	}

	isShared := make(map[string]struct{}, len(sharedAxes))
	for _, a := range sharedAxes {
		isShared[a] = struct{}{}
	}

	data := buildCrossProduct(refs, outAxes, outShape, isShared, make([]int, len(outAxes)), 0)

	return &Reference{
		Axes:        outAxes,
		Shape:       outShape,
		Data:        data,
		ElementType: refs[0].ElementType,
	}, nil
}

func refIndexOf(refs []*Reference, target *Reference) int {
	for i, r := range refs {
		if r == target {
			return i
		}
	}
	return 0
}

// buildCrossProduct walks the output shape building a nested tree whose leaf
// at each output index tuple is a tuple (list) of each input ref's leaf at
// the corresponding (projected) index.
func buildCrossProduct(refs []*Reference, outAxes []string, outShape []int, isShared map[string]struct{}, outIdx []int, depth int) any {
	if depth == len(outShape) {
		leaf := make([]any, len(refs))
		for i, r := range refs {
			idx := make([]int, len(r.Axes))
			for j, a := range r.Axes {
				pos := indexOfAxis(outAxes, a)
				idx[j] = outIdx[pos]
			}
			leaf[i] = indexInto(r.Data, idx)
		}
		if len(leaf) == 1 {
			return leaf[0]
		}
		return leaf
	}
	n := outShape[depth]
	out := make([]any, n)
	for i := 0; i < n; i++ {
		outIdx[depth] = i
		out[i] = buildCrossProduct(refs, outAxes, outShape, isShared, outIdx, depth+1)
	}
	return out
}

func indexOfAxis(axes []string, axis string) int {
	for i, a := range axes {
		if a == axis {
			return i
		}
	}
	return -1
}

// Collapse flattens axesToRemove, yielding leaves as lists in insertion
// order. Collapsing every axis yields a singleton scalar reference.
func Collapse(ref *Reference, axesToRemove []string) (*Reference, error) {
	removeSet := make(map[string]struct{}, len(axesToRemove))
	for _, a := range axesToRemove {
		if !ref.HasAxis(a) {
			return nil, newAxisUnknown(a)
		}
		removeSet[a] = struct{}{}
	}
	if len(removeSet) == len(ref.Axes) {
		leaves := GetLeavesIncludingSkip(ref)
		return &Reference{
			Axes:        []string{NoneAxis},
			Shape:       []int{1},
			Data:        []any{leaves},
			ElementType: ref.ElementType,
		}, nil
	}

	var keepAxes []string
	for _, a := range ref.Axes {
		if _, rm := removeSet[a]; !rm {
			keepAxes = append(keepAxes, a)
		}
	}
	var removeOrder []string
	for _, a := range ref.Axes {
		if _, rm := removeSet[a]; rm {
			removeOrder = append(removeOrder, a)
		}
	}

	order := append(append([]string(nil), keepAxes...), removeOrder...)
	reordered, err := reorderAxes(ref, order)
	if err != nil {
		return nil, err
	}

	keepShape := reordered.Shape[:len(keepAxes)]
	data := buildCollapse(reordered.Data, keepShape, len(removeOrder))

	return &Reference{
		Axes:        keepAxes,
		Shape:       keepShape,
		Data:        data,
		ElementType: reordered.ElementType,
	}, nil
}

func buildCollapse(data any, keepShape []int, tailDims int) any {
	if len(keepShape) == 0 {
		return collectLeaves(data, tailDims)
	}
	slice := data.([]any)
	out := make([]any, len(slice))
	for i, v := range slice {
		out[i] = buildCollapse(v, keepShape[1:], tailDims)
	}
	return out
}

// collectLeaves linearises the remaining tailDims nested levels into a flat
// []any list, in insertion (row-major) order.
func collectLeaves(data any, tailDims int) []any {
	if tailDims == 0 {
		return []any{data}
	}
	slice, ok := data.([]any)
	if !ok {
		return []any{data}
	}
	var out []any
	for _, v := range slice {
		out = append(out, collectLeaves(v, tailDims-1)...)
	}
	return out
}

// Annotate transforms each leaf list into a mapping {name[i]: leaf[i]}. Every
// leaf list must have the same length as names, or the op fails ShapeMismatch.
func Annotate(ref *Reference, names []string) (*Reference, error) {
	data, err := annotateData(ref.Data, len(ref.Axes), names)
	if err != nil {
		return nil, err
	}
	return &Reference{
		Axes:        append([]string(nil), ref.Axes...),
		Shape:       append([]int(nil), ref.Shape...),
		Data:        data,
		ElementType: HintDict,
	}, nil
}

func annotateData(data any, depth int, names []string) (any, error) {
	if depth == 0 {
		leaves, ok := data.([]any)
		if !ok {
			return nil, newShapeMismatch("annotate requires leaf lists")
		}
		if len(leaves) != len(names) {
			return nil, newShapeMismatch("leaf list length does not match names length")
		}
		m := make(map[string]any, len(names))
		for i, n := range names {
			m[n] = leaves[i]
		}
		return m, nil
	}
	slice := data.([]any)
	out := make([]any, len(slice))
	for i, v := range slice {
		annotated, err := annotateData(v, depth-1, names)
		if err != nil {
			return nil, err
		}
		out[i] = annotated
	}
	return out, nil
}

// FlattenLeaves recursively flattens list-of-lists leaves into flat lists.
func FlattenLeaves(ref *Reference) *Reference {
	out := ref.Clone()
	out.Data = flattenData(out.Data, len(out.Axes))
	return out
}

func flattenData(data any, depth int) any {
	if depth == 0 {
		if nested, ok := data.([]any); ok {
			return flattenNested(nested)
		}
		return data
	}
	slice := data.([]any)
	out := make([]any, len(slice))
	for i, v := range slice {
		out[i] = flattenData(v, depth-1)
	}
	return out
}

func flattenNested(v []any) []any {
	var out []any
	for _, item := range v {
		if nested, ok := item.([]any); ok {
			out = append(out, flattenNested(nested)...)
		} else {
			out = append(out, item)
		}
	}
	return out
}

// ApplyTruthMask replaces every cell along filterAxis with Skip where mask is
// false; other axes are untouched. mask must have length equal to filterAxis's
// size, indexed positionally.
func ApplyTruthMask(ref *Reference, mask []bool, filterAxis string) (*Reference, error) {
	pos := ref.axisIndex(filterAxis)
	if pos < 0 {
		return nil, newAxisUnknown(filterAxis)
	}
	if len(mask) != ref.Shape[pos] {
		return nil, newShapeMismatch("mask length does not match filter axis size")
	}
	out := ref.Clone()
	out.Data = applyMask(out.Data, pos, mask)
	return out, nil
}

func applyMask(data any, pos int, mask []bool) any {
	slice := data.([]any)
	if pos == 0 {
		out := make([]any, len(slice))
		for i, v := range slice {
			if mask[i] {
				out[i] = v
			} else {
				out[i] = maskWhole(v)
			}
		}
		return out
	}
	out := make([]any, len(slice))
	for i, v := range slice {
		out[i] = applyMask(v, pos-1, mask)
	}
	return out
}

// maskWhole replaces every leaf under a masked-out subtree with Skip.
func maskWhole(data any) any {
	slice, ok := data.([]any)
	if !ok {
		return Skip
	}
	out := make([]any, len(slice))
	for i, v := range slice {
		out[i] = maskWhole(v)
	}
	return out
}

// Concat stacks refs along a new axis named createAxis, optionally annotating
// each ref's slice with a name drawn from names (len(names) == len(refs)).
func Concat(refs []*Reference, createAxis string, names []string) (*Reference, error) {
	if len(refs) == 0 {
		return nil, newShapeMismatch("concat requires at least one reference")
	}
	base := refs[0]
	for _, r := range refs[1:] {
		if len(r.Axes) != len(base.Axes) {
			return nil, newShapeMismatch("concat inputs have differing axis counts")
		}
		for i, a := range base.Axes {
			if r.Axes[i] != a || r.Shape[i] != base.Shape[i] {
				return nil, newShapeMismatch("concat inputs have differing shapes")
			}
		}
	}
	if names != nil && len(names) != len(refs) {
		return nil, newShapeMismatch("concat names length does not match refs length")
	}

	data := make([]any, len(refs))
	for i, r := range refs {
		leaf := cloneData(r.Data, len(r.Axes))
		if names != nil {
			data[i] = map[string]any{"name": names[i], "value": leaf}
		} else {
			data[i] = leaf
		}
	}

	return &Reference{
		Axes:        append([]string{createAxis}, base.Axes...),
		Shape:       append([]int{len(refs)}, base.Shape...),
		Data:        data,
		ElementType: base.ElementType,
	}, nil
}

// GetLeaves linearises leaf extraction in row-major order, excluding Skip.
func GetLeaves(ref *Reference) []any {
	all := GetLeavesIncludingSkip(ref)
	out := make([]any, 0, len(all))
	for _, v := range all {
		if !IsSkip(v) {
			out = append(out, v)
		}
	}
	return out
}

// GetLeavesIncludingSkip is GetLeaves without filtering Skip; used internally
// by Collapse-over-all-axes, which must preserve positional skips.
func GetLeavesIncludingSkip(ref *Reference) []any {
	return collectLeaves(ref.Data, len(ref.Axes))
}
