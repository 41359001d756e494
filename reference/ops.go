package reference

// Slice fixes axis at index and removes it from the result, per spec.md §4.1.
func Slice(ref *Reference, axis string, index int) (*Reference, error) {
	pos := ref.axisIndex(axis)
	if pos < 0 {
		return nil, newAxisUnknown(axis)
	}
	if index < 0 || index >= ref.Shape[pos] {
		return nil, newShapeMismatch("slice index out of range")
	}

	out := &Reference{
		Axes:        removeAt(ref.Axes, pos),
		Shape:       removeIntAt(ref.Shape, pos),
		ElementType: ref.ElementType,
	}
	out.Data = sliceData(ref.Data, pos, index)
	return out, nil
}

// sliceData walks the nested tree, fixing the dimension at depth pos to index.
func sliceData(data any, pos, index int) any {
	if pos == 0 {
		slice := data.([]any)
		return cloneData(slice[index], dataDepth(slice[index]))
	}
	slice := data.([]any)
	out := make([]any, len(slice))
	for i, v := range slice {
		out[i] = sliceData(v, pos-1, index)
	}
	return out
}

// dataDepth infers nesting depth of an already-built subtree (used by
// sliceData to clone a sub-element whose depth isn't separately tracked).
func dataDepth(data any) int {
	slice, ok := data.([]any)
	if !ok {
		return 0
	}
	if len(slice) == 0 {
		return 1
	}
	return 1 + dataDepth(slice[0])
}

// Project retains only axisSubset; every other axis must have size 1.
func Project(ref *Reference, axisSubset []string) (*Reference, error) {
	keep := make(map[string]struct{}, len(axisSubset))
	for _, a := range axisSubset {
		if ref.axisIndex(a) < 0 {
			return nil, newAxisUnknown(a)
		}
		keep[a] = struct{}{}
	}

	result := ref.Clone()
	// Slice away every axis not in axisSubset, from the last index backward
	// so positions of not-yet-removed axes stay valid.
	for i := len(result.Axes) - 1; i >= 0; i-- {
		axis := result.Axes[i]
		if _, ok := keep[axis]; ok {
			continue
		}
		if result.Shape[i] != 1 {
			return nil, newShapeMismatch("axis " + axis + " is not singleton, cannot project away")
		}
		sliced, err := Slice(result, axis, 0)
		if err != nil {
			return nil, err
		}
		result = sliced
	}

	// Reorder to match the order requested in axisSubset.
	return reorderAxes(result, axisSubset)
}

func reorderAxes(ref *Reference, order []string) (*Reference, error) {
	if len(order) != len(ref.Axes) {
		return nil, newShapeMismatch("reorder length mismatch")
	}
	perm := make([]int, len(order))
	for i, a := range order {
		pos := ref.axisIndex(a)
		if pos < 0 {
			return nil, newAxisUnknown(a)
		}
		perm[i] = pos
	}
	newShape := make([]int, len(order))
	for i, p := range perm {
		newShape[i] = ref.Shape[p]
	}
	return &Reference{
		Axes:        append([]string(nil), order...),
		Shape:       newShape,
		Data:        permuteData(ref.Data, ref.Shape, perm),
		ElementType: ref.ElementType,
	}, nil
}

// permuteData rebuilds the nested tree under a new axis order described by
// perm (perm[i] = original axis index now at position i). New axis i ranges
// over origShape[perm[i]]; the leaf at new-index tuple n is the leaf at
// original-index tuple origIdx where origIdx[perm[i]] = n[i] for every i.
func permuteData(data any, origShape []int, perm []int) any {
	if len(perm) == 0 {
		return data
	}
	newShape := make([]int, len(perm))
	for i, p := range perm {
		newShape[i] = origShape[p]
	}
	return buildPermuted(data, origShape, perm, newShape, make([]int, len(origShape)), 0)
}

// buildPermuted recurses over the NEW shape's dimensions (depth = new axis
// index), accumulating the corresponding original-index tuple in origIdx.
func buildPermuted(data any, origShape, perm, newShape, origIdx []int, depth int) any {
	if depth == len(newShape) {
		return indexInto(data, origIdx)
	}
	n := newShape[depth]
	out := make([]any, n)
	for i := 0; i < n; i++ {
		origIdx[perm[depth]] = i
		out[i] = buildPermuted(data, origShape, perm, newShape, origIdx, depth+1)
	}
	return out
}

func indexInto(data any, origIdx []int) any {
	cur := data
	for _, i := range origIdx {
		cur = cur.([]any)[i]
	}
	return cloneData(cur, 0)
}

func removeAt(s []string, pos int) []string {
	out := make([]string, 0, len(s)-1)
	out = append(out, s[:pos]...)
	out = append(out, s[pos+1:]...)
	return out
}

func removeIntAt(s []int, pos int) []int {
	out := make([]int, 0, len(s)-1)
	out = append(out, s[:pos]...)
	out = append(out, s[pos+1:]...)
	return out
}
