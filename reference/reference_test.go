package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecRef(axis string, values ...any) *Reference {
	return &Reference{Axes: []string{axis}, Shape: []int{len(values)}, Data: append([]any(nil), values...)}
}

func TestNewScalar(t *testing.T) {
	r := NewScalar(42)
	require.NoError(t, r.Validate())
	assert.Equal(t, []string{NoneAxis}, r.Axes)
	assert.Equal(t, []any{42}, r.Data)
}

func TestValidateDetectsDuplicateAxis(t *testing.T) {
	r := &Reference{Axes: []string{"x", "x"}, Shape: []int{1, 1}, Data: []any{[]any{1}}}
	err := r.Validate()
	require.Error(t, err)
	var ae *AlgebraError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AxisDuplicate, ae.Kind)
}

func TestValidateDetectsShapeMismatch(t *testing.T) {
	r := &Reference{Axes: []string{"x"}, Shape: []int{2}, Data: []any{1}}
	err := r.Validate()
	require.Error(t, err)
	var ae *AlgebraError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ShapeMismatch, ae.Kind)
}

func TestCloneIsIndependent(t *testing.T) {
	r := vecRef("x", 1, 2, 3)
	c := r.Clone()
	c.Data.([]any)[0] = 99
	assert.Equal(t, 1, r.Data.([]any)[0])
}

func TestSliceRemovesAxis(t *testing.T) {
	r := &Reference{
		Axes:  []string{"x", "y"},
		Shape: []int{2, 3},
		Data: []any{
			[]any{"a0", "a1", "a2"},
			[]any{"b0", "b1", "b2"},
		},
	}
	out, err := Slice(r, "x", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, out.Axes)
	assert.Equal(t, []int{3}, out.Shape)
	assert.Equal(t, []any{"b0", "b1", "b2"}, out.Data)
}

func TestSliceUnknownAxis(t *testing.T) {
	r := vecRef("x", 1, 2)
	_, err := Slice(r, "z", 0)
	require.Error(t, err)
	var ae *AlgebraError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AxisUnknown, ae.Kind)
}

func TestProjectRequiresSingletonOnDroppedAxes(t *testing.T) {
	r := &Reference{
		Axes:  []string{"x", "y"},
		Shape: []int{2, 1},
		Data: []any{
			[]any{"a"},
			[]any{"b"},
		},
	}
	out, err := Project(r, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out.Axes)
	assert.Equal(t, []any{"a", "b"}, out.Data)

	r2 := &Reference{
		Axes:  []string{"x", "y"},
		Shape: []int{2, 2},
		Data: []any{
			[]any{"a0", "a1"},
			[]any{"b0", "b1"},
		},
	}
	_, err = Project(r2, []string{"x"})
	require.Error(t, err)
}

func TestCollapseOverAllAxesYieldsSingletonScalar(t *testing.T) {
	r := &Reference{
		Axes:  []string{"x", "y"},
		Shape: []int{2, 2},
		Data: []any{
			[]any{1, 2},
			[]any{3, 4},
		},
	}
	out, err := Collapse(r, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{NoneAxis}, out.Axes)
	assert.Equal(t, []int{1}, out.Shape)
	assert.Equal(t, []any{[]any{1, 2, 3, 4}}, out.Data)
}

func TestCollapsePartial(t *testing.T) {
	r := &Reference{
		Axes:  []string{"x", "y"},
		Shape: []int{2, 2},
		Data: []any{
			[]any{1, 2},
			[]any{3, 4},
		},
	}
	out, err := Collapse(r, []string{"y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out.Axes)
	assert.Equal(t, []any{[]any{1, 2}, []any{3, 4}}, out.Data)
}

func TestAnnotateRequiresMatchingLength(t *testing.T) {
	r := &Reference{Axes: []string{"x"}, Shape: []int{1}, Data: []any{[]any{1, 2}}}
	out, err := Annotate(r, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out.Data.([]any)[0])

	_, err = Annotate(r, []string{"a"})
	require.Error(t, err)
	var ae *AlgebraError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ShapeMismatch, ae.Kind)
}

func TestFlattenLeavesFlattensNestedLists(t *testing.T) {
	r := vecRef("x", []any{1, 2}, []any{3, []any{4, 5}})
	out := FlattenLeaves(r)
	assert.Equal(t, []any{1, 2}, out.Data.([]any)[0])
	assert.Equal(t, []any{3, 4, 5}, out.Data.([]any)[1])
}

func TestApplyTruthMaskReplacesWithSkip(t *testing.T) {
	r := vecRef("x", "a", "b", "c")
	out, err := ApplyTruthMask(r, []bool{true, false, true}, "x")
	require.NoError(t, err)
	assert.Equal(t, "a", out.Data.([]any)[0])
	assert.True(t, IsSkip(out.Data.([]any)[1]))
	assert.Equal(t, "c", out.Data.([]any)[2])
}

func TestConcatStacksAlongNewAxis(t *testing.T) {
	r1 := vecRef("x", 1, 2)
	r2 := vecRef("x", 3, 4)
	out, err := Concat([]*Reference{r1, r2}, "batch", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch", "x"}, out.Axes)
	assert.Equal(t, []int{2, 2}, out.Shape)
}

func TestConcatSingleElementShape(t *testing.T) {
	r1 := vecRef("x", 1, 2)
	out, err := Concat([]*Reference{r1}, "batch", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out.Shape)
}

func TestGetLeavesExcludesSkip(t *testing.T) {
	r := vecRef("x", "a", Skip, "c")
	assert.Equal(t, []any{"a", "c"}, GetLeaves(r))
}

func TestCrossProductEmptySharedAxesIsCartesian(t *testing.T) {
	r1 := vecRef("x", "a", "b")
	r2 := &Reference{Axes: []string{"y"}, Shape: []int{2}, Data: []any{"p", "q"}}
	out, err := CrossProduct([]*Reference{r1, r2}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, out.Axes)
	assert.Equal(t, 4, out.cellCount())
}

func TestCrossProductSharedAxisSizeMismatch(t *testing.T) {
	r1 := vecRef("x", "a", "b")
	r2 := vecRef("x", "p", "q", "r")
	_, err := CrossProduct([]*Reference{r1, r2}, []string{"x"})
	require.Error(t, err)
}

func TestEmptyCollectionShapeIsZero(t *testing.T) {
	r := &Reference{Axes: []string{"x"}, Shape: []int{0}, Data: []any{}}
	require.NoError(t, r.Validate())
	assert.Equal(t, 0, r.cellCount())
	assert.Empty(t, GetLeaves(r))
}
