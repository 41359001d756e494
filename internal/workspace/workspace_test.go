package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloom/inferloom/reference"
)

func TestRecordIterationReportsProgress(t *testing.T) {
	w := New()
	key := LoopKey(0, "items")

	progressed := w.RecordIteration(key, 0, "item", reference.NewScalar("a"))
	assert.True(t, progressed)

	progressed = w.RecordIteration(key, 0, "item", reference.NewScalar("a-again"))
	assert.False(t, progressed, "overwriting an existing concept in a known slot is not progress")

	progressed = w.RecordIteration(key, 0, "item", reference.NewScalar("a-yet-again"))
	assert.False(t, progressed, "same concept in same slot a second time makes no further progress")
}

func TestIterationOrderIsInsertionOrder(t *testing.T) {
	w := New()
	key := LoopKey(0, "items")
	w.RecordIteration(key, 2, "item", reference.NewScalar("c"))
	w.RecordIteration(key, 0, "item", reference.NewScalar("a"))
	w.RecordIteration(key, 1, "item", reference.NewScalar("b"))

	assert.Equal(t, []int{2, 0, 1}, w.IterationSlots(key))
}

func TestCombinedMaskANDsFilters(t *testing.T) {
	w := New()
	w.AddFilter("1.2", FilterSpec{TruthMask: []bool{true, true, false}})
	w.AddFilter("1.2", FilterSpec{TruthMask: []bool{true, false, false}})

	mask, ok := w.CombinedMask("1.2")
	require.True(t, ok)
	assert.Equal(t, []bool{true, false, false}, mask)
}

func TestCombinedMaskAbsentReturnsFalse(t *testing.T) {
	w := New()
	_, ok := w.CombinedMask("nope")
	assert.False(t, ok)
}
