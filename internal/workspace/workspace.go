// Package workspace implements the per-run loop/timing scratchpad (spec.md
// §3.5, §4.4.4): loop iteration state keyed by "{loop_index}_{loop_base}",
// and timing-injected filters keyed by "__filter__{flow_index}".
package workspace

import (
	"fmt"
	"sync"

	"github.com/inferloom/inferloom/reference"
)

// FilterSpec is a timing handler's injected per-cell filter, accumulated
// with AND semantics when a parent's IR step applies multiple filters at
// the same key (spec.md §4.4.3).
type FilterSpec struct {
	TruthMask       []bool
	ConditionName   string
	SourceFlowIndex string
}

// IterationSlot holds the concept values recorded for one loop iteration.
type IterationSlot map[string]*reference.Reference

// Workspace is a free-form, mutex-guarded scratchpad shared by the looping
// and timing handlers and checkpointed alongside the Blackboard.
type Workspace struct {
	mu         sync.Mutex
	loopStore  map[string]map[int]IterationSlot // loopKey -> ordinal -> slot
	filters    map[string][]FilterSpec
	loopOrder  map[string][]int // insertion order of ordinals, per loopKey
}

// New constructs an empty Workspace.
func New() *Workspace {
	return &Workspace{
		loopStore: make(map[string]map[int]IterationSlot),
		filters:   make(map[string][]FilterSpec),
		loopOrder: make(map[string][]int),
	}
}

// LoopKey builds the "{loop_index}_{loop_base_concept}" workspace key.
func LoopKey(loopIndex int, loopBaseConcept string) string {
	return fmt.Sprintf("%d_%s", loopIndex, loopBaseConcept)
}

// FilterKey builds the "__filter__{flow_index}" workspace key.
func FilterKey(parentFlowIndex string) string {
	return "__filter__" + parentFlowIndex
}

// IterationSlots returns the ordinals recorded for loopKey, in insertion
// order (spec.md §4.4.4: "iteration order = insertion order").
func (w *Workspace) IterationSlots(loopKey string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.loopOrder[loopKey]...)
}

// GetIteration returns the slot recorded at ordinal for loopKey, if any.
func (w *Workspace) GetIteration(loopKey string, ordinal int) (IterationSlot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	slots, ok := w.loopStore[loopKey]
	if !ok {
		return nil, false
	}
	slot, ok := slots[ordinal]
	return slot, ok
}

// RecordIteration stores slot at ordinal for loopKey, appending ordinal to
// the insertion order if this is the first time it's seen. Returns true if
// this call made progress (a new ordinal, or a concept not yet present in
// an existing slot; overwriting a concept already in the slot is not
// progress), which the looping handler uses for its no-progress termination
// check (spec.md §4.4.4).
func (w *Workspace) RecordIteration(loopKey string, ordinal int, concept string, ref *reference.Reference) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	slots, ok := w.loopStore[loopKey]
	if !ok {
		slots = make(map[int]IterationSlot)
		w.loopStore[loopKey] = slots
	}
	slot, ok := slots[ordinal]
	isNewOrdinal := !ok
	if !ok {
		slot = make(IterationSlot)
		slots[ordinal] = slot
		w.loopOrder[loopKey] = append(w.loopOrder[loopKey], ordinal)
	}
	_, hadConcept := slot[concept]
	slot[concept] = ref
	return isNewOrdinal || !hadConcept
}

// AddFilter appends spec to the filters recorded at parentFlowIndex.
func (w *Workspace) AddFilter(parentFlowIndex string, spec FilterSpec) {
	key := FilterKey(parentFlowIndex)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.filters[key] = append(w.filters[key], spec)
}

// Filters returns the filters recorded at parentFlowIndex.
func (w *Workspace) Filters(parentFlowIndex string) []FilterSpec {
	key := FilterKey(parentFlowIndex)
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]FilterSpec(nil), w.filters[key]...)
}

// State is the canonical, checkpointable view of a Workspace (spec.md
// §4.5). Ordinal keys are encoded as strings since JSON object keys must be
// strings; loop-order is carried explicitly so iteration order survives a
// round-trip even though map iteration order doesn't.
type State struct {
	LoopStore map[string]map[string]IterationSlot `json:"loop_store"`
	LoopOrder map[string][]int                    `json:"loop_order"`
	Filters   map[string][]FilterSpec             `json:"filters"`
}

// ExportState produces a canonical, serializable copy of the Workspace for
// the checkpoint store.
func (w *Workspace) ExportState() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State{
		LoopStore: make(map[string]map[string]IterationSlot, len(w.loopStore)),
		LoopOrder: make(map[string][]int, len(w.loopOrder)),
		Filters:   make(map[string][]FilterSpec, len(w.filters)),
	}
	for loopKey, slots := range w.loopStore {
		out := make(map[string]IterationSlot, len(slots))
		for ordinal, slot := range slots {
			out[fmt.Sprintf("%d", ordinal)] = slot
		}
		st.LoopStore[loopKey] = out
	}
	for loopKey, order := range w.loopOrder {
		st.LoopOrder[loopKey] = append([]int(nil), order...)
	}
	for key, specs := range w.filters {
		st.Filters[key] = append([]FilterSpec(nil), specs...)
	}
	return st
}

// LoadState rebuilds a Workspace from a checkpointed State (resume/fork,
// spec.md §4.5).
func LoadState(st State) *Workspace {
	w := New()
	for loopKey, slots := range st.LoopStore {
		out := make(map[int]IterationSlot, len(slots))
		for ordinalStr, slot := range slots {
			var ordinal int
			fmt.Sscanf(ordinalStr, "%d", &ordinal)
			out[ordinal] = slot
		}
		w.loopStore[loopKey] = out
	}
	for loopKey, order := range st.LoopOrder {
		w.loopOrder[loopKey] = append([]int(nil), order...)
	}
	for key, specs := range st.Filters {
		w.filters[key] = append([]FilterSpec(nil), specs...)
	}
	return w
}

// CombinedMask ANDs together every filter recorded at parentFlowIndex,
// per-position, for use by a handler's IR step. Returns (nil, false) if no
// filters are recorded.
func (w *Workspace) CombinedMask(parentFlowIndex string) ([]bool, bool) {
	filters := w.Filters(parentFlowIndex)
	if len(filters) == 0 {
		return nil, false
	}
	out := append([]bool(nil), filters[0].TruthMask...)
	for _, f := range filters[1:] {
		for i := range out {
			if i < len(f.TruthMask) {
				out[i] = out[i] && f.TruthMask[i]
			}
		}
	}
	return out, true
}
