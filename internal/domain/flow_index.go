package domain

import (
	"strconv"
	"strings"
)

// FlowIndex is a parsed dot-delimited hierarchical address (e.g. "1.2.3"),
// cached as its numeric components since it is compared on every waitlist
// scan (spec.md §4.2).
type FlowIndex struct {
	raw        string
	components []int
}

// ParseFlowIndex parses a dot-delimited string into a FlowIndex.
func ParseFlowIndex(s string) FlowIndex {
	parts := strings.Split(s, ".")
	comps := make([]int, len(parts))
	for i, p := range parts {
		n, _ := strconv.Atoi(p)
		comps[i] = n
	}
	return FlowIndex{raw: s, components: comps}
}

// String returns the original dot-delimited representation.
func (f FlowIndex) String() string { return f.raw }

// Depth is the number of dot-delimited components.
func (f FlowIndex) Depth() int { return len(f.components) }

// IsChildOf reports whether f is a direct child of parent (one component
// longer, sharing parent's prefix).
func (f FlowIndex) IsChildOf(parent FlowIndex) bool {
	if len(f.components) != len(parent.components)+1 {
		return false
	}
	return f.hasPrefix(parent)
}

// IsDescendantOf reports whether f is nested anywhere under parent.
func (f FlowIndex) IsDescendantOf(parent FlowIndex) bool {
	if len(f.components) <= len(parent.components) {
		return false
	}
	return f.hasPrefix(parent)
}

func (f FlowIndex) hasPrefix(parent FlowIndex) bool {
	for i, c := range parent.components {
		if f.components[i] != c {
			return false
		}
	}
	return true
}

// Parent returns the FlowIndex one level up, or (zero, false) for a
// top-level (single-component) index.
func (f FlowIndex) Parent() (FlowIndex, bool) {
	if len(f.components) <= 1 {
		return FlowIndex{}, false
	}
	parts := strings.Split(f.raw, ".")
	parentRaw := strings.Join(parts[:len(parts)-1], ".")
	return ParseFlowIndex(parentRaw), true
}

// Compare orders two flow indices by numeric component comparison, shortest
// (shallower/ancestor) sorting after same-prefix deeper entries so that
// scheduling order is leaves-before-ancestors, depth-first, matching
// spec.md §3.3/§4.2 ("leaves earliest", "deepest-first tie-break").
func (f FlowIndex) Compare(other FlowIndex) int {
	n := len(f.components)
	if len(other.components) < n {
		n = len(other.components)
	}
	for i := 0; i < n; i++ {
		if f.components[i] != other.components[i] {
			if f.components[i] < other.components[i] {
				return -1
			}
			return 1
		}
	}
	// Equal on the shared prefix: the longer (deeper) one sorts first.
	if len(f.components) == len(other.components) {
		return 0
	}
	if len(f.components) > len(other.components) {
		return -1
	}
	return 1
}

// Less reports f.Compare(other) < 0, for use with sort.Slice.
func (f FlowIndex) Less(other FlowIndex) bool { return f.Compare(other) < 0 }

// Equal reports whether two flow indices denote the same address.
func (f FlowIndex) Equal(other FlowIndex) bool { return f.raw == other.raw }
