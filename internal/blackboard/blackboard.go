// Package blackboard implements the per-run shared mutable state tracker
// (spec.md §4.3): concept/inference statuses and values, truth masks, and
// the identity-alias union-find. A single writer (the orchestrator loop)
// mutates it; sequence handlers read a snapshot view (see Snapshot).
package blackboard

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/inferloom/inferloom/internal/domain"
	"github.com/inferloom/inferloom/reference"
)

// TruthMask is a named boolean reference recording which cells of a
// judgement's subject passed its assertion.
type TruthMask struct {
	FilterAxis string
	Mask       []bool
}

// Blackboard is the single source of truth for scheduling readiness.
// Concept/inference status and value maps are backed by xsync's lock-free
// concurrent map, matching the teacher's use of xsync for its hot in-memory
// lookup paths; the alias union-find and truth-mask table mutate as a unit
// and so are guarded by a plain RWMutex instead.
type Blackboard struct {
	conceptStatus    *xsync.MapOf[string, domain.ConceptStatus]
	conceptValue     *xsync.MapOf[string, *reference.Reference]
	inferenceStatus  *xsync.MapOf[string, domain.InferenceStatus]
	completionDetail *xsync.MapOf[string, domain.CompletionDetail]

	mu         sync.RWMutex
	truthMasks map[string]TruthMask
	alias      *unionFind
}

// New constructs an empty Blackboard.
func New() *Blackboard {
	return &Blackboard{
		conceptStatus:    xsync.NewMapOf[string, domain.ConceptStatus](),
		conceptValue:     xsync.NewMapOf[string, *reference.Reference](),
		inferenceStatus:  xsync.NewMapOf[string, domain.InferenceStatus](),
		completionDetail: xsync.NewMapOf[string, domain.CompletionDetail](),
		truthMasks:       make(map[string]TruthMask),
		alias:            newUnionFind(),
	}
}

// StatusOfConcept returns the concept's status, defaulting to empty if never
// set.
func (b *Blackboard) StatusOfConcept(name string) domain.ConceptStatus {
	canon := b.Resolve(name)
	if s, ok := b.conceptStatus.Load(canon); ok {
		return s
	}
	return domain.ConceptEmpty
}

// StatusOfInference returns the inference's status, defaulting to pending.
func (b *Blackboard) StatusOfInference(flowIndex string) domain.InferenceStatus {
	if s, ok := b.inferenceStatus.Load(flowIndex); ok {
		return s
	}
	return domain.InferencePending
}

// CompletionDetailOf returns the recorded completion detail for flowIndex.
func (b *Blackboard) CompletionDetailOf(flowIndex string) (domain.CompletionDetail, bool) {
	return b.completionDetail.Load(flowIndex)
}

// ValueOfConcept returns the concept's reference. Fails with ErrNotComplete
// if the concept's status isn't complete.
func (b *Blackboard) ValueOfConcept(name string) (*reference.Reference, error) {
	canon := b.Resolve(name)
	if b.StatusOfConcept(canon) != domain.ConceptComplete {
		return nil, domain.NewEngineError(domain.ErrKindNotComplete, canon, nil)
	}
	v, ok := b.conceptValue.Load(canon)
	if !ok {
		return nil, domain.NewEngineError(domain.ErrKindNotComplete, canon, nil)
	}
	return v, nil
}

// SetInferenceStarted marks flowIndex in_progress.
func (b *Blackboard) SetInferenceStarted(flowIndex string) {
	b.inferenceStatus.Store(flowIndex, domain.InferenceInProgress)
}

// SetInferenceComplete marks flowIndex complete with the given detail.
func (b *Blackboard) SetInferenceComplete(flowIndex string, detail domain.CompletionDetail) {
	b.inferenceStatus.Store(flowIndex, domain.InferenceComplete)
	b.completionDetail.Store(flowIndex, detail)
}

// SetInferenceSkipped marks flowIndex skipped.
func (b *Blackboard) SetInferenceSkipped(flowIndex string) {
	b.inferenceStatus.Store(flowIndex, domain.InferenceSkipped)
	b.completionDetail.Store(flowIndex, domain.DetailSkipped)
}

// SetConceptValue atomically stores ref for name and transitions its status
// from pending to complete.
func (b *Blackboard) SetConceptValue(name string, ref *reference.Reference) {
	canon := b.Resolve(name)
	b.conceptValue.Store(canon, ref)
	b.conceptStatus.Store(canon, domain.ConceptComplete)
}

// SetConceptStatus force-sets a concept's status (used to mark pending/
// in_progress ahead of a value being available, and by checkpoint restore).
func (b *Blackboard) SetConceptStatus(name string, status domain.ConceptStatus) {
	canon := b.Resolve(name)
	b.conceptStatus.Store(canon, status)
}

// AddAlias unions primary and secondary so all subsequent lookups on either
// name hit the same canonical slot.
func (b *Blackboard) AddAlias(primary, secondary string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alias.union(primary, secondary)
}

// Resolve returns the canonical name for name (itself, if unaliased).
func (b *Blackboard) Resolve(name string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.alias.find(name)
}

// SetTruthMask records a judgement's truth mask for concept.
func (b *Blackboard) SetTruthMask(concept string, mask TruthMask) {
	canon := b.Resolve(concept)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.truthMasks[canon] = mask
}

// GetTruthMask returns concept's truth mask, if any.
func (b *Blackboard) GetTruthMask(concept string) (TruthMask, bool) {
	canon := b.Resolve(concept)
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.truthMasks[canon]
	return m, ok
}

// State is the canonical, checkpointable view of a Blackboard's contents
// (spec.md §4.5: state_json holds blackboard_snapshot + workspace_snapshot).
// Map-keyed fields round-trip stably since encoding/json sorts map keys.
type State struct {
	ConceptStatus    map[string]domain.ConceptStatus    `json:"concept_status"`
	ConceptValue     map[string]*reference.Reference    `json:"concept_value"`
	InferenceStatus  map[string]domain.InferenceStatus  `json:"inference_status"`
	CompletionDetail map[string]domain.CompletionDetail `json:"completion_detail"`
	TruthMasks       map[string]TruthMask                `json:"truth_masks"`
	Alias            map[string]string                   `json:"alias"`
}

// ExportState produces a canonical, serializable copy of the Blackboard for
// the checkpoint store.
func (b *Blackboard) ExportState() State {
	st := State{
		ConceptStatus:    make(map[string]domain.ConceptStatus),
		ConceptValue:     make(map[string]*reference.Reference),
		InferenceStatus:  make(map[string]domain.InferenceStatus),
		CompletionDetail: make(map[string]domain.CompletionDetail),
	}
	b.conceptStatus.Range(func(k string, v domain.ConceptStatus) bool {
		st.ConceptStatus[k] = v
		return true
	})
	b.conceptValue.Range(func(k string, v *reference.Reference) bool {
		st.ConceptValue[k] = v
		return true
	})
	b.inferenceStatus.Range(func(k string, v domain.InferenceStatus) bool {
		st.InferenceStatus[k] = v
		return true
	})
	b.completionDetail.Range(func(k string, v domain.CompletionDetail) bool {
		st.CompletionDetail[k] = v
		return true
	})

	b.mu.RLock()
	defer b.mu.RUnlock()
	st.TruthMasks = make(map[string]TruthMask, len(b.truthMasks))
	for k, v := range b.truthMasks {
		st.TruthMasks[k] = v
	}
	st.Alias = b.alias.snapshot()
	return st
}

// LoadState rebuilds a Blackboard from a checkpointed State (resume/fork,
// spec.md §4.5).
func LoadState(st State) *Blackboard {
	b := New()
	for k, v := range st.ConceptStatus {
		b.conceptStatus.Store(k, v)
	}
	for k, v := range st.ConceptValue {
		b.conceptValue.Store(k, v)
	}
	for k, v := range st.InferenceStatus {
		b.inferenceStatus.Store(k, v)
	}
	for k, v := range st.CompletionDetail {
		b.completionDetail.Store(k, v)
	}
	for k, v := range st.TruthMasks {
		b.truthMasks[k] = v
	}
	for k, v := range st.Alias {
		b.alias.parent[k] = v
	}
	return b
}

// Snapshot is a read-only, point-in-time view handed to sequence handlers so
// they never race with the orchestrator's single writer.
type Snapshot struct {
	conceptStatus    map[string]domain.ConceptStatus
	conceptValue     map[string]*reference.Reference
	inferenceStatus  map[string]domain.InferenceStatus
	completionDetail map[string]domain.CompletionDetail
	truthMasks       map[string]TruthMask
	resolve          map[string]string
}

// Snapshot copies the current state into an immutable view.
func (b *Blackboard) Snapshot() *Snapshot {
	s := &Snapshot{
		conceptStatus:    make(map[string]domain.ConceptStatus),
		conceptValue:     make(map[string]*reference.Reference),
		inferenceStatus:  make(map[string]domain.InferenceStatus),
		completionDetail: make(map[string]domain.CompletionDetail),
	}
	b.conceptStatus.Range(func(k string, v domain.ConceptStatus) bool {
		s.conceptStatus[k] = v
		return true
	})
	b.conceptValue.Range(func(k string, v *reference.Reference) bool {
		s.conceptValue[k] = v
		return true
	})
	b.inferenceStatus.Range(func(k string, v domain.InferenceStatus) bool {
		s.inferenceStatus[k] = v
		return true
	})
	b.completionDetail.Range(func(k string, v domain.CompletionDetail) bool {
		s.completionDetail[k] = v
		return true
	})

	b.mu.RLock()
	defer b.mu.RUnlock()
	s.truthMasks = make(map[string]TruthMask, len(b.truthMasks))
	for k, v := range b.truthMasks {
		s.truthMasks[k] = v
	}
	s.resolve = b.alias.snapshot()
	return s
}

func (s *Snapshot) resolveName(name string) string {
	if canon, ok := s.resolve[name]; ok {
		return canon
	}
	return name
}

// StatusOfConcept mirrors Blackboard.StatusOfConcept against the snapshot.
func (s *Snapshot) StatusOfConcept(name string) domain.ConceptStatus {
	canon := s.resolveName(name)
	if v, ok := s.conceptStatus[canon]; ok {
		return v
	}
	return domain.ConceptEmpty
}

// ValueOfConcept mirrors Blackboard.ValueOfConcept against the snapshot.
func (s *Snapshot) ValueOfConcept(name string) (*reference.Reference, error) {
	canon := s.resolveName(name)
	if s.StatusOfConcept(canon) != domain.ConceptComplete {
		return nil, domain.NewEngineError(domain.ErrKindNotComplete, canon, nil)
	}
	v, ok := s.conceptValue[canon]
	if !ok {
		return nil, domain.NewEngineError(domain.ErrKindNotComplete, canon, nil)
	}
	return v, nil
}

// StatusOfInference mirrors Blackboard.StatusOfInference against the snapshot.
func (s *Snapshot) StatusOfInference(flowIndex string) domain.InferenceStatus {
	if v, ok := s.inferenceStatus[flowIndex]; ok {
		return v
	}
	return domain.InferencePending
}

// CompletionDetailOf mirrors Blackboard.CompletionDetailOf against the snapshot.
func (s *Snapshot) CompletionDetailOf(flowIndex string) (domain.CompletionDetail, bool) {
	v, ok := s.completionDetail[flowIndex]
	return v, ok
}

// GetTruthMask mirrors Blackboard.GetTruthMask against the snapshot.
func (s *Snapshot) GetTruthMask(concept string) (TruthMask, bool) {
	canon := s.resolveName(concept)
	m, ok := s.truthMasks[canon]
	return m, ok
}
