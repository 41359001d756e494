// Package checkpoint implements the SQLite-backed persistence of
// Blackboard + Workspace snapshots and execution logs (spec.md §4.5),
// grounded on the teacher's BunStore (internal/infrastructure/storage/
// bun_store.go): the same bun query-builder idiom
// (NewInsert().On("CONFLICT..."), RunInTx, NewCreateTable().IfNotExists()),
// re-dialected from Postgres to SQLite since spec.md §4.5/§6.4 requires a
// per-run SQLite database file.
package checkpoint

import (
	"encoding/json"

	"github.com/inferloom/inferloom/internal/blackboard"
	"github.com/inferloom/inferloom/internal/workspace"
)

// State is the canonical, serializable snapshot persisted as a
// checkpoint's state_json (spec.md §4.5: "{blackboard_snapshot,
// workspace_snapshot}").
type State struct {
	Blackboard blackboard.State `json:"blackboard_snapshot"`
	Workspace  workspace.State  `json:"workspace_snapshot"`
}

// Serialize canonically encodes state. encoding/json already sorts
// map[string]V keys on marshal, and State's leaves are plain maps/slices/
// structs with fixed field order, so two equal states always produce
// byte-identical output (spec.md §8 invariant 5, §4.5 "Serialization must
// be stable").
func Serialize(state State) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Deserialize decodes a previously-serialized state_json blob.
func Deserialize(stateJSON string) (State, error) {
	var state State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Hydrate rebuilds live Blackboard/Workspace instances from a decoded
// State, for resume/fork (spec.md §4.5 "Resume").
func Hydrate(state State) (*blackboard.Blackboard, *workspace.Workspace) {
	return blackboard.LoadState(state.Blackboard), workspace.LoadState(state.Workspace)
}

// Snapshot captures the live Blackboard + Workspace as a State ready for
// Serialize.
func Snapshot(bb *blackboard.Blackboard, ws *workspace.Workspace) State {
	return State{Blackboard: bb.ExportState(), Workspace: ws.ExportState()}
}
