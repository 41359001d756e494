package checkpoint

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed checkpoint/execution-log persistence layer
// (spec.md §4.5), grounded on the teacher's BunStore but re-dialected to
// SQLite (pure-Go modernc.org/sqlite driver, no cgo) per spec.md §6.4.
type Store struct {
	db *bun.DB
}

// NewStore opens (creating if absent) the SQLite database at dbPath and
// enables WAL mode, per spec.md §5's recommendation for shared-file
// concurrent runs.
func NewStore(dbPath string) (*Store, error) {
	sqldb, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// InitSchema creates the checkpoints/executions/logs tables if absent.
func (s *Store) InitSchema(ctx context.Context) error {
	models := []any{
		(*CheckpointModel)(nil),
		(*ExecutionModel)(nil),
		(*LogModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Checkpoint persists state at (runID, cycle, inferenceCount), per spec.md
// §4.5's primary key. A re-checkpoint at the same key overwrites it.
func (s *Store) Checkpoint(ctx context.Context, runID string, cycle, inferenceCount int, state State) error {
	stateJSON, err := Serialize(state)
	if err != nil {
		return err
	}
	model := &CheckpointModel{
		RunID:          runID,
		Cycle:          cycle,
		InferenceCount: inferenceCount,
		StateJSON:      stateJSON,
		CreatedAt:      time.Now(),
	}
	_, err = s.db.NewInsert().
		Model(model).
		On("CONFLICT (run_id, cycle, inference_count) DO UPDATE").
		Set("state_json = EXCLUDED.state_json").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	return err
}

// LoadLatest returns the most recently written checkpoint for runID.
func (s *Store) LoadLatest(ctx context.Context, runID string) (State, int, int, error) {
	var model CheckpointModel
	err := s.db.NewSelect().
		Model(&model).
		Where("run_id = ?", runID).
		OrderExpr("cycle DESC, inference_count DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return State{}, 0, 0, err
	}
	state, err := Deserialize(model.StateJSON)
	return state, model.Cycle, model.InferenceCount, err
}

// LoadAt returns the checkpoint at the exact (runID, cycle, inferenceCount)
// key.
func (s *Store) LoadAt(ctx context.Context, runID string, cycle, inferenceCount int) (State, error) {
	var model CheckpointModel
	err := s.db.NewSelect().
		Model(&model).
		Where("run_id = ? AND cycle = ? AND inference_count = ?", runID, cycle, inferenceCount).
		Scan(ctx)
	if err != nil {
		return State{}, err
	}
	return Deserialize(model.StateJSON)
}

// CheckpointRef identifies one recorded checkpoint, for ListCheckpoints.
type CheckpointRef struct {
	Cycle          int       `json:"cycle"`
	InferenceCount int       `json:"inference_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListCheckpoints returns every checkpoint recorded for runID, oldest
// first, for UI/CLI consumption (spec.md §4.5).
func (s *Store) ListCheckpoints(ctx context.Context, runID string) ([]CheckpointRef, error) {
	var models []CheckpointModel
	err := s.db.NewSelect().
		Model(&models).
		Column("cycle", "inference_count", "created_at").
		Where("run_id = ?", runID).
		OrderExpr("cycle ASC, inference_count ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]CheckpointRef, len(models))
	for i, m := range models {
		refs[i] = CheckpointRef{Cycle: m.Cycle, InferenceCount: m.InferenceCount, CreatedAt: m.CreatedAt}
	}
	return refs, nil
}

// Fork copies every checkpoint row of sourceRunID into newRunID as of (and
// including) the given cycle; subsequent writes to newRunID diverge
// (spec.md §4.5 "Fork").
func (s *Store) Fork(ctx context.Context, sourceRunID string, cycle int, newRunID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var models []CheckpointModel
		if err := tx.NewSelect().
			Model(&models).
			Where("run_id = ? AND cycle <= ?", sourceRunID, cycle).
			Scan(ctx); err != nil {
			return err
		}
		for _, m := range models {
			m.RunID = newRunID
			if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordExecutionStart inserts an executions row for a dispatched inference.
func (s *Store) RecordExecutionStart(ctx context.Context, runID string, cycle int, flowIndex string) error {
	_, err := s.db.NewInsert().Model(&ExecutionModel{
		RunID:     runID,
		Cycle:     cycle,
		FlowIndex: flowIndex,
		StartedAt: time.Now(),
		Status:    "in_progress",
	}).Exec(ctx)
	return err
}

// RecordExecutionComplete updates every executions row for
// (runID, flowIndex, cycle) with its terminal status/detail.
func (s *Store) RecordExecutionComplete(ctx context.Context, runID string, cycle int, flowIndex, status, detail, errText string) error {
	_, err := s.db.NewUpdate().
		Model((*ExecutionModel)(nil)).
		Set("completed_at = ?", time.Now()).
		Set("status = ?", status).
		Set("detail = ?", detail).
		Set("error_text = ?", errText).
		Where("run_id = ? AND cycle = ? AND flow_index = ?", runID, cycle, flowIndex).
		Exec(ctx)
	return err
}

// AppendLog writes one structured step-level log line. message is a
// free-form payload, msgpack-encoded (compact, distinct from the canonical
// JSON state_json blob per SPEC_FULL's domain-stack wiring) since logs are
// write-mostly diagnostic records, not round-trip-critical state.
func (s *Store) AppendLog(ctx context.Context, runID string, cycle int, flowIndex, step, level string, payload any) error {
	packed, err := msgpack.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(&LogModel{
		RunID:     runID,
		Cycle:     cycle,
		FlowIndex: flowIndex,
		Step:      step,
		Level:     level,
		Message:   packed,
		Ts:        time.Now(),
	}).Exec(ctx)
	return err
}
