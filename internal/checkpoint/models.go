package checkpoint

import (
	"time"

	"github.com/uptrace/bun"
)

// CheckpointModel mirrors the `checkpoints` table (spec.md §4.5).
type CheckpointModel struct {
	bun.BaseModel `bun:"table:checkpoints,alias:c"`

	RunID           string    `bun:"run_id,pk"`
	Cycle           int       `bun:"cycle,pk"`
	InferenceCount  int       `bun:"inference_count,pk"`
	StateJSON       string    `bun:"state_json,type:text"`
	CreatedAt       time.Time `bun:"created_at"`
}

// ExecutionModel mirrors the `executions` table: one row per dispatched
// inference.
type ExecutionModel struct {
	bun.BaseModel `bun:"table:executions,alias:e"`

	ID          int64     `bun:"id,pk,autoincrement"`
	RunID       string    `bun:"run_id"`
	Cycle       int       `bun:"cycle"`
	FlowIndex   string    `bun:"flow_index"`
	StartedAt   time.Time `bun:"started_at"`
	CompletedAt time.Time `bun:"completed_at,nullzero"`
	Status      string    `bun:"status"`
	Detail      string    `bun:"detail"`
	ErrorText   string    `bun:"error_text"`
}

// LogModel mirrors the `logs` table: a structured step-level log line.
type LogModel struct {
	bun.BaseModel `bun:"table:logs,alias:l"`

	ID        int64     `bun:"id,pk,autoincrement"`
	RunID     string    `bun:"run_id"`
	Cycle     int       `bun:"cycle"`
	FlowIndex string    `bun:"flow_index"`
	Step      string    `bun:"step"`
	Level     string    `bun:"level"`
	Message   []byte    `bun:"message,type:blob"`
	Ts        time.Time `bun:"ts"`
}
