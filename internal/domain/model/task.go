package model

import (
	"encoding/json"
	"time"
)

// AnalysisTask tracks the completion state of one message's analysis. There is
// at most one task per message; a nil Result means the task is still pending.
// A task transitions to completed exactly once, when a worker confirms its
// result, and is only ever removed by cascading deletion of its message.
type AnalysisTask struct {
	ID          string          `json:"id"                     db:"id"`
	MessageID   string          `json:"message_id"             db:"message_id"`
	Result      json.RawMessage `json:"result,omitempty"       db:"result"`
	CreatedAt   time.Time       `json:"created_at"             db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// Pending reports whether the task has no confirmed result yet.
func (t *AnalysisTask) Pending() bool {
	return len(t.Result) == 0
}
