// Package data provides the Postgres and Redis repositories backing the
// analysis pipeline.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convolens/convolens/internal/domain/model"
	apperrors "github.com/convolens/convolens/internal/errors"
)

// TaskRepo provides database operations for analysis tasks.
type TaskRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewTaskRepo creates a TaskRepo with the real time provider.
func NewTaskRepo(db *sql.DB) *TaskRepo {
	return &TaskRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewTaskRepoWithTimeProvider creates a TaskRepo with a custom time provider (useful for tests).
func NewTaskRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *TaskRepo {
	return &TaskRepo{DB: db, timeProvider: tp}
}

const taskColumns = `id, message_id, result, created_at, completed_at`

// CreateIfAbsent creates a pending task for the message unless one already
// exists. The insert is keyed on the unique message_id constraint, so
// concurrent submissions of the same message race safely: exactly one row
// wins and the rest report created=false.
func (r *TaskRepo) CreateIfAbsent(ctx context.Context, messageID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO analysis_tasks (id, message_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id) DO NOTHING
	`, uuid.NewString(), messageID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("create task: %w", err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create task rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetByMessageID fetches the task for a message.
func (r *TaskRepo) GetByMessageID(ctx context.Context, messageID string) (*model.AnalysisTask, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM analysis_tasks
		WHERE message_id = $1
	`, messageID)

	task, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundf("no analysis task for message %s", messageID)
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get task: %w", err))
	}
	return task, nil
}

// UpdateResultByMessageID writes the result column of the task row. Only the
// result and completion timestamp are touched, which is what lets
// selector-bound confirmations interleave with unrelated writes to the same
// row without losing them.
func (r *TaskRepo) UpdateResultByMessageID(ctx context.Context, messageID string, result json.RawMessage) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE analysis_tasks
		SET result = $2, completed_at = $3
		WHERE message_id = $1
	`, messageID, []byte(result), r.timeProvider.Now().UTC())
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("update task result: %w", err))
	}
	return nil
}

// CountByMessageIDs returns total and completed task counts for the message
// set. Read-only; safe to call concurrently with in-flight workers.
func (r *TaskRepo) CountByMessageIDs(ctx context.Context, messageIDs []string) (int, int, error) {
	if len(messageIDs) == 0 {
		return 0, 0, nil
	}

	var total, completed int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(result)
		FROM analysis_tasks
		WHERE message_id = ANY($1)
	`, messageIDs).Scan(&total, &completed)
	if err != nil {
		return 0, 0, apperrors.MapDBError(fmt.Errorf("count tasks: %w", err))
	}
	return total, completed, nil
}

// PendingExists reports whether any task in the message set still has no result.
func (r *TaskRepo) PendingExists(ctx context.Context, messageIDs []string) (bool, error) {
	if len(messageIDs) == 0 {
		return false, nil
	}

	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM analysis_tasks
			WHERE message_id = ANY($1) AND result IS NULL
		)
	`, messageIDs).Scan(&exists)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("pending exists: %w", err))
	}
	return exists, nil
}

// FindStalePending returns message ids whose tasks have stayed pending longer
// than the threshold, oldest first.
func (r *TaskRepo) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := r.timeProvider.Now().UTC().Add(-olderThan)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT message_id
		FROM analysis_tasks
		WHERE result IS NULL AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("find stale pending: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale pending: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("iterate stale pending: %w", err))
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.AnalysisTask, error) {
	var (
		task   model.AnalysisTask
		result []byte
	)
	if err := row.Scan(&task.ID, &task.MessageID, &result, &task.CreatedAt, &task.CompletedAt); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		task.Result = json.RawMessage(result)
	}
	return &task, nil
}
