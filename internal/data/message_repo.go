package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/convolens/convolens/internal/domain/model"
	apperrors "github.com/convolens/convolens/internal/errors"
)

// MessageRepo provides database operations for messages.
type MessageRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewMessageRepo creates a MessageRepo with the real time provider.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewMessageRepoWithTimeProvider creates a MessageRepo with a custom time provider.
func NewMessageRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *MessageRepo {
	return &MessageRepo{DB: db, timeProvider: tp}
}

const messageColumns = `id, document_id, author, sent_at, body, created_at`

// CreateBatch inserts the messages in one transaction, assigning ids to any
// message that lacks one. All-or-nothing: a failed row rolls back the batch.
func (r *MessageRepo) CreateBatch(ctx context.Context, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message batch: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback message batch: %w", rerr))
		}
	}()

	now := r.timeProvider.Now().UTC()
	for _, msg := range msgs {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		msg.CreatedAt = now
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, document_id, author, sent_at, body, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, msg.ID, msg.DocumentID, msg.Author, msg.SentAt.UTC(), msg.Body, now); err != nil {
			return apperrors.MapDBError(fmt.Errorf("insert message: %w", err))
		}
	}

	if err = tx.Commit(); err != nil {
		return apperrors.MapDBError(fmt.Errorf("commit message batch: %w", err))
	}
	return nil
}

// GetByID fetches a message.
func (r *MessageRepo) GetByID(ctx context.Context, id string) (*model.Message, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("message %s not found", id)
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get message: %w", err))
	}
	return msg, nil
}

// ListByIDs fetches the given messages, preserving the input order. Missing
// ids are skipped silently.
func (r *MessageRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list messages by ids: %w", err))
	}
	defer rows.Close()

	byID := make(map[string]*model.Message, len(ids))
	for rows.Next() {
		msg, scanErr := scanMessage(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan message: %w", scanErr)
		}
		byID[msg.ID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("iterate messages: %w", err))
	}

	out := make([]*model.Message, 0, len(byID))
	for _, id := range ids {
		if msg, ok := byID[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// ListByDocument fetches all messages of a document ordered by send time.
func (r *MessageRepo) ListByDocument(ctx context.Context, documentID string) ([]*model.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE document_id = $1
		ORDER BY sent_at, id
	`, documentID)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list messages by document: %w", err))
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		msg, scanErr := scanMessage(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan message: %w", scanErr)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("iterate messages: %w", err))
	}
	return out, nil
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var msg model.Message
	if err := row.Scan(&msg.ID, &msg.DocumentID, &msg.Author, &msg.SentAt, &msg.Body, &msg.CreatedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}
