package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/convolens/convolens/internal/domain/model"
	apperrors "github.com/convolens/convolens/internal/errors"
)

// DocumentRepo provides database operations for ingested documents.
type DocumentRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewDocumentRepo creates a DocumentRepo with the real time provider.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewDocumentRepoWithTimeProvider creates a DocumentRepo with a custom time provider.
func NewDocumentRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *DocumentRepo {
	return &DocumentRepo{DB: db, timeProvider: tp}
}

const documentColumns = `id, display_name, owner, artifact_id, accepted, enrichment, created_at, updated_at`

// Create inserts a draft document.
func (r *DocumentRepo) Create(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error) {
	if req == nil {
		return nil, errors.New("create document request is required")
	}
	if req.DisplayName == "" {
		return nil, apperrors.ValidationField("display_name", "This field is required.")
	}
	if req.Owner == "" {
		return nil, apperrors.ValidationField("owner", "This field is required.")
	}
	if req.ArtifactID == "" {
		return nil, apperrors.ValidationField("artifact_id", "This field is required.")
	}

	now := r.timeProvider.Now().UTC()
	doc := &model.Document{
		ID:          uuid.NewString(),
		DisplayName: req.DisplayName,
		Owner:       req.Owner,
		ArtifactID:  req.ArtifactID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO documents (id, display_name, owner, artifact_id, accepted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
	`, doc.ID, doc.DisplayName, doc.Owner, doc.ArtifactID, now)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("create document: %w", err))
	}
	return doc, nil
}

// GetByID fetches a document regardless of state.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id = $1
	`, id)
	return r.scanDocumentRow(row, id)
}

// GetDraftByID fetches a document only while it is still in draft state.
// Accepted or deleted documents report not found; this is what makes the
// accept/reject transitions terminal.
func (r *DocumentRepo) GetDraftByID(ctx context.Context, id string) (*model.Document, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id = $1 AND accepted = FALSE
	`, id)
	return r.scanDocumentRow(row, id)
}

func (r *DocumentRepo) scanDocumentRow(row *sql.Row, id string) (*model.Document, error) {
	var (
		doc        model.Document
		enrichment []byte
	)
	err := row.Scan(&doc.ID, &doc.DisplayName, &doc.Owner, &doc.ArtifactID,
		&doc.Accepted, &enrichment, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("document %s not found", id)
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get document: %w", err))
	}
	if len(enrichment) > 0 {
		doc.Enrichment = json.RawMessage(enrichment)
	}
	return &doc, nil
}

// MarkAccepted transitions a draft document to accepted. Returns not found if
// the document is missing or already transitioned.
func (r *DocumentRepo) MarkAccepted(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE documents
		SET accepted = TRUE, updated_at = $2
		WHERE id = $1 AND accepted = FALSE
	`, id, r.timeProvider.Now().UTC())
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("mark document accepted: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark accepted rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundf("document %s not found", id)
	}
	return nil
}

// SetEnrichment writes the enrichment payload. Only the enrichment column is
// touched, so the write cannot clobber concurrent state transitions.
func (r *DocumentRepo) SetEnrichment(ctx context.Context, id string, enrichment json.RawMessage) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE documents
		SET enrichment = $2, updated_at = $3
		WHERE id = $1
	`, id, []byte(enrichment), r.timeProvider.Now().UTC())
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("set document enrichment: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set enrichment rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundf("document %s not found", id)
	}
	return nil
}

// Delete removes a document row. Messages and their tasks cascade.
func (r *DocumentRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("delete document: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document rows affected: %w", err)
	}
	return affected > 0, nil
}

// PurgeByArtifactID deletes every document row referencing the artifact id,
// including duplicates staged from repeat uploads of the same content.
func (r *DocumentRepo) PurgeByArtifactID(ctx context.Context, artifactID string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE artifact_id = $1`, artifactID)
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("purge documents by artifact: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge documents rows affected: %w", err)
	}
	return int(affected), nil
}
