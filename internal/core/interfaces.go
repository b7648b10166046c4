// Package core defines the ports between the service layer and its
// collaborators: persistence repositories and the inference provider.
// Services depend on these interfaces, not on concrete implementations.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/convolens/convolens/internal/domain/model"
)

// TaskRepository defines analysis task persistence. It must support the
// selector-bound re-read semantics of deferred-commit confirmation:
// UpdateResultByMessageID writes only the result column so confirmations
// never clobber concurrent unrelated writes to the same row.
type TaskRepository interface {
	// CreateIfAbsent creates a pending task for the message unless one
	// already exists (pending or completed). Idempotent, keyed on message id;
	// reports whether a new task was created.
	CreateIfAbsent(ctx context.Context, messageID string) (bool, error)
	GetByMessageID(ctx context.Context, messageID string) (*model.AnalysisTask, error)
	UpdateResultByMessageID(ctx context.Context, messageID string, result json.RawMessage) error
	// CountByMessageIDs returns total and completed task counts for the set.
	CountByMessageIDs(ctx context.Context, messageIDs []string) (total, completed int, err error)
	// PendingExists reports whether any task for the set has no result yet.
	PendingExists(ctx context.Context, messageIDs []string) (bool, error)
	// FindStalePending returns message ids whose tasks have stayed pending
	// longer than the threshold.
	FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
}

// MessageRepository defines message persistence (owned by the surrounding
// application; the pipeline only creates and reads rows).
type MessageRepository interface {
	CreateBatch(ctx context.Context, msgs []*model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListByIDs(ctx context.Context, ids []string) ([]*model.Message, error)
	ListByDocument(ctx context.Context, documentID string) ([]*model.Message, error)
}

// DocumentRepository defines document persistence for the ingestion workflow.
type DocumentRepository interface {
	Create(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error)
	// GetDraftByID returns the document only while it is still in draft
	// state; accepted or deleted documents report not found, which is what
	// makes accept/reject terminal.
	GetDraftByID(ctx context.Context, id string) (*model.Document, error)
	GetByID(ctx context.Context, id string) (*model.Document, error)
	MarkAccepted(ctx context.Context, id string) error
	SetEnrichment(ctx context.Context, id string, enrichment json.RawMessage) error
	Delete(ctx context.Context, id string) (bool, error)
	// PurgeByArtifactID deletes every document row referencing the artifact
	// id and returns the number of rows removed.
	PurgeByArtifactID(ctx context.Context, artifactID string) (int, error)
}

// ArtifactRepository stores upload and parsed-preview blobs keyed by artifact
// id.
type ArtifactRepository interface {
	Put(ctx context.Context, key string, blob []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// ArtifactKey returns the storage key for the original uploaded blob.
func ArtifactKey(artifactID string) string {
	return "artifact:" + artifactID
}

// ArtifactPreviewKey returns the storage key for the parsed preview blob.
func ArtifactPreviewKey(artifactID string) string {
	return "artifact:" + artifactID + ":preview"
}

// ChatMessage is one turn of a chat completion prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InferenceProvider is the boundary to the remote inference service. Calls
// are slow network requests; implementations classify failures and retry
// transient ones with bounded backoff, so callers treat any returned error as
// final for the attempt.
type InferenceProvider interface {
	// Classify runs a labeling sub-task (sentiment, entity extraction).
	Classify(ctx context.Context, text string, kind model.ClassifyKind) ([]model.Label, error)
	// Regress runs an emotion intensity regression.
	Regress(ctx context.Context, text string, kind model.EmotionKind) (float64, error)
	// Complete services an ad-hoc chat completion and returns the structured
	// JSON payload of the first choice.
	Complete(ctx context.Context, messages []ChatMessage) (json.RawMessage, error)
}
