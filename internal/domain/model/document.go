package model

import (
	"encoding/json"
	"time"
)

// Document is an ingested artifact. It starts in draft state (uploaded, parsed
// preview staged), and transitions exactly once to accepted (preview promoted
// into messages) or rejected (deleted along with its artifacts).
type Document struct {
	ID          string          `json:"id"                   db:"id"`
	DisplayName string          `json:"display_name"         db:"display_name"`
	Owner       string          `json:"owner"                db:"owner"`
	ArtifactID  string          `json:"artifact_id"          db:"artifact_id"`
	Accepted    bool            `json:"accepted"             db:"accepted"`
	Enrichment  json.RawMessage `json:"enrichment,omitempty" db:"enrichment"`
	CreatedAt   time.Time       `json:"created_at"           db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"           db:"updated_at"`
}

// CreateDocumentRequest carries the fields needed to stage a draft document.
type CreateDocumentRequest struct {
	DisplayName string `json:"display_name"`
	Owner       string `json:"owner"`
	ArtifactID  string `json:"artifact_id"`
}

// FieldMapping holds the JMESPath expressions a caller supplies to map parsed
// preview rows onto message fields.
type FieldMapping struct {
	Author string `json:"author"`
	SentAt string `json:"sent_at"`
	Body   string `json:"body"`
}
