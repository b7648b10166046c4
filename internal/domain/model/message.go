// Package model defines the core data types for the conversation analysis
// pipeline: messages, analysis tasks, documents, and result payloads.
package model

import (
	"time"
)

// Message is the smallest unit of text submitted for analysis. Messages are
// immutable once created.
type Message struct {
	ID         string    `json:"id"          db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Author     string    `json:"author"      db:"author"`
	SentAt     time.Time `json:"sent_at"     db:"sent_at"`
	Body       string    `json:"body"        db:"body"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}
