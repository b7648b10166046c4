package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/errgroup"

	"github.com/convolens/convolens/internal/core"
	"github.com/convolens/convolens/internal/domain/model"
	apperrors "github.com/convolens/convolens/internal/errors"
	"github.com/convolens/convolens/internal/pending"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return errors.New("expression is empty")
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// Draft pairs a staged document with the field mapping supplied at confirm
// time. It is the entity held by the ingestion record.
type Draft struct {
	Document *model.Document
	Mapping  *model.FieldMapping
}

// DocumentRecord is the reference-bound deferred-commit handle for a staged
// document. Confirm validates and stores the field mapping; Accept promotes
// the preview into messages; Reject discards everything. Both transitions are
// terminal: the draft row is gone (or accepted) afterwards, so a second
// attempt reports not found.
type DocumentRecord = pending.ReferenceRecord[*Draft, *model.FieldMapping]

// enrichmentPrompts are the chat-completion passes run in the background after
// a document is accepted. Each produces one keyed fragment of the enrichment
// payload.
var enrichmentPrompts = map[string]string{
	"analyser":       "Summarize the overall tone, themes, and dynamics of this conversation. Respond as JSON.",
	"contradictions": "List statements in this conversation that contradict each other. Respond as JSON.",
	"locations":      "Extract every location mentioned in this conversation. Respond as JSON.",
	"behaviour":      "Describe notable behavioural patterns of each participant. Respond as JSON.",
}

// IngestionServiceOptions groups dependencies for IngestionService.
type IngestionServiceOptions struct {
	Documents core.DocumentRepository // Required: document repository
	Messages  core.MessageRepository  // Required: message repository
	Artifacts core.ArtifactRepository // Required: artifact blob store
	Inference core.InferenceProvider  // Optional: enables background enrichment
	Evaluator JMESPathEvaluator       // Optional: defaults to go-jmespath
	DraftTTL  time.Duration           // Optional: artifact retention for drafts
	Logger    *slog.Logger            // Optional: structured logger
}

// IngestionService manages the document intake workflow: staging an upload as
// a draft with a parsed preview, then accepting it (promote preview rows into
// messages, enrich in the background) or rejecting it (delete the draft and
// its artifacts). Accept and reject are terminal.
type IngestionService struct {
	documents core.DocumentRepository
	messages  core.MessageRepository
	artifacts core.ArtifactRepository
	inference core.InferenceProvider
	jems      JMESPathEvaluator
	draftTTL  time.Duration
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewIngestionService constructs a new IngestionService.
func NewIngestionService(opts IngestionServiceOptions) (*IngestionService, error) {
	if opts.Documents == nil {
		return nil, errors.New("DocumentRepository is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("MessageRepository is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("ArtifactRepository is required")
	}

	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}

	draftTTL := opts.DraftTTL
	if draftTTL <= 0 {
		draftTTL = 24 * time.Hour
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "ingestion_service")
	}

	return &IngestionService{
		documents: opts.Documents,
		messages:  opts.Messages,
		artifacts: opts.Artifacts,
		inference: opts.Inference,
		jems:      jems,
		draftTTL:  draftTTL,
		logger:    logger,
	}, nil
}

// MustNewIngestionService constructs a new IngestionService and panics on error.
func MustNewIngestionService(opts IngestionServiceOptions) *IngestionService {
	svc, err := NewIngestionService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create IngestionService: %v", err))
	}
	return svc
}

// StageDocument stores the upload and its parsed preview, creates the draft
// row, and returns the record through which the draft is confirmed. The
// upload must be a JSON array of objects; anything else is rejected up front.
func (s *IngestionService) StageDocument(
	ctx context.Context,
	req *model.CreateDocumentRequest,
	upload []byte,
) (*DocumentRecord, error) {
	var rows []map[string]any
	if err := json.Unmarshal(upload, &rows); err != nil {
		return nil, apperrors.Validation("upload must be a JSON array of objects")
	}
	if len(rows) == 0 {
		return nil, apperrors.Validation("upload contains no rows")
	}

	preview, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}

	if err := s.artifacts.Put(ctx, core.ArtifactKey(req.ArtifactID), upload, s.draftTTL); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := s.artifacts.Put(ctx, core.ArtifactPreviewKey(req.ArtifactID), preview, s.draftTTL); err != nil {
		return nil, fmt.Errorf("store preview: %w", err)
	}

	doc, err := s.documents.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create draft document: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "document staged",
			"document_id", doc.ID, "rows", len(rows))
	}
	return s.RecordFor(doc), nil
}

// RecordFor builds the confirmation record for a draft document. Confirm
// validates the mapping's expressions before storing it; Accept and Reject
// run the terminal transitions.
func (s *IngestionService) RecordFor(doc *model.Document) *DocumentRecord {
	rec, err := pending.NewReferenceRecord(
		&Draft{Document: doc},
		func(d *Draft, mapping *model.FieldMapping) *Draft {
			d.Mapping = mapping
			return d
		},
		func(ctx context.Context, d *Draft) error {
			return s.validateMapping(d.Mapping)
		},
	)
	if err != nil {
		panic(fmt.Sprintf("build document record: %v", err))
	}
	rec.OnAccept(func(ctx context.Context, d *Draft) error {
		_, aerr := s.Accept(ctx, d.Document.ID, d.Mapping)
		return aerr
	})
	rec.OnReject(func(ctx context.Context, d *Draft) error {
		return s.Reject(ctx, d.Document.ID)
	})
	return rec
}

func (s *IngestionService) validateMapping(mapping *model.FieldMapping) error {
	if mapping == nil {
		return apperrors.Validation("field mapping is required")
	}
	for field, expr := range map[string]string{
		"author":  mapping.Author,
		"sent_at": mapping.SentAt,
		"body":    mapping.Body,
	} {
		if err := s.jems.Validate(expr); err != nil {
			return apperrors.ValidationField(field, fmt.Sprintf("invalid expression: %v", err))
		}
	}
	return nil
}

// Accept promotes the draft's preview rows into messages and marks the
// document accepted. A document that was already accepted or rejected reports
// not found. Enrichment runs in the background after the transition commits;
// its failure never undoes the accept.
func (s *IngestionService) Accept(
	ctx context.Context,
	documentID string,
	mapping *model.FieldMapping,
) ([]*model.Message, error) {
	if err := s.validateMapping(mapping); err != nil {
		return nil, err
	}

	doc, err := s.documents.GetDraftByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	preview, err := s.artifacts.Get(ctx, core.ArtifactPreviewKey(doc.ArtifactID))
	if err != nil {
		return nil, fmt.Errorf("load preview: %w", err)
	}
	if preview == nil {
		return nil, apperrors.Validation("preview expired; re-upload the document")
	}

	var rows []map[string]any
	if err := json.Unmarshal(preview, &rows); err != nil {
		return nil, fmt.Errorf("decode preview: %w", err)
	}

	msgs := make([]*model.Message, 0, len(rows))
	for i, row := range rows {
		msg, mapErr := s.mapRow(doc.ID, mapping, row)
		if mapErr != nil {
			return nil, apperrors.Validation(fmt.Sprintf("row %d: %v", i, mapErr))
		}
		msgs = append(msgs, msg)
	}

	if err := s.messages.CreateBatch(ctx, msgs); err != nil {
		return nil, fmt.Errorf("persist messages: %w", err)
	}
	if err := s.documents.MarkAccepted(ctx, doc.ID); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "document accepted",
			"document_id", doc.ID, "messages", len(msgs))
	}

	if s.inference != nil {
		s.wg.Add(1)
		go s.enrich(doc.ID, msgs)
	}
	return msgs, nil
}

func (s *IngestionService) mapRow(
	documentID string,
	mapping *model.FieldMapping,
	row map[string]any,
) (*model.Message, error) {
	author, err := s.evalString(mapping.Author, row)
	if err != nil {
		return nil, fmt.Errorf("author: %w", err)
	}
	sentAtRaw, err := s.evalString(mapping.SentAt, row)
	if err != nil {
		return nil, fmt.Errorf("sent_at: %w", err)
	}
	body, err := s.evalString(mapping.Body, row)
	if err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}

	sentAt, err := parseTimestamp(sentAtRaw)
	if err != nil {
		return nil, fmt.Errorf("sent_at: %w", err)
	}

	return &model.Message{
		DocumentID: documentID,
		Author:     author,
		SentAt:     sentAt,
		Body:       body,
	}, nil
}

func (s *IngestionService) evalString(expr string, row map[string]any) (string, error) {
	val, err := s.jems.Evaluate(expr, row)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", expr, err)
	}
	str, ok := val.(string)
	if !ok || str == "" {
		return "", fmt.Errorf("%q did not yield a non-empty string", expr)
	}
	return str, nil
}

// timestampLayouts are tried in order when parsing mapped sent_at values.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// Reject deletes the draft document and its artifacts. A document that was
// already accepted or rejected reports not found. Rows sharing the artifact
// are purged so a rejected upload leaves nothing behind.
func (s *IngestionService) Reject(ctx context.Context, documentID string) error {
	doc, err := s.documents.GetDraftByID(ctx, documentID)
	if err != nil {
		return err
	}

	for _, key := range []string{
		core.ArtifactKey(doc.ArtifactID),
		core.ArtifactPreviewKey(doc.ArtifactID),
	} {
		if _, derr := s.artifacts.Delete(ctx, key); derr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "artifact delete failed", "key", key, "err", derr)
		}
	}

	purged, err := s.documents.PurgeByArtifactID(ctx, doc.ArtifactID)
	if err != nil {
		return fmt.Errorf("purge document: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "document rejected",
			"document_id", doc.ID, "purged_rows", purged)
	}
	return nil
}

// enrich runs the chat-completion passes concurrently and stores the merged
// payload. Best effort: any failure is logged and the partial payload (or
// nothing) is stored without touching the accepted state.
func (s *IngestionService) enrich(documentID string, msgs []*model.Message) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	transcript := buildTranscript(msgs)

	var mu sync.Mutex
	fragments := make(map[string]json.RawMessage, len(enrichmentPrompts))

	// Prompts run independently: one failing must not cancel the others, so
	// the group carries no shared cancellation.
	var g errgroup.Group
	for key, prompt := range enrichmentPrompts {
		g.Go(func() error {
			payload, err := s.inference.Complete(ctx, []core.ChatMessage{
				{Role: "system", Content: prompt},
				{Role: "user", Content: transcript},
			})
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			mu.Lock()
			fragments[key] = payload
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "enrichment incomplete",
			"document_id", documentID, "err", err)
	}
	if len(fragments) == 0 {
		return
	}

	merged, err := json.Marshal(fragments)
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "encode enrichment",
				"document_id", documentID, "err", err)
		}
		return
	}
	if err := s.documents.SetEnrichment(ctx, documentID, merged); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "store enrichment",
			"document_id", documentID, "err", err)
	}
}

func buildTranscript(msgs []*model.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(msg.SentAt.Format(time.RFC3339))
		b.WriteString(" ")
		b.WriteString(msg.Author)
		b.WriteString(": ")
		b.WriteString(msg.Body)
		b.WriteString("\n")
	}
	return b.String()
}

// Wait blocks until all background enrichment goroutines finish. Call during
// shutdown.
func (s *IngestionService) Wait() {
	s.wg.Wait()
}
