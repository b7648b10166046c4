// Package analysisrunner provides the background worker pool that executes
// analysis tasks and the sweeper that re-queues tasks stranded by dead
// workers.
package analysisrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/convolens/convolens/internal/core"
	"github.com/convolens/convolens/internal/domain/analysis"
	"github.com/convolens/convolens/internal/domain/model"
	"github.com/convolens/convolens/internal/service"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

// PoolOptions configures the analysis worker pool.
type PoolOptions struct {
	Analysis  *service.AnalysisService // Required: provides task records for confirmation
	Messages  core.MessageRepository   // Required: message lookup
	Inference core.InferenceProvider   // Required: remote inference calls
	Logger    *slog.Logger             // Optional: structured logger

	Workers   int // number of worker goroutines; defaults to 4
	QueueSize int // dispatch buffer; defaults to 64
}

// Pool runs a fixed set of worker goroutines over a shared dispatch queue.
// Dispatch is fire-and-forget; a job that fails leaves its task pending and
// never disturbs the siblings in the queue.
type Pool struct {
	analysis  *service.AnalysisService
	messages  core.MessageRepository
	inference core.InferenceProvider
	logger    *slog.Logger
	workers   int
	jobs      chan string
}

// NewPool constructs a worker pool.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.Analysis == nil {
		return nil, errors.New("AnalysisService is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("MessageRepository is required")
	}
	if opts.Inference == nil {
		return nil, errors.New("InferenceProvider is required")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		analysis:  opts.Analysis,
		messages:  opts.Messages,
		inference: opts.Inference,
		logger:    logger.With("component", "analysis_pool"),
		workers:   workers,
		jobs:      make(chan string, queueSize),
	}, nil
}

// MustNewPool constructs a worker pool and panics on error.
func MustNewPool(opts PoolOptions) *Pool {
	p, err := NewPool(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create analysis pool: %v", err))
	}
	return p
}

// Dispatch queues a message for analysis without blocking. Reports whether
// the job was queued; a full queue drops the job, which the sweeper will
// pick up later.
func (p *Pool) Dispatch(messageID string) bool {
	select {
	case p.jobs <- messageID:
		return true
	default:
		return false
	}
}

// Run starts the worker goroutines and processes jobs until the context is
// cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting analysis pool", "workers", p.workers)

	var wg sync.WaitGroup
	for range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func (p *Pool) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case messageID := <-p.jobs:
			if err := p.process(ctx, messageID); err != nil {
				p.logger.ErrorContext(ctx, "analysis job failed",
					"message_id", messageID, "err", err)
			}
		}
	}
}

// process runs the full analysis of one message and confirms the result
// through the task record. Any error leaves the task pending.
func (p *Pool) process(ctx context.Context, messageID string) error {
	msg, err := p.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}

	in := analysis.Inputs{
		Entities: []model.Entity{},
		Keywords: analysis.Keywords(msg.Body),
	}

	for _, kind := range model.Emotions() {
		score, rerr := p.inference.Regress(ctx, msg.Body, kind)
		if rerr != nil {
			return fmt.Errorf("regress %s: %w", kind, rerr)
		}
		switch kind {
		case model.EmotionJoy:
			in.Joy = score
		case model.EmotionSad:
			in.Sad = score
		case model.EmotionFear:
			in.Fear = score
		case model.EmotionAnger:
			in.Anger = score
		}
	}

	sentiment, err := p.inference.Classify(ctx, msg.Body, model.ClassifySentiment)
	if err != nil {
		return fmt.Errorf("classify sentiment: %w", err)
	}
	if len(sentiment) == 0 {
		return errors.New("classify sentiment: empty response")
	}
	in.SentimentLabel = sentiment[0].Value
	in.SentimentScore = sentiment[0].Score

	entities, err := p.inference.Classify(ctx, msg.Body, model.ClassifyEntities)
	if err != nil {
		return fmt.Errorf("classify entities: %w", err)
	}
	for _, label := range entities {
		in.Entities = append(in.Entities, model.Entity{Text: label.Text, Label: label.Value})
	}

	raw, err := json.Marshal(analysis.Score(in))
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	record := p.analysis.TaskRecordFor(messageID)
	if err := record.Confirm(ctx, raw); err != nil {
		return fmt.Errorf("confirm result: %w", err)
	}

	p.logger.DebugContext(ctx, "analysis completed", "message_id", messageID)
	return nil
}
