package analysisrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/convolens/convolens/internal/service"
)

const (
	defaultSweepInterval = time.Minute
	defaultStaleAfter    = 10 * time.Minute
	defaultSweepBatch    = 100
)

// SweeperOptions configures the stale-task sweeper.
type SweeperOptions struct {
	Analysis *service.AnalysisService // Required: provides stale re-submission
	Logger   *slog.Logger             // Optional: structured logger

	Interval   time.Duration // sweep cadence; defaults to 1m
	StaleAfter time.Duration // pending age before re-queue; defaults to 10m
	BatchSize  int           // max tasks re-queued per sweep; defaults to 100
}

// Sweeper periodically re-queues analysis tasks that stayed pending past the
// threshold, typically because the worker that held them died.
type Sweeper struct {
	analysis   *service.AnalysisService
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
}

// NewSweeper constructs a sweeper.
func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Analysis == nil {
		return nil, errors.New("AnalysisService is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}

	return &Sweeper{
		analysis:   opts.Analysis,
		logger:     logger.With("component", "sweeper"),
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
	}, nil
}

// MustNewSweeper constructs a sweeper and panics on error.
func MustNewSweeper(opts SweeperOptions) *Sweeper {
	s, err := NewSweeper(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create sweeper: %v", err))
	}
	return s
}

// Run sweeps on the configured cadence until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting sweeper",
		"interval", s.interval, "stale_after", s.staleAfter)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", "err", err)
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	requeued, err := s.analysis.ResubmitStale(ctx, s.staleAfter, s.batchSize)
	if err != nil {
		return err
	}
	if requeued > 0 {
		s.logger.InfoContext(ctx, "sweep re-queued stale tasks", "count", requeued)
	}
	return nil
}
