package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/convolens/convolens/internal/core"
	"github.com/convolens/convolens/internal/domain/model"
	apperrors "github.com/convolens/convolens/internal/errors"
	"github.com/convolens/convolens/internal/pending"
)

// Dispatcher hands submitted messages to the background worker pool. Dispatch
// is fire-and-forget; it reports whether the job was queued.
type Dispatcher interface {
	Dispatch(messageID string) bool
}

// TaskRecord is the deferred-commit handle for one analysis task. Workers
// confirm the serialized result through it; the record re-reads the task row
// at confirm time so the write never operates on a stale snapshot.
type TaskRecord = pending.SelectorRecord[*model.AnalysisTask, json.RawMessage]

// PendingAnalysis pairs a newly submitted message with its task record. Only
// submissions that create a task produce one; a message that is already
// tracked, or already completed, yields no pair, so its result can never be
// confirmed a second time through a fresh record.
type PendingAnalysis struct {
	Message *model.Message
	Record  *TaskRecord
}

// AnalysisServiceOptions groups dependencies for AnalysisService.
type AnalysisServiceOptions struct {
	Tasks      core.TaskRepository    // Required: task repository
	Messages   core.MessageRepository // Required: message repository
	Dispatcher Dispatcher             // Optional: worker pool; submissions are queued when set
	Logger     *slog.Logger           // Optional: structured logger
}

// AnalysisService coordinates the analysis pipeline: it submits messages for
// analysis with per-message de-duplication, reports progress, and collects
// results once every task in a set has completed.
type AnalysisService struct {
	tasks      core.TaskRepository
	messages   core.MessageRepository
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewAnalysisService constructs a new AnalysisService.
func NewAnalysisService(opts AnalysisServiceOptions) (*AnalysisService, error) {
	if opts.Tasks == nil {
		return nil, errors.New("TaskRepository is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("MessageRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "analysis_service")
	}

	return &AnalysisService{
		tasks:      opts.Tasks,
		messages:   opts.Messages,
		dispatcher: opts.Dispatcher,
		logger:     logger,
	}, nil
}

// MustNewAnalysisService constructs a new AnalysisService and panics on error.
func MustNewAnalysisService(opts AnalysisServiceOptions) *AnalysisService {
	svc, err := NewAnalysisService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create AnalysisService: %v", err))
	}
	return svc
}

// SetDispatcher installs the worker pool after construction. The pool itself
// depends on the service, so wiring happens in two steps at startup.
func (s *AnalysisService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// TaskRecordFor builds the deferred-commit record for a message's task. The
// selector re-reads the row by message id; a row deleted between submission
// and confirmation makes the confirm a silent no-op.
func (s *AnalysisService) TaskRecordFor(messageID string) *TaskRecord {
	return pending.MustNewSelectorRecord(
		func(ctx context.Context) (*model.AnalysisTask, bool, error) {
			task, err := s.tasks.GetByMessageID(ctx, messageID)
			if err != nil {
				if apperrors.IsNotFound(err) {
					return nil, false, nil
				}
				return nil, false, err
			}
			return task, true, nil
		},
		func(task *model.AnalysisTask, result json.RawMessage) *model.AnalysisTask {
			task.Result = result
			return task
		},
		func(ctx context.Context, task *model.AnalysisTask) error {
			return s.tasks.UpdateResultByMessageID(ctx, task.MessageID, task.Result)
		},
	)
}

// SubmitMessages submits the messages for analysis. Each message gets at most
// one task regardless of how many times or how concurrently it is submitted;
// resubmission of an already-tracked message is a no-op that yields no pair.
// Callers must not assume a pair per input. Newly created tasks are queued on
// the dispatcher.
func (s *AnalysisService) SubmitMessages(ctx context.Context, messageIDs []string) ([]PendingAnalysis, error) {
	msgs, err := s.messages.ListByIDs(ctx, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) != len(messageIDs) {
		return nil, apperrors.Validation("one or more messages do not exist")
	}

	out := make([]PendingAnalysis, 0, len(msgs))
	for _, msg := range msgs {
		created, err := s.tasks.CreateIfAbsent(ctx, msg.ID)
		if err != nil {
			return nil, fmt.Errorf("submit message %s: %w", msg.ID, err)
		}
		if !created {
			continue
		}

		if s.dispatcher != nil && !s.dispatcher.Dispatch(msg.ID) && s.logger != nil {
			s.logger.WarnContext(ctx, "dispatch queue full", "message_id", msg.ID)
		}

		out = append(out, PendingAnalysis{
			Message: msg,
			Record:  s.TaskRecordFor(msg.ID),
		})
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "messages submitted", "count", len(out))
	}
	return out, nil
}

// Progress returns the completion percentage for the message set. An empty
// set, or one whose messages were never submitted, reports 100.
func (s *AnalysisService) Progress(ctx context.Context, messageIDs []string) (float64, error) {
	total, completed, err := s.tasks.CountByMessageIDs(ctx, messageIDs)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	if total == 0 {
		return 100, nil
	}
	return float64(completed) * 100 / float64(total), nil
}

// Results returns the parsed results for the message set, one per message in
// input order. The boolean reports readiness: while any task is still pending
// it is false and no partial results are returned. A message with no task at
// all is a not-found error, never a silently shorter list.
func (s *AnalysisService) Results(ctx context.Context, messageIDs []string) ([]*model.AnalysisResult, bool, error) {
	pendingLeft, err := s.tasks.PendingExists(ctx, messageIDs)
	if err != nil {
		return nil, false, fmt.Errorf("check pending: %w", err)
	}
	if pendingLeft {
		return nil, false, nil
	}

	out := make([]*model.AnalysisResult, 0, len(messageIDs))
	for _, id := range messageIDs {
		task, err := s.tasks.GetByMessageID(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("load task for message %s: %w", id, err)
		}
		res, err := model.ParseAnalysisResult(task.Result)
		if err != nil {
			return nil, false, fmt.Errorf("result for message %s: %w", id, err)
		}
		out = append(out, res)
	}
	return out, true, nil
}

// WaitAll polls until every task in the set has a result, then returns the
// parsed results in input order. Poll pacing is caller-supplied; ctx bounds
// the wait.
func (s *AnalysisService) WaitAll(ctx context.Context, messageIDs []string, pollEvery time.Duration) ([]*model.AnalysisResult, error) {
	if pollEvery <= 0 {
		pollEvery = 500 * time.Millisecond
	}
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		results, ready, err := s.Results(ctx, messageIDs)
		if err != nil {
			return nil, err
		}
		if ready {
			return results, nil
		}

		select {
		case <-ctx.Done():
			code := apperrors.ErrCodeCanceled
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				code = apperrors.ErrCodeTimeout
			}
			return nil, apperrors.Wrap(ctx.Err(), code, "wait for analysis results")
		case <-ticker.C:
		}
	}
}

// ResubmitStale re-queues tasks that have stayed pending longer than the
// threshold, typically because a worker died mid-job. Returns how many were
// re-queued.
func (s *AnalysisService) ResubmitStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if s.dispatcher == nil {
		return 0, errors.New("no dispatcher configured")
	}

	ids, err := s.tasks.FindStalePending(ctx, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("find stale tasks: %w", err)
	}

	requeued := 0
	for _, id := range ids {
		if s.dispatcher.Dispatch(id) {
			requeued++
		}
	}

	if requeued > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "stale tasks re-queued", "count", requeued)
	}
	return requeued, nil
}
