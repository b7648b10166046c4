package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convolens/convolens/internal/domain/model"
	apperrors "github.com/convolens/convolens/internal/errors"
)

// fakeTaskRepo is an in-memory TaskRepository with the same per-message
// uniqueness guarantee as the Postgres implementation.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.AnalysisTask
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*model.AnalysisTask)}
}

func (f *fakeTaskRepo) CreateIfAbsent(_ context.Context, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[messageID]; ok {
		return false, nil
	}
	f.tasks[messageID] = &model.AnalysisTask{
		ID:        "task-" + messageID,
		MessageID: messageID,
		CreatedAt: time.Now(),
	}
	return true, nil
}

func (f *fakeTaskRepo) GetByMessageID(_ context.Context, messageID string) (*model.AnalysisTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[messageID]
	if !ok {
		return nil, apperrors.NotFoundf("no analysis task for message %s", messageID)
	}
	cp := *task
	return &cp, nil
}

func (f *fakeTaskRepo) UpdateResultByMessageID(_ context.Context, messageID string, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[messageID]
	if !ok {
		return apperrors.NotFoundf("no analysis task for message %s", messageID)
	}
	task.Result = result
	return nil
}

func (f *fakeTaskRepo) CountByMessageIDs(_ context.Context, messageIDs []string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, completed := 0, 0
	for _, id := range messageIDs {
		task, ok := f.tasks[id]
		if !ok {
			continue
		}
		total++
		if !task.Pending() {
			completed++
		}
	}
	return total, completed, nil
}

func (f *fakeTaskRepo) PendingExists(_ context.Context, messageIDs []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range messageIDs {
		if task, ok := f.tasks[id]; ok && task.Pending() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTaskRepo) FindStalePending(_ context.Context, _ time.Duration, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, task := range f.tasks {
		if task.Pending() && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fakeMessageRepo serves a fixed message set.
type fakeMessageRepo struct {
	msgs map[string]*model.Message
}

func newFakeMessageRepo(ids ...string) *fakeMessageRepo {
	msgs := make(map[string]*model.Message, len(ids))
	for _, id := range ids {
		msgs[id] = &model.Message{ID: id, DocumentID: "doc-1", Author: "a", Body: "hello", SentAt: time.Now()}
	}
	return &fakeMessageRepo{msgs: msgs}
}

func (f *fakeMessageRepo) CreateBatch(_ context.Context, _ []*model.Message) error { return nil }

func (f *fakeMessageRepo) GetByID(_ context.Context, id string) (*model.Message, error) {
	msg, ok := f.msgs[id]
	if !ok {
		return nil, apperrors.NotFoundf("message %s not found", id)
	}
	return msg, nil
}

func (f *fakeMessageRepo) ListByIDs(_ context.Context, ids []string) ([]*model.Message, error) {
	var out []*model.Message
	for _, id := range ids {
		if msg, ok := f.msgs[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) ListByDocument(_ context.Context, _ string) ([]*model.Message, error) {
	return nil, nil
}

// fakeDispatcher records dispatched message ids.
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	full       bool
}

func (f *fakeDispatcher) Dispatch(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.dispatched = append(f.dispatched, messageID)
	return true
}

func newAnalysisService(t *testing.T, tasks *fakeTaskRepo, msgs *fakeMessageRepo, d Dispatcher) *AnalysisService {
	t.Helper()
	svc, err := NewAnalysisService(AnalysisServiceOptions{
		Tasks:      tasks,
		Messages:   msgs,
		Dispatcher: d,
	})
	require.NoError(t, err)
	return svc
}

func TestSubmitMessagesDeduplicates(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1", "m2")
	dispatcher := &fakeDispatcher{}
	svc := newAnalysisService(t, tasks, msgs, dispatcher)
	ctx := context.Background()

	first, err := svc.SubmitMessages(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.NotNil(t, first[0].Record)
	assert.NotNil(t, first[1].Record)

	// Resubmission yields no pairs: the tasks already exist.
	second, err := svc.SubmitMessages(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Empty(t, second)

	// Only the first submission queues jobs.
	assert.Equal(t, []string{"m1", "m2"}, dispatcher.dispatched)
	assert.Len(t, tasks.tasks, 2)
}

func TestResubmitCannotOverwriteResult(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1")
	svc := newAnalysisService(t, tasks, msgs, nil)
	ctx := context.Background()

	out, err := svc.SubmitMessages(ctx, []string{"m1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, out[0].Record.Confirm(ctx, json.RawMessage(`{"risk":0.1}`)))

	// A later submission of the completed message hands out no record, so
	// there is no handle through which the result could be rewritten.
	resubmitted, err := svc.SubmitMessages(ctx, []string{"m1"})
	require.NoError(t, err)
	assert.Empty(t, resubmitted)

	task, err := tasks.GetByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk":0.1}`, string(task.Result))
}

func TestSubmitMessagesConcurrent(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1")
	dispatcher := &fakeDispatcher{}
	svc := newAnalysisService(t, tasks, msgs, dispatcher)

	const goroutines = 16
	var wg sync.WaitGroup
	pairCount := make(chan int, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.SubmitMessages(context.Background(), []string{"m1"})
			if err == nil {
				pairCount <- len(out)
			}
		}()
	}
	wg.Wait()
	close(pairCount)

	created := 0
	for n := range pairCount {
		created += n
	}
	assert.Equal(t, 1, created, "exactly one submission creates the task")
	assert.Len(t, tasks.tasks, 1)
}

func TestSubmitMessagesUnknownMessage(t *testing.T) {
	svc := newAnalysisService(t, newFakeTaskRepo(), newFakeMessageRepo("m1"), nil)

	_, err := svc.SubmitMessages(context.Background(), []string{"m1", "ghost"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestProgress(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1", "m2", "m3", "m4")
	svc := newAnalysisService(t, tasks, msgs, nil)
	ctx := context.Background()

	// Nothing submitted: nothing to wait for.
	progress, err := svc.Progress(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, progress, 1e-9)

	_, err = svc.SubmitMessages(ctx, []string{"m1", "m2", "m3", "m4"})
	require.NoError(t, err)

	progress, err = svc.Progress(ctx, []string{"m1", "m2", "m3", "m4"})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, progress, 1e-9)

	require.NoError(t, tasks.UpdateResultByMessageID(ctx, "m1", json.RawMessage(`{"risk":0}`)))
	require.NoError(t, tasks.UpdateResultByMessageID(ctx, "m2", json.RawMessage(`{"risk":0}`)))
	require.NoError(t, tasks.UpdateResultByMessageID(ctx, "m3", json.RawMessage(`{"risk":0}`)))

	progress, err = svc.Progress(ctx, []string{"m1", "m2", "m3", "m4"})
	require.NoError(t, err)
	assert.InDelta(t, 75.0, progress, 1e-9)
}

func TestResultsGateOnPending(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1", "m2")
	svc := newAnalysisService(t, tasks, msgs, nil)
	ctx := context.Background()

	_, err := svc.SubmitMessages(ctx, []string{"m1", "m2"})
	require.NoError(t, err)

	results, ready, err := svc.Results(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Nil(t, results, "no partial results while any task is pending")

	require.NoError(t, tasks.UpdateResultByMessageID(ctx, "m1", json.RawMessage(`{"risk":0.5}`)))

	_, ready, err = svc.Results(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, tasks.UpdateResultByMessageID(ctx, "m2", json.RawMessage(`{"risk":-0.5}`)))

	results, ready, err = svc.Results(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	assert.True(t, ready)
	require.Len(t, results, 2)
	assert.InDelta(t, 0.5, results[0].Risk, 1e-9)
	assert.InDelta(t, -0.5, results[1].Risk, 1e-9)
}

func TestResultsMissingTaskErrors(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1", "m2")
	svc := newAnalysisService(t, tasks, msgs, nil)
	ctx := context.Background()

	_, err := svc.SubmitMessages(ctx, []string{"m1"})
	require.NoError(t, err)
	require.NoError(t, tasks.UpdateResultByMessageID(ctx, "m1", json.RawMessage(`{"risk":0.5}`)))

	// m2 was never submitted: the result list must not silently shrink.
	results, _, err := svc.Results(ctx, []string{"m1", "m2"})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Nil(t, results)
}

func TestWaitAllReturnsOnceComplete(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1")
	svc := newAnalysisService(t, tasks, msgs, nil)
	ctx := context.Background()

	_, err := svc.SubmitMessages(ctx, []string{"m1"})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = tasks.UpdateResultByMessageID(ctx, "m1", json.RawMessage(`{"risk":1}`))
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	results, err := svc.WaitAll(waitCtx, []string{"m1"}, 5*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Risk, 1e-9)
}

func TestWaitAllHonorsContext(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1")
	svc := newAnalysisService(t, tasks, msgs, nil)
	ctx := context.Background()

	_, err := svc.SubmitMessages(ctx, []string{"m1"})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = svc.WaitAll(waitCtx, []string{"m1"}, 5*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTimeout, apperrors.GetCode(err))
}

func TestTaskRecordConfirmAfterDeleteIsNoop(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1")
	svc := newAnalysisService(t, tasks, msgs, nil)
	ctx := context.Background()

	out, err := svc.SubmitMessages(ctx, []string{"m1"})
	require.NoError(t, err)

	// Simulate the row vanishing between submission and confirmation.
	tasks.mu.Lock()
	delete(tasks.tasks, "m1")
	tasks.mu.Unlock()

	assert.NoError(t, out[0].Record.Confirm(ctx, json.RawMessage(`{"risk":0}`)))
}

func TestResubmitStale(t *testing.T) {
	tasks := newFakeTaskRepo()
	msgs := newFakeMessageRepo("m1", "m2")
	dispatcher := &fakeDispatcher{}
	svc := newAnalysisService(t, tasks, msgs, dispatcher)
	ctx := context.Background()

	_, err := svc.SubmitMessages(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	require.NoError(t, tasks.UpdateResultByMessageID(ctx, "m1", json.RawMessage(`{"risk":0}`)))

	dispatcher.mu.Lock()
	dispatcher.dispatched = nil
	dispatcher.mu.Unlock()

	requeued, err := svc.ResubmitStale(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, []string{"m2"}, dispatcher.dispatched)
}
