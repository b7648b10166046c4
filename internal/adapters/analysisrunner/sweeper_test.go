package analysisrunner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convolens/convolens/internal/service"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingDispatcher) Dispatch(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, messageID)
	return true
}

func (r *recordingDispatcher) dispatched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestSweeperRequeuesStaleTasks(t *testing.T) {
	tasks := newMemTaskRepo("stale-1", "stale-2")
	msgs := newMemMessageRepo(map[string]string{"stale-1": "a", "stale-2": "b"})
	dispatcher := &recordingDispatcher{}

	svc, err := service.NewAnalysisService(service.AnalysisServiceOptions{
		Tasks:      tasks,
		Messages:   msgs,
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)

	sweeper, err := NewSweeper(SweeperOptions{
		Analysis:   svc,
		Interval:   10 * time.Millisecond,
		StaleAfter: time.Nanosecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(dispatcher.dispatched()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	ids := dispatcher.dispatched()
	assert.Contains(t, ids, "stale-1")
	assert.Contains(t, ids, "stale-2")
}

func TestNewSweeperRequiresService(t *testing.T) {
	_, err := NewSweeper(SweeperOptions{})
	assert.Error(t, err)
}
