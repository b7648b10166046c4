package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convolens/convolens/internal/domain/model"
	apperrors "github.com/convolens/convolens/internal/errors"
	"github.com/convolens/convolens/internal/testutil"
)

// seedMessages inserts a document with n messages and returns the message ids.
func seedMessages(t *testing.T, db *sql.DB, n int) []string {
	t.Helper()
	ctx := context.Background()

	docs := NewDocumentRepo(db)
	doc, err := docs.Create(ctx, &model.CreateDocumentRequest{
		DisplayName: "fixture",
		Owner:       "tester",
		ArtifactID:  "art-fixture",
	})
	require.NoError(t, err)

	msgs := make([]*model.Message, n)
	for i := range msgs {
		msgs[i] = &model.Message{
			DocumentID: doc.ID,
			Author:     "author",
			SentAt:     time.Now().Add(time.Duration(i) * time.Minute),
			Body:       "body",
		}
	}
	require.NoError(t, NewMessageRepo(db).CreateBatch(ctx, msgs))

	ids := make([]string, n)
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	return ids
}

func TestTaskRepoCreateIfAbsent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		ids := seedMessages(t, db, 1)
		repo := NewTaskRepo(db)

		created, err := repo.CreateIfAbsent(ctx, ids[0])
		require.NoError(t, err)
		assert.True(t, created)

		created, err = repo.CreateIfAbsent(ctx, ids[0])
		require.NoError(t, err)
		assert.False(t, created, "second submission finds the existing task")

		task, err := repo.GetByMessageID(ctx, ids[0])
		require.NoError(t, err)
		assert.True(t, task.Pending())
	})
}

func TestTaskRepoConcurrentCreate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		ids := seedMessages(t, db, 1)
		repo := NewTaskRepo(db)

		const goroutines = 8
		var wg sync.WaitGroup
		results := make(chan bool, goroutines)
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				created, err := repo.CreateIfAbsent(ctx, ids[0])
				if err == nil {
					results <- created
				}
			}()
		}
		wg.Wait()
		close(results)

		created := 0
		for c := range results {
			if c {
				created++
			}
		}
		assert.Equal(t, 1, created, "exactly one concurrent insert wins")
	})
}

func TestTaskRepoCountsAndPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		ids := seedMessages(t, db, 3)
		repo := NewTaskRepo(db)

		for _, id := range ids {
			_, err := repo.CreateIfAbsent(ctx, id)
			require.NoError(t, err)
		}

		total, completed, err := repo.CountByMessageIDs(ctx, ids)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, 0, completed)

		require.NoError(t, repo.UpdateResultByMessageID(ctx, ids[0], json.RawMessage(`{"risk":0.2}`)))

		total, completed, err = repo.CountByMessageIDs(ctx, ids)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, 1, completed)

		pending, err := repo.PendingExists(ctx, ids)
		require.NoError(t, err)
		assert.True(t, pending)

		for _, id := range ids[1:] {
			require.NoError(t, repo.UpdateResultByMessageID(ctx, id, json.RawMessage(`{"risk":0}`)))
		}

		pending, err = repo.PendingExists(ctx, ids)
		require.NoError(t, err)
		assert.False(t, pending)
	})
}

func TestTaskRepoFindStalePending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		ids := seedMessages(t, db, 2)

		// Backdate one task via a fixed clock.
		old := NewTaskRepoWithTimeProvider(db, NewFixedTimeProvider(time.Now().Add(-time.Hour)))
		_, err := old.CreateIfAbsent(ctx, ids[0])
		require.NoError(t, err)

		repo := NewTaskRepo(db)
		_, err = repo.CreateIfAbsent(ctx, ids[1])
		require.NoError(t, err)

		stale, err := repo.FindStalePending(ctx, 10*time.Minute, 100)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[0]}, stale)
	})
}

func TestTaskRepoGetMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewTaskRepo(db)
		_, err := repo.GetByMessageID(context.Background(), "nope")
		assert.True(t, apperrors.IsNotFound(err))
	})
}
