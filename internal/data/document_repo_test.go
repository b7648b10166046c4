package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convolens/convolens/internal/domain/model"
	apperrors "github.com/convolens/convolens/internal/errors"
	"github.com/convolens/convolens/internal/testutil"
)

func createTestDocument(t *testing.T, repo *DocumentRepo) *model.Document {
	t.Helper()
	doc, err := repo.Create(context.Background(), &model.CreateDocumentRequest{
		DisplayName: "support-chat.json",
		Owner:       "tester",
		ArtifactID:  "art-1",
	})
	require.NoError(t, err)
	return doc
}

func TestDocumentRepoCreateValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewDocumentRepo(db)
		ctx := context.Background()

		_, err := repo.Create(ctx, &model.CreateDocumentRequest{Owner: "o", ArtifactID: "a"})
		assert.True(t, apperrors.IsValidation(err))

		_, err = repo.Create(ctx, &model.CreateDocumentRequest{DisplayName: "d", ArtifactID: "a"})
		assert.True(t, apperrors.IsValidation(err))

		_, err = repo.Create(ctx, &model.CreateDocumentRequest{DisplayName: "d", Owner: "o"})
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestDocumentRepoDraftLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewDocumentRepo(db)
		ctx := context.Background()
		doc := createTestDocument(t, repo)

		draft, err := repo.GetDraftByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.False(t, draft.Accepted)

		require.NoError(t, repo.MarkAccepted(ctx, doc.ID))

		// Accepted documents are no longer visible as drafts.
		_, err = repo.GetDraftByID(ctx, doc.ID)
		assert.True(t, apperrors.IsNotFound(err))

		got, err := repo.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.True(t, got.Accepted)

		// The transition is one-way.
		err = repo.MarkAccepted(ctx, doc.ID)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestDocumentRepoSetEnrichment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewDocumentRepo(db)
		ctx := context.Background()
		doc := createTestDocument(t, repo)

		payload := json.RawMessage(`{"analyser":"ok"}`)
		require.NoError(t, repo.SetEnrichment(ctx, doc.ID, payload))

		got, err := repo.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.JSONEq(t, string(payload), string(got.Enrichment))

		err = repo.SetEnrichment(ctx, "missing", payload)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestDocumentRepoDeleteCascades(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		ids := seedMessages(t, db, 2)

		tasks := NewTaskRepo(db)
		for _, id := range ids {
			_, err := tasks.CreateIfAbsent(ctx, id)
			require.NoError(t, err)
		}

		msgs := NewMessageRepo(db)
		msg, err := msgs.GetByID(ctx, ids[0])
		require.NoError(t, err)

		repo := NewDocumentRepo(db)
		existed, err := repo.Delete(ctx, msg.DocumentID)
		require.NoError(t, err)
		assert.True(t, existed)

		_, err = msgs.GetByID(ctx, ids[0])
		assert.True(t, apperrors.IsNotFound(err))
		_, err = tasks.GetByMessageID(ctx, ids[0])
		assert.True(t, apperrors.IsNotFound(err))

		existed, err = repo.Delete(ctx, msg.DocumentID)
		require.NoError(t, err)
		assert.False(t, existed)
	})
}

func TestDocumentRepoPurgeByArtifactID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewDocumentRepo(db)
		ctx := context.Background()

		for range 2 {
			_, err := repo.Create(ctx, &model.CreateDocumentRequest{
				DisplayName: "dup.json",
				Owner:       "tester",
				ArtifactID:  "art-dup",
			})
			require.NoError(t, err)
		}
		other := createTestDocument(t, repo)

		purged, err := repo.PurgeByArtifactID(ctx, "art-dup")
		require.NoError(t, err)
		assert.Equal(t, 2, purged)

		_, err = repo.GetByID(ctx, other.ID)
		assert.NoError(t, err)
	})
}
