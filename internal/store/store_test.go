package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintenance-query-agent/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAdminUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateAdminUser(ctx, "admin", "hash-1", true)
	require.NoError(t, err)
	assert.True(t, created)

	// Seeding again must not overwrite the existing credential.
	created, err = s.CreateAdminUser(ctx, "admin", "hash-2", false)
	require.NoError(t, err)
	assert.False(t, created)

	user, err := s.GetAdminUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", user.PasswordHash)
	assert.True(t, user.MustChangePassword)

	require.NoError(t, s.UpdateAdminPassword(ctx, "admin", "hash-3"))
	user, err = s.GetAdminUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash-3", user.PasswordHash)
	assert.False(t, user.MustChangePassword)

	_, err = s.GetAdminUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateAdminPassword(ctx, "nobody", "hash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddDocument(ctx, "pump_manual.pdf")
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "pump_manual.pdf", docs[0].Filename)
	assert.Equal(t, models.StatusPending, docs[0].Status)

	ready, err := s.CountReadyDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ready)

	require.NoError(t, s.SetDocumentStatus(ctx, id, models.StatusReady, 12))
	docs, err = s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, docs[0].Status)
	assert.Equal(t, 12, docs[0].ChunksCount)

	ready, err = s.CountReadyDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ready)

	err = s.SetDocumentStatus(ctx, 999, models.StatusFailed, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChunkRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.AddDocument(ctx, "press_manual.docx")
	require.NoError(t, err)

	chunk := models.Chunk{
		ID:         "chunk-1",
		DocumentID: docID,
		Ordinal:    0,
		Text:       "Release hydraulic pressure before opening the valve block.",
		Embedding:  []float32{0.25, -1.5, 3.75, 0},
	}
	require.NoError(t, s.AddChunk(ctx, chunk))

	text, filename, err := s.GetChunkExcerpt(ctx, "chunk-1")
	require.NoError(t, err)
	assert.Equal(t, chunk.Text, text)
	assert.Equal(t, "press_manual.docx", filename)

	count, err := s.CountChunks(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, _, err = s.GetChunkExcerpt(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAllChunkVectors_OrderAndValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.AddDocument(ctx, "manual.txt")
	require.NoError(t, err)

	embeddings := [][]float32{
		{1, 2, 3},
		{-0.5, 0.5, 100},
		{0, 0, 0},
	}
	for i, emb := range embeddings {
		require.NoError(t, s.AddChunk(ctx, models.Chunk{
			ID:         []string{"a", "b", "c"}[i],
			DocumentID: docID,
			Ordinal:    i,
			Text:       "text",
			Embedding:  emb,
		}))
	}

	vectors, err := s.AllChunkVectors(ctx)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, "a", vectors[0].ID)
	assert.Equal(t, "b", vectors[1].ID)
	assert.Equal(t, "c", vectors[2].ID)
	for i, v := range vectors {
		assert.Equal(t, embeddings[i], v.Embedding)
	}
}

func TestHistoryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.AddHistory(ctx, models.History{
		Query:         "how often to grease bearings?",
		Answer:        "Every 200 hours.",
		Sources:       []models.Source{{Doc: "manual.pdf", Excerpt: "grease every 200 hours"}},
		UsedDocuments: true,
	})
	require.NoError(t, err)

	_, err = s.AddHistory(ctx, models.History{
		Query:         "what oil grade?",
		Answer:        "ISO VG 46 is common.",
		Sources:       []models.Source{},
		UsedDocuments: false,
	})
	require.NoError(t, err)

	records, err := s.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, "what oil grade?", records[0].Query)
	assert.False(t, records[0].UsedDocuments)
	assert.Equal(t, "how often to grease bearings?", records[1].Query)
	assert.True(t, records[1].UsedDocuments)
	require.Len(t, records[1].Sources, 1)
	assert.Equal(t, "manual.pdf", records[1].Sources[0].Doc)

	limited, err := s.ListHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	all, err := s.ListHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	deleted, err := s.DeleteHistory(ctx, first)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteHistory(ctx, first)
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, s.ClearHistory(ctx))
	records, err = s.ListHistory(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTrimHistoryBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddHistory(ctx, models.History{Query: "q", Answer: "a", Sources: []models.Source{}})
	require.NoError(t, err)

	// A cutoff in the past deletes nothing.
	n, err := s.TrimHistoryBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// A cutoff in the future removes the record.
	n, err = s.TrimHistoryBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
