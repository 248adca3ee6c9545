package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"maintenance-query-agent/internal/logger"
	"maintenance-query-agent/internal/store"
	"maintenance-query-agent/internal/vectorindex"
	"maintenance-query-agent/models"
)

// Gemini caps batch embedding requests at 100 contents.
const embedBatchSize = 100

// Embedder produces fixed-dimensionality vectors for texts.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// PipelineStore is the slice of the document store the pipeline needs.
type PipelineStore interface {
	SetDocumentStatus(ctx context.Context, id int64, status string, chunksCount int) error
	AddChunk(ctx context.Context, chunk models.Chunk) error
	CountReadyDocuments(ctx context.Context) (int64, error)
	GetChunkExcerpt(ctx context.Context, chunkID string) (text, filename string, err error)
}

// Pipeline orchestrates chunking, embedding, persistence and indexing for
// ingestion, and embedding plus nearest-neighbor lookup for retrieval.
type Pipeline struct {
	store    PipelineStore
	embedder Embedder
	index    *vectorindex.Index
	chunker  *Chunker
}

func NewPipeline(s PipelineStore, embedder Embedder, index *vectorindex.Index, chunker *Chunker) *Pipeline {
	return &Pipeline{
		store:    s,
		embedder: embedder,
		index:    index,
		chunker:  chunker,
	}
}

// Ingest processes raw extracted text for a document: chunk, embed, persist,
// index, then mark the document ready with its final chunk count. On any
// failure the document is marked failed and the error surfaces; chunks
// persisted before the failure remain (there is no cross-chunk rollback).
func (p *Pipeline) Ingest(ctx context.Context, documentID int64, rawText string) (int, error) {
	tracer := otel.Tracer("retrieval-pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.ingest")
	defer span.End()
	span.SetAttributes(attribute.Int64("document.id", documentID))

	if err := p.store.SetDocumentStatus(ctx, documentID, models.StatusProcessing, 0); err != nil {
		return 0, err
	}

	chunks := p.chunker.Chunk(rawText)
	span.SetAttributes(attribute.Int("document.chunks", len(chunks)))
	if len(chunks) == 0 {
		p.markFailed(ctx, documentID)
		return 0, ErrNoTextExtracted
	}

	processed := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors, err := p.embedder.EmbedDocuments(ctx, batch)
		if err != nil {
			p.markFailed(ctx, documentID)
			return processed, err
		}

		for i, text := range batch {
			chunk := models.Chunk{
				ID:         uuid.NewString(),
				DocumentID: documentID,
				Ordinal:    start + i,
				Text:       text,
				Embedding:  vectors[i],
			}
			if err := p.store.AddChunk(ctx, chunk); err != nil {
				p.markFailed(ctx, documentID)
				return processed, err
			}
			if err := p.index.Add(chunk.ID, chunk.Embedding); err != nil {
				p.markFailed(ctx, documentID)
				return processed, err
			}
			processed++
		}
	}

	if err := p.store.SetDocumentStatus(ctx, documentID, models.StatusReady, processed); err != nil {
		return processed, err
	}

	logger.Info("Document ingested", "document_id", documentID, "chunks", processed)
	return processed, nil
}

// Retrieve embeds the query and returns the k nearest chunks as cited
// excerpts. When no documents are ingested it returns empty immediately,
// before any embedding call.
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int) ([]models.Source, error) {
	tracer := otel.Tracer("retrieval-pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.retrieve")
	defer span.End()

	count, err := p.store.CountReadyDocuments(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		span.SetAttributes(attribute.Bool("retrieve.no_documents", true))
		return []models.Source{}, nil
	}

	vector, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	ids, err := p.index.Search(vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	sources := make([]models.Source, 0, len(ids))
	for _, id := range ids {
		text, filename, err := p.store.GetChunkExcerpt(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("Indexed chunk missing from store", "chunk_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sources = append(sources, models.Source{Doc: filename, Excerpt: text})
	}

	span.SetAttributes(attribute.Int("retrieve.results", len(sources)))
	return sources, nil
}

func (p *Pipeline) markFailed(ctx context.Context, documentID int64) {
	// The failure may be the request context being canceled (client gone);
	// the status write must still land or the document sticks at processing.
	ctx = context.WithoutCancel(ctx)
	if err := p.store.SetDocumentStatus(ctx, documentID, models.StatusFailed, 0); err != nil {
		logger.Error("Failed to mark document as failed", "document_id", documentID, "error", err)
	}
}
