package ai

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	genai "github.com/google/generative-ai-go/genai"
)

// EmbedDocuments returns one embedding per input text, preserving order.
// Inputs are sent as a single batch request with the retrieval-document
// task type.
func (gc *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_documents")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", gc.embeddingsModel),
		attribute.Int("gemini.batch_size", len(texts)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	model := gc.client.EmbeddingModel(gc.embeddingsModel)
	model.TaskType = genai.TaskTypeRetrievalDocument

	batch := model.NewBatch()
	for _, text := range texts {
		batch = batch.AddContent(genai.Text(text))
	}

	resp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			ErrEmbeddingUnavailable, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != gc.vectorDim {
			return nil, fmt.Errorf("%w: unexpected embedding dimension", ErrEmbeddingUnavailable)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// EmbedQuery embeds a single user query with the retrieval-query task type.
func (gc *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_query")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", gc.embeddingsModel))

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	model := gc.client.EmbeddingModel(gc.embeddingsModel)
	model.TaskType = genai.TaskTypeRetrievalQuery

	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) != gc.vectorDim {
		return nil, fmt.Errorf("%w: unexpected embedding dimension", ErrEmbeddingUnavailable)
	}

	return resp.Embedding.Values, nil
}
