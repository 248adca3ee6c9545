package services

import (
	"context"
	"fmt"
	"strings"

	"maintenance-query-agent/internal/logger"
	"maintenance-query-agent/models"
)

// topKChunks is how many excerpts ground an answer.
const topKChunks = 3

// LLM generates an answer for a fully built prompt.
type LLM interface {
	GenerateAnswer(ctx context.Context, prompt string) (string, error)
}

// Retriever returns the most relevant excerpts for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.Source, error)
}

// HistoryStore persists chat exchanges.
type HistoryStore interface {
	AddHistory(ctx context.Context, h models.History) (int64, error)
}

// ChatService answers maintenance questions, grounding them in retrieved
// manual excerpts when any documents are ingested.
type ChatService struct {
	retriever Retriever
	llm       LLM
	history   HistoryStore
}

func NewChatService(retriever Retriever, llm LLM, history HistoryStore) *ChatService {
	return &ChatService{
		retriever: retriever,
		llm:       llm,
		history:   history,
	}
}

// Answer retrieves the top excerpts for the query and prompts the model.
// With excerpts available the model is instructed to answer only from them
// and cite sources; with none it falls back to general knowledge and the
// empty Sources slice signals that explicitly.
func (s *ChatService) Answer(ctx context.Context, query string) (*models.ChatResponse, error) {
	sources, err := s.retriever.Retrieve(ctx, query, topKChunks)
	if err != nil {
		return nil, err
	}

	usedDocuments := len(sources) > 0

	var prompt string
	if usedDocuments {
		prompt = buildDocumentPrompt(query, sources)
	} else {
		prompt = buildGeneralPrompt(query)
	}

	answer, err := s.llm.GenerateAnswer(ctx, prompt)
	if err != nil {
		return nil, err
	}

	record := models.History{
		Query:         query,
		Answer:        answer,
		Sources:       sources,
		UsedDocuments: usedDocuments,
	}
	if _, err := s.history.AddHistory(ctx, record); err != nil {
		// The answer was generated; losing the history row is not fatal.
		logger.Error("Failed to persist history record", "error", err)
	}

	return &models.ChatResponse{
		Answer:        answer,
		Sources:       sources,
		UsedDocuments: usedDocuments,
	}, nil
}

func buildDocumentPrompt(query string, sources []models.Source) string {
	var contextParts []string
	for _, src := range sources {
		contextParts = append(contextParts, fmt.Sprintf("[From %s]\n%s", src.Doc, src.Excerpt))
	}

	return fmt.Sprintf(`You are an expert in manufacturing equipment maintenance.

Answer the user query using ONLY the provided document excerpts.
Cite document names in parentheses after claims.
If insufficient information is provided, say you don't have enough information.

Context:
%s

Question: %s

Answer:`, strings.Join(contextParts, "\n\n"), query)
}

func buildGeneralPrompt(query string) string {
	return fmt.Sprintf(`You are an expert in manufacturing equipment maintenance.

No documents are uploaded yet.
Provide a general answer based on best practices.
Keep your response clear, concise, and safety-focused.

Question: %s

Answer:`, query)
}
