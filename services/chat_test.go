package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintenance-query-agent/models"
)

type stubRetriever struct {
	sources []models.Source
	err     error
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, _ int) ([]models.Source, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sources, nil
}

type stubLLM struct {
	answer  string
	err     error
	prompts []string
}

func (s *stubLLM) GenerateAnswer(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type recordingHistory struct {
	records []models.History
	err     error
}

func (r *recordingHistory) AddHistory(_ context.Context, h models.History) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.records = append(r.records, h)
	return int64(len(r.records)), nil
}

func TestAnswer_WithDocuments(t *testing.T) {
	retriever := &stubRetriever{sources: []models.Source{
		{Doc: "pump_manual.pdf", Excerpt: "Change the oil every 500 hours."},
	}}
	llm := &stubLLM{answer: "Change the oil every 500 hours (pump_manual.pdf)."}
	history := &recordingHistory{}
	chat := NewChatService(retriever, llm, history)

	resp, err := chat.Answer(context.Background(), "when should I change the pump oil?")
	require.NoError(t, err)

	assert.True(t, resp.UsedDocuments)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "pump_manual.pdf", resp.Sources[0].Doc)
	assert.Equal(t, llm.answer, resp.Answer)

	// The prompt must carry the excerpt under its document citation.
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "[From pump_manual.pdf]")
	assert.Contains(t, llm.prompts[0], "Change the oil every 500 hours.")
	assert.Contains(t, llm.prompts[0], "when should I change the pump oil?")

	require.Len(t, history.records, 1)
	assert.True(t, history.records[0].UsedDocuments)
	assert.Equal(t, resp.Answer, history.records[0].Answer)
}

func TestAnswer_NoDocumentsFallsBackToGeneralKnowledge(t *testing.T) {
	retriever := &stubRetriever{sources: []models.Source{}}
	llm := &stubLLM{answer: "In general, follow the manufacturer's lubrication schedule."}
	history := &recordingHistory{}
	chat := NewChatService(retriever, llm, history)

	resp, err := chat.Answer(context.Background(), "how often should bearings be greased?")
	require.NoError(t, err)

	assert.False(t, resp.UsedDocuments)
	require.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "best practices")
	assert.NotContains(t, llm.prompts[0], "[From")

	require.Len(t, history.records, 1)
	assert.False(t, history.records[0].UsedDocuments)
}

func TestAnswer_RetrieverErrorSurfaces(t *testing.T) {
	retrieveErr := errors.New("embedding provider down")
	chat := NewChatService(&stubRetriever{err: retrieveErr}, &stubLLM{}, &recordingHistory{})

	_, err := chat.Answer(context.Background(), "anything")
	assert.ErrorIs(t, err, retrieveErr)
}

func TestAnswer_LLMErrorLeavesNoHistory(t *testing.T) {
	llmErr := errors.New("model overloaded")
	history := &recordingHistory{}
	chat := NewChatService(&stubRetriever{}, &stubLLM{err: llmErr}, history)

	_, err := chat.Answer(context.Background(), "anything")
	assert.ErrorIs(t, err, llmErr)
	assert.Empty(t, history.records)
}

func TestAnswer_HistoryFailureDoesNotFailRequest(t *testing.T) {
	history := &recordingHistory{err: errors.New("disk full")}
	chat := NewChatService(&stubRetriever{}, &stubLLM{answer: "ok"}, history)

	resp, err := chat.Answer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Answer)
}

// End to end through the real pipeline: ingest a document, then ask a
// question whose nearest chunk comes from it.
func TestAnswer_EndToEndWithPipeline(t *testing.T) {
	st := newFakeStore()
	st.filename = "pump_maintenance.pdf"
	emb := &fakeEmbedder{dim: 8}
	pipeline, _ := newTestPipeline(t, st, emb)

	text := strings.Repeat("Check the pump oil level weekly and replace the filter. ", 3)
	n, err := pipeline.Ingest(context.Background(), 1, text)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	st.readyCount = 1

	llm := &stubLLM{answer: "Check the oil weekly (pump_maintenance.pdf)."}
	history := &recordingHistory{}
	chat := NewChatService(pipeline, llm, history)

	resp, err := chat.Answer(context.Background(), "Check the pump oil")
	require.NoError(t, err)

	assert.True(t, resp.UsedDocuments)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "pump_maintenance.pdf", resp.Sources[0].Doc)
	require.Len(t, history.records, 1)
	assert.True(t, history.records[0].UsedDocuments)
}

func TestAnswer_EndToEndZeroDocuments(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{dim: 8}
	pipeline, _ := newTestPipeline(t, st, emb)

	llm := &stubLLM{answer: "General guidance only."}
	history := &recordingHistory{}
	chat := NewChatService(pipeline, llm, history)

	resp, err := chat.Answer(context.Background(), "how do I calibrate the sensor?")
	require.NoError(t, err)

	assert.False(t, resp.UsedDocuments)
	require.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0, emb.queryCalls)
}
