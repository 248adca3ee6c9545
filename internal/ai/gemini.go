package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"maintenance-query-agent/internal/config"
	"maintenance-query-agent/internal/logger"
)

// Upstream failure classes. Callers map these to user-visible 5xx responses
// with generic messages; the detailed cause is logged here.
var (
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrLLMUnavailable       = errors.New("language model unavailable")
)

// requestTimeout bounds every Gemini call. A call runs to completion or
// failure within this window; there is no retry.
const requestTimeout = 30 * time.Second

// Client wraps the Gemini API for embeddings and answer generation, guarded
// by a circuit breaker and an RPM rate limiter.
type Client struct {
	client          *genai.Client
	breaker         *gobreaker.CircuitBreaker
	rateLimiter     *rate.Limiter
	generativeModel string
	embeddingsModel string
	vectorDim       int
}

type RateLimits struct {
	RPM int // Requests per minute
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10}
	case "tier1":
		return RateLimits{RPM: 1000}
	case "tier2":
		return RateLimits{RPM: 2000}
	default:
		return RateLimits{RPM: 10}
	}
}

func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	limits := getRateLimits(cfg.GeminiTier)
	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(limits.RPM/10, 1))

	return &Client{
		client:          client,
		breaker:         breaker,
		rateLimiter:     rateLimiter,
		generativeModel: cfg.GeminiModel,
		embeddingsModel: cfg.EmbeddingsModel,
		vectorDim:       cfg.VectorDim,
	}, nil
}

// GenerateAnswer sends the prompt to the generative model and returns its
// text response.
func (gc *Client) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_answer")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.generativeModel),
		attribute.Int("gemini.prompt_chars", len(prompt)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.generativeModel)
		model.SetTemperature(0.7)
		model.SetMaxOutputTokens(2048)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		logger.Error("Gemini generation failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	resp := result.(*genai.GenerateContentResponse)
	answer := collectText(resp)
	if answer == "" {
		span.SetAttributes(attribute.Bool("gemini.empty_response", true))
		return "", fmt.Errorf("%w: empty response", ErrLLMUnavailable)
	}

	span.SetAttributes(attribute.Int("gemini.answer_chars", len(answer)))
	return answer, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Close the client
func (gc *Client) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
