package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // optional, for OpenAI-compatible vendors
	ChatModel      string
	EmbeddingModel string
	Dimensions     int
	MaxRetries     int
	// RequestsPerSecond caps outgoing calls across chat and embeddings; 0 disables.
	RequestsPerSecond float64
}

// OpenAIGateway implements Gateway on the OpenAI API.
type OpenAIGateway struct {
	client  *openai.Client
	cfg     OpenAIConfig
	limiter *rate.Limiter
	log     *logrus.Logger
}

func NewOpenAIGateway(cfg OpenAIConfig, log *logrus.Logger) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if log == nil {
		log = logrus.New()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	return &OpenAIGateway{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		limiter: limiter,
		log:     log,
	}, nil
}

func (g *OpenAIGateway) CompleteChat(ctx context.Context, req ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = g.cfg.ChatModel
	}
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	var out string
	err := g.doWithRetry(ctx, "chat", func() error {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Messages:    msgs,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return ErrEmptyResponse
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", model, err)
	}
	return out, nil
}

func (g *OpenAIGateway) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.doWithRetry(ctx, "embedding", func() error {
		resp, err := g.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      []string{text},
			Model:      openai.EmbeddingModel(g.cfg.EmbeddingModel),
			Dimensions: g.cfg.Dimensions,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return ErrEmptyResponse
		}
		out = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding (%s): %w", g.cfg.EmbeddingModel, err)
	}
	return out, nil
}

// doWithRetry retries rate limits and server errors with exponential backoff.
func (g *OpenAIGateway) doWithRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == g.cfg.MaxRetries-1 {
			break
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		g.log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).WithError(lastErr).Debug("ai request failed, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, ErrEmptyResponse)
}
