package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestGateway(t *testing.T, h http.HandlerFunc, cfg OpenAIConfig) *OpenAIGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.APIKey = "test"
	cfg.BaseURL = srv.URL + "/v1"
	g, err := NewOpenAIGateway(cfg, quiet())
	require.NoError(t, err)
	return g
}

func TestOpenAIGateway_EmbedText(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25,1]}],"model":"m"}`)
	}, OpenAIConfig{Dimensions: 3})

	vec, err := g.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, 1}, vec)
}

func TestOpenAIGateway_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}]}`)
	}, OpenAIConfig{MaxRetries: 2})

	out, err := g.CompleteChat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAIGateway_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad input","type":"invalid_request_error"}}`)
	}, OpenAIConfig{MaxRetries: 3})

	_, err := g.CompleteChat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestOpenAIGateway_RateLimitHonoursContext(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}],"model":"m"}`)
	}, OpenAIConfig{Dimensions: 1, RequestsPerSecond: 0.1})

	_, err := g.EmbedText(context.Background(), "first")
	require.NoError(t, err)

	// the bucket is empty for the next ten seconds
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.EmbedText(ctx, "second")
	require.Error(t, err)
}

func TestNewOpenAIGatewayRequiresKey(t *testing.T) {
	_, err := NewOpenAIGateway(OpenAIConfig{}, nil)
	assert.Error(t, err)
}
