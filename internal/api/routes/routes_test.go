package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/vibematch/internal/api/handlers"
	"github.com/yoockh/vibematch/internal/cache"
	"github.com/yoockh/vibematch/internal/metrics"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/providers/llm"
	"github.com/yoockh/vibematch/internal/repositories/memory"
	"github.com/yoockh/vibematch/internal/services"
	"github.com/yoockh/vibematch/internal/utils"
	"github.com/yoockh/vibematch/internal/workers"
)

type stubGateway struct{}

func (stubGateway) CompleteChat(_ context.Context, req llm.ChatRequest) (string, error) {
	return `{"shortBio":"s","mainActivity":"Founder","interests":["AI"],"country":"Spain","city":"Madrid"}`, nil
}

func (stubGateway) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type server struct {
	router *gin.Engine
	store  *memory.Store
	worker *workers.EmbeddingWorker
}

// newServer wires the real handlers over the memory store. admin controls
// whether the admin guard lets requests through.
func newServer(t *testing.T, admin bool) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memory.NewStore()
	gw := stubGateway{}
	m := metrics.New("test")

	queue := services.NewQueueService(store.Queue(), services.QueueOptions{}, log)
	parser := services.NewParsingService(store.Profiles(), gw, services.ParsingOptions{}, log)
	emb := services.NewEmbeddingService(store.Profiles(), store.Embeddings(), gw, cache.Nop{}, services.EmbeddingOptions{Dimensions: 3}, log)
	composer := services.NewCompositionService(gw, services.CompositionOptions{}, m, log)
	countries := services.NewCountryService(store.Profiles(), store.Countries(), cache.Nop{}, 0, log)
	journal := services.NewJournalService(nil, log)

	worker := &workers.EmbeddingWorker{
		Queue: queue, Parser: parser, Embeddings: emb, Countries: countries, Journal: journal,
		Logger: log, SyncCountries: true,
	}

	guard := func(c *gin.Context) {
		if !admin {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}

	r := gin.New()
	RegisterRoutes(r, Deps{
		Profile: handlers.NewProfileHandler(services.NewProfileService(store.Profiles(), queue, nil, log), parser),
		Queue:   handlers.NewQueueHandler(queue, journal, worker),
		Search: handlers.NewSearchHandler(
			services.NewSearchService(store.Profiles(), store.Embeddings(), emb, composer, m, log),
			services.NewMatchService(store.Profiles(), store.Embeddings(), emb, composer, m, log),
		),
		Country: handlers.NewCountryHandler(countries),
		WS:      handlers.NewWSHandler(nil, log),
		Metrics: m.Handler(),
		Admin:   []gin.HandlerFunc{guard},
	})
	return &server{router: r, store: store, worker: worker}
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestPing(t *testing.T) {
	s := newServer(t, false)
	w := s.do(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestProfileLifecycleThroughWorker(t *testing.T) {
	s := newServer(t, true)

	w := s.do(t, http.MethodPost, "/api/profiles", models.ProfileInput{ID: 1, Name: "Ann", Bio: "Builds AI tools", Skills: []string{"Go"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[map[string]any](t, w)
	assert.Equal(t, []any{"Go"}, view["skills"])

	w = s.do(t, http.MethodPost, "/api/profiles", models.ProfileInput{ID: 1, Name: "Ann"})
	assert.Equal(t, http.StatusConflict, w.Code)

	st := decode[models.QueueStatus](t, s.do(t, http.MethodGet, "/api/embedding-queue/status", nil))
	assert.EqualValues(t, 1, st.ProfilesInQueue)
	assert.Equal(t, "idle", st.WorkerState)

	w = s.do(t, http.MethodPost, "/api/embedding-queue/run-once", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["processed"])

	search := decode[models.RagSearchResponse](t, s.do(t, http.MethodGet, "/api/rag-search/search?q=ai+tools&top=100", nil))
	require.Len(t, search.Results, 1)
	assert.Equal(t, 1, search.Results[0].ProfileID)
	assert.Equal(t, "Madrid", search.Results[0].City)
	assert.Equal(t, models.EnrichmentAI, search.NarrativeStatus)

	w = s.do(t, http.MethodPost, "/api/user-match/match", map[string]any{"main_activity": "Founder", "interests": "AI", "include_ai_summary": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	match := decode[models.MatchResponse](t, w)
	require.Len(t, match.Matches, 1)
	assert.InDelta(t, 1.0, match.Matches[0].Similarity, 1e-6)

	countries := decode[map[string]any](t, s.do(t, http.MethodGet, "/api/countries", nil))
	assert.EqualValues(t, 1, countries["total"])

	w = s.do(t, http.MethodDelete, "/api/profiles/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/api/profiles/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, utils.CodeNotFound, decode[handlers.APIError](t, w).Code)
}

func TestSearchValidation(t *testing.T) {
	s := newServer(t, false)

	w := s.do(t, http.MethodPost, "/api/rag-search/search", map[string]any{"query": "x", "top_k": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/rag-search/search", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/rag-search/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/user-match/match", map[string]any{"main_activity": "x", "interests": "y", "top_k": 21})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/profiles/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmptySearchReturnsCannedNarrative(t *testing.T) {
	s := newServer(t, false)

	resp := decode[models.RagSearchResponse](t, s.do(t, http.MethodPost, "/api/rag-search/search", map[string]any{"query": "anyone"}))
	assert.Empty(t, resp.Results)
	assert.Equal(t, services.NoMatchesNarrative, resp.Narrative)
}

func TestImportRequiresAdmin(t *testing.T) {
	s := newServer(t, false)
	w := s.do(t, http.MethodPost, "/api/profiles/import", []models.ProfileInput{{ID: 1}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/embedding-queue/clear", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestImportAcceptsWrappedPayload(t *testing.T) {
	s := newServer(t, true)

	w := s.do(t, http.MethodPost, "/api/profiles/import", map[string]any{
		"profiles": []models.ProfileInput{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[models.BatchImportResult](t, w)
	assert.Equal(t, 2, res.Created)

	list := decode[map[string]any](t, s.do(t, http.MethodGet, "/api/profiles?limit=1", nil))
	assert.EqualValues(t, 2, list["total"])
	assert.Len(t, list["profiles"], 1)
}

func TestJournalWithoutMongo(t *testing.T) {
	s := newServer(t, true)
	w := s.do(t, http.MethodGet, "/api/embedding-queue/journal", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodGet, "/ws/embedding-queue", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, false)
	w := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
