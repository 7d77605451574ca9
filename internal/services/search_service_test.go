package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/vibematch/internal/cache"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories/memory"
	"github.com/yoockh/vibematch/internal/utils"
)

type searchFixture struct {
	store  *memory.Store
	emb    *fakeEmbedder
	chat   *fakeChat
	search SearchService
	match  MatchService
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()
	f := &searchFixture{
		store: memory.NewStore(),
		emb:   &fakeEmbedder{def: []float32{1, 0, 0}},
		chat:  &fakeChat{},
	}
	embSvc := NewEmbeddingService(f.store.Profiles(), f.store.Embeddings(), f.emb, cache.Nop{},
		EmbeddingOptions{Model: "m", Dimensions: 3}, quietLogger())
	composer := NewCompositionService(f.chat, CompositionOptions{NarrativeTimeout: time.Second}, nil, quietLogger())
	f.search = NewSearchService(f.store.Profiles(), f.store.Embeddings(), embSvc, composer, nil, quietLogger())
	f.match = NewMatchService(f.store.Profiles(), f.store.Embeddings(), embSvc, composer, nil, quietLogger())
	return f
}

// seed stores profiles 1..4 with both embeddings at decreasing similarity to
// the default query vector. Only profile 2 lives in Spain.
func (f *searchFixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	vecs := map[int][]float32{
		1: {1, 0, 0},
		2: {1, 1, 0},
		3: {0, 1, 0},
		4: {-1, 0, 0},
	}
	names := map[int]string{1: "Ann", 2: "Bob", 3: "Cid", 4: "Dee"}
	for id := 1; id <= 4; id++ {
		country := ""
		if id == 2 {
			country = "Spain"
		}
		p := parsedProfile(id, names[id], "Founder", "AI", country)
		p.Telegram = "@" + names[id]
		require.NoError(t, f.store.Profiles().Create(ctx, p))
		for _, kind := range []models.EmbeddingKind{models.EmbeddingGeneral, models.EmbeddingMatching} {
			require.NoError(t, f.store.Embeddings().Upsert(ctx, kind, id, vecs[id], time.Now()))
		}
	}
}

func TestSearch_ValidatesBeforeEmbedding(t *testing.T) {
	f := newSearchFixture(t)
	ctx := context.Background()

	for _, req := range []models.RagSearchRequest{
		{Query: "  ", TopK: 5},
		{Query: "designers", TopK: 0},
		{Query: "designers", TopK: 51},
	} {
		_, err := f.search.Search(ctx, req)
		assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument), "%+v", req)
	}
	assert.Zero(t, f.emb.Calls())
}

func TestSearch_RanksByDistance(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t)

	resp, err := f.search.Search(context.Background(), models.RagSearchRequest{Query: "founders", TopK: 10})
	require.NoError(t, err)
	require.Equal(t, 4, resp.TotalResults)

	ids := make([]int, 0, 4)
	for _, r := range resp.Results {
		ids = append(ids, r.ProfileID)
		assert.GreaterOrEqual(t, r.Similarity, 0.0)
		assert.LessOrEqual(t, r.Similarity, 1.0)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, ids)
	assert.InDelta(t, 1.0, resp.Results[0].Similarity, 1e-6)
	assert.InDelta(t, 0.7071, resp.Results[1].Similarity, 1e-3)
	assert.Zero(t, resp.Results[3].Similarity, "opposite vectors clamp to zero")
	assert.Empty(t, resp.Narrative)
	assert.Zero(t, f.chat.Calls())
}

func TestSearch_FiltersAndTopK(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t)
	ctx := context.Background()

	resp, err := f.search.Search(ctx, models.RagSearchRequest{Query: "founders", TopK: 10, Country: "Spain"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 2, resp.Results[0].ProfileID)
	assert.Equal(t, "Spain", resp.Results[0].Country)

	resp, err = f.search.Search(ctx, models.RagSearchRequest{Query: "founders", TopK: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestSearch_EmptyIndexUsesCannedNarrative(t *testing.T) {
	f := newSearchFixture(t)

	resp, err := f.search.Search(context.Background(), models.RagSearchRequest{Query: "anyone", TopK: 5, GenerateResponse: true})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, NoMatchesNarrative, resp.Narrative)
	assert.Equal(t, models.EnrichmentFallback, resp.NarrativeStatus)
	assert.Zero(t, f.chat.Calls())
}

func TestSearch_Narrative(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t)
	f.chat.reply = "  - **Ann** (1.00)\n"

	resp, err := f.search.Search(context.Background(), models.RagSearchRequest{Query: "founders", TopK: 10, GenerateResponse: true})
	require.NoError(t, err)
	assert.Equal(t, "- **Ann** (1.00)", resp.Narrative)
	assert.Equal(t, models.EnrichmentAI, resp.NarrativeStatus)
	assert.Contains(t, f.chat.last.Messages[1].Content, "Request: founders")
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	f := newSearchFixture(t)
	f.emb.err = errProvider

	_, err := f.search.Search(context.Background(), models.RagSearchRequest{Query: "x", TopK: 1})
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}

func TestMatch_Validation(t *testing.T) {
	f := newSearchFixture(t)
	ctx := context.Background()

	for _, req := range []models.MatchRequest{
		{Interests: "AI", TopK: 3},
		{MainActivity: "Founder", TopK: 3},
		{MainActivity: "Founder", Interests: "AI", TopK: 21},
	} {
		_, err := f.match.Match(ctx, req)
		assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument), "%+v", req)
	}
	assert.Zero(t, f.emb.Calls())
}

func TestMatch_EmbedsCriteriaText(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t)

	resp, err := f.match.Match(context.Background(), models.MatchRequest{MainActivity: "Founder", Interests: "AI", TopK: 2})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, 1, resp.Matches[0].ProfileID)
	assert.Equal(t, "Founder", resp.Matches[0].MainActivity)
	assert.Equal(t, "Main activity: Founder\nInterests: AI", f.emb.texts[0])
	assert.Empty(t, resp.Matches[0].AISummary)
}

func TestMatch_SummariesFallBackToTemplates(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t)
	f.chat.err = errProvider

	resp, err := f.match.Match(context.Background(), models.MatchRequest{MainActivity: "Founder", Interests: "AI", TopK: 4, IncludeAISummary: true})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 4)
	assert.Equal(t, models.EnrichmentFallback, resp.SummaryStatus)
	assert.Equal(t, "Ann matches your search criteria", resp.Matches[0].AISummary)
	assert.Contains(t, resp.Matches[0].StarterMessage, "Hi Ann!")
	assert.Empty(t, resp.Matches[3].AISummary, "only the top three are summarized")
}

func TestMatch_SummariesFromModel(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t)
	f.chat.reply = "```json\n[{\"profileId\":\"1\",\"summary\":\"Fellow AI founder\",\"starterMessage\":\"Hey Ann\"},{\"ProfileID\":2,\"Summary\":\"Also a founder\"}]\n```"

	resp, err := f.match.Match(context.Background(), models.MatchRequest{MainActivity: "Founder", Interests: "AI", TopK: 3, IncludeAISummary: true})
	require.NoError(t, err)
	assert.Equal(t, models.EnrichmentAI, resp.SummaryStatus)
	assert.Equal(t, "Fellow AI founder", resp.Matches[0].AISummary)
	assert.Equal(t, "Hey Ann", resp.Matches[0].StarterMessage)
	assert.Equal(t, "Also a founder", resp.Matches[1].AISummary)
	assert.Contains(t, resp.Matches[1].StarterMessage, "Hi Bob!")
	assert.Equal(t, "Cid matches your search criteria", resp.Matches[2].AISummary)
	assert.InDelta(t, 0.7, f.chat.last.Temperature, 1e-6)
	assert.Equal(t, 500, f.chat.last.MaxTokens)
}
