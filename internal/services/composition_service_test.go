package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/vibematch/internal/models"
)

func TestNarrative_TimeoutFallsBack(t *testing.T) {
	chat := &fakeChat{block: true}
	svc := NewCompositionService(chat, CompositionOptions{NarrativeTimeout: 20 * time.Millisecond}, nil, quietLogger())

	results := []models.RagSearchResult{{ProfileID: 1, Name: "Ann", Similarity: 0.9}, {ProfileID: 2, Name: "Bob", Similarity: 0.8}}
	text, status := svc.Narrative(context.Background(), "founders", results)
	assert.Equal(t, models.EnrichmentFallback, status)
	assert.Equal(t, "Found 2 matching profiles. Check the results list for details. (response generation timed out)", text)
}

func TestNarrative_ProviderErrorFallsBack(t *testing.T) {
	svc := NewCompositionService(&fakeChat{err: errProvider}, CompositionOptions{}, nil, quietLogger())

	text, status := svc.Narrative(context.Background(), "q", []models.RagSearchResult{{ProfileID: 1}})
	assert.Equal(t, models.EnrichmentFallback, status)
	assert.Equal(t, "Found 1 matching profiles. Check the results list for details.", text)
}

func TestNarrative_CallerCancelled(t *testing.T) {
	svc := NewCompositionService(&fakeChat{block: true}, CompositionOptions{NarrativeTimeout: time.Minute}, nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text, status := svc.Narrative(ctx, "q", []models.RagSearchResult{{ProfileID: 1}})
	assert.Equal(t, models.EnrichmentFailed, status)
	assert.Empty(t, text)
}

func TestNarrative_UsesTopFiveBySimilarity(t *testing.T) {
	chat := &fakeChat{reply: "ok"}
	svc := NewCompositionService(chat, CompositionOptions{}, nil, quietLogger())

	var results []models.RagSearchResult
	for i := 1; i <= 7; i++ {
		results = append(results, models.RagSearchResult{ProfileID: i, Name: string(rune('A' + i - 1)), Similarity: float64(i) / 10})
	}
	_, status := svc.Narrative(context.Background(), "q", results)
	assert.Equal(t, models.EnrichmentAI, status)

	prompt := chat.last.Messages[1].Content
	assert.Contains(t, prompt, "Name: G (similarity 0.70)")
	assert.Contains(t, prompt, "Name: C (similarity 0.30)")
	assert.NotContains(t, prompt, "Name: B ")
	assert.NotContains(t, prompt, "Name: A ")
}

func TestDecodeSummaries(t *testing.T) {
	got, err := decodeSummaries(`Here: [{"profileId": 3, "summary": "a"}, {"profileid": "4", "startermessage": "b"}, {"summary": "no id"}, {"profileId": 2.0, "summary": "c"}]`)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "a", got[3].Summary)
	assert.Equal(t, "b", got[4].StarterMessage)
	assert.Equal(t, "c", got[2].Summary)

	_, err = decodeSummaries("no json here")
	assert.Error(t, err)
}
