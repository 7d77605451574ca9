package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/metrics"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
)

const (
	MaxRagTopK   = 50
	MaxMatchTopK = 20
)

type SearchService interface {
	Search(ctx context.Context, req models.RagSearchRequest) (*models.RagSearchResponse, error)
}

type MatchService interface {
	Match(ctx context.Context, req models.MatchRequest) (*models.MatchResponse, error)
}

// retriever holds what both retrieval flows share.
type retriever struct {
	profiles   repositories.ProfileRepository
	embeddings repositories.EmbeddingRepository
	embedder   EmbeddingService
	composer   CompositionService
	metrics    *metrics.Metrics
	log        *logrus.Logger
}

// ranked runs the nearest-neighbour query and joins profiles back in rank order.
// Profiles deleted between the two reads are skipped.
func (r *retriever) ranked(ctx context.Context, op string, kind models.EmbeddingKind, vec []float32, filter models.SearchFilter, k int) ([]models.Profile, []float64, error) {
	neighbors, err := r.embeddings.Nearest(ctx, kind, vec, filter, k)
	if err != nil {
		return nil, nil, utils.E(utils.CodeInternal, op, "similarity query failed", err)
	}
	if len(neighbors) == 0 {
		return nil, nil, nil
	}

	ids := make([]int, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ProfileID
	}
	rows, err := r.profiles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, utils.E(utils.CodeInternal, op, "failed to load matched profiles", err)
	}
	byID := make(map[int]models.Profile, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}

	profiles := make([]models.Profile, 0, len(neighbors))
	sims := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		p, ok := byID[n.ProfileID]
		if !ok {
			continue
		}
		profiles = append(profiles, p)
		sims = append(sims, utils.Similarity(n.Distance))
	}
	return profiles, sims, nil
}

type searchService struct {
	retriever
}

func NewSearchService(
	profiles repositories.ProfileRepository,
	embeddings repositories.EmbeddingRepository,
	embedder EmbeddingService,
	composer CompositionService,
	m *metrics.Metrics,
	log *logrus.Logger,
) SearchService {
	if log == nil {
		log = logrus.New()
	}
	return &searchService{retriever{profiles: profiles, embeddings: embeddings, embedder: embedder, composer: composer, metrics: m, log: log}}
}

func (s *searchService) Search(ctx context.Context, req models.RagSearchRequest) (resp *models.RagSearchResponse, err error) {
	const op = "SearchService.Search"

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "query is required", nil)
	}
	if req.TopK < 1 || req.TopK > MaxRagTopK {
		return nil, utils.E(utils.CodeInvalidArgument, op, "top_k must be between 1 and 50", nil)
	}

	start := time.Now()
	defer func() { s.metrics.Search("rag", utils.StatusLabel(err), time.Since(start)) }()

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	filter := models.SearchFilter{Country: strings.TrimSpace(req.Country), HasStartup: req.HasStartup}
	profiles, sims, err := s.ranked(ctx, op, models.EmbeddingGeneral, vec, filter, req.TopK)
	if err != nil {
		return nil, err
	}

	out := &models.RagSearchResponse{Results: make([]models.RagSearchResult, 0, len(profiles))}
	for i := range profiles {
		out.Results = append(out.Results, toRagResult(&profiles[i], sims[i]))
	}
	out.TotalResults = len(out.Results)

	if req.GenerateResponse {
		if out.TotalResults == 0 {
			out.Narrative = NoMatchesNarrative
			out.NarrativeStatus = models.EnrichmentFallback
		} else if s.composer != nil {
			out.Narrative, out.NarrativeStatus = s.composer.Narrative(ctx, query, out.Results)
		}
	}

	s.log.WithFields(logrus.Fields{
		"op":      op,
		"top_k":   req.TopK,
		"results": out.TotalResults,
		"country": filter.Country,
	}).Debug("rag search")
	return out, nil
}

func toRagResult(p *models.Profile, sim float64) models.RagSearchResult {
	r := models.RagSearchResult{
		ProfileID:  p.ID,
		Name:       p.Name,
		Telegram:   p.Telegram,
		LinkedIn:   p.LinkedIn,
		Bio:        p.Bio,
		Skills:     joinValues(p.Values(models.SatelliteSkills)),
		LookingFor: joinValues(p.Values(models.SatelliteLookingFor)),
		HasStartup: p.HasStartup,
		CanHelp:    p.CanHelp,
		NeedsHelp:  p.NeedsHelp,
		Country:    p.Parsed.Country,
		City:       p.Parsed.City,
		Similarity: sim,
	}
	if p.HasStartup {
		r.StartupName = p.StartupName
		r.StartupStage = p.StartupStage
		r.StartupDescription = p.StartupDescription
	}
	return r
}

type matchService struct {
	retriever
}

func NewMatchService(
	profiles repositories.ProfileRepository,
	embeddings repositories.EmbeddingRepository,
	embedder EmbeddingService,
	composer CompositionService,
	m *metrics.Metrics,
	log *logrus.Logger,
) MatchService {
	if log == nil {
		log = logrus.New()
	}
	return &matchService{retriever{profiles: profiles, embeddings: embeddings, embedder: embedder, composer: composer, metrics: m, log: log}}
}

func (s *matchService) Match(ctx context.Context, req models.MatchRequest) (resp *models.MatchResponse, err error) {
	const op = "MatchService.Match"

	if strings.TrimSpace(req.MainActivity) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "main_activity is required", nil)
	}
	if strings.TrimSpace(req.Interests) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interests is required", nil)
	}
	if req.TopK < 1 || req.TopK > MaxMatchTopK {
		return nil, utils.E(utils.CodeInvalidArgument, op, "top_k must be between 1 and 20", nil)
	}

	start := time.Now()
	defer func() { s.metrics.Search("match", utils.StatusLabel(err), time.Since(start)) }()

	text := BuildMatchingText(req.MainActivity, req.Interests, req.Country, req.City)
	vec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	profiles, sims, err := s.ranked(ctx, op, models.EmbeddingMatching, vec, models.SearchFilter{}, req.TopK)
	if err != nil {
		return nil, err
	}

	out := &models.MatchResponse{Matches: make([]models.MatchResult, 0, len(profiles))}
	for i := range profiles {
		p := &profiles[i]
		out.Matches = append(out.Matches, models.MatchResult{
			ProfileID:    p.ID,
			Name:         p.Name,
			Telegram:     p.Telegram,
			LinkedIn:     p.LinkedIn,
			Photo:        p.Photo,
			MainActivity: p.Parsed.MainActivity,
			Interests:    p.Parsed.Interests,
			Country:      p.Parsed.Country,
			City:         p.Parsed.City,
			Similarity:   sims[i],
		})
	}
	out.TotalMatches = len(out.Matches)

	if req.IncludeAISummary && len(profiles) > 0 && s.composer != nil {
		summaries, status := s.composer.MatchSummaries(ctx, req, profiles)
		out.SummaryStatus = status
		for i := range out.Matches {
			if ms, ok := summaries[out.Matches[i].ProfileID]; ok {
				out.Matches[i].AISummary = ms.Summary
				out.Matches[i].StarterMessage = ms.StarterMessage
			}
		}
	}
	return out, nil
}
