package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/cache"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/providers/llm"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
)

type EmbeddingOutcome string

const (
	EmbeddingSaved   EmbeddingOutcome = "saved"
	EmbeddingSkipped EmbeddingOutcome = "skipped"
	EmbeddingMissing EmbeddingOutcome = "missing"
)

type EmbeddingService interface {
	// GenerateAndSave builds the text for kind, embeds it and upserts the vector.
	// A missing profile is a no-op; a matching embedding with no parsed
	// criteria is skipped.
	GenerateAndSave(ctx context.Context, kind models.EmbeddingKind, profileID int) (EmbeddingOutcome, error)
	Get(ctx context.Context, kind models.EmbeddingKind, profileID int) (*models.ProfileEmbedding, error)
	Delete(ctx context.Context, kind models.EmbeddingKind, profileID int) error
	// EmbedQuery embeds search text, using the cache when available.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type EmbeddingOptions struct {
	Model         string
	Dimensions    int
	QueryCacheTTL time.Duration
}

type embeddingService struct {
	profiles   repositories.ProfileRepository
	embeddings repositories.EmbeddingRepository
	embedder   llm.Embedder
	cache      cache.Cache
	opts       EmbeddingOptions
	log        *logrus.Logger
	now        func() time.Time
}

func NewEmbeddingService(
	profiles repositories.ProfileRepository,
	embeddings repositories.EmbeddingRepository,
	embedder llm.Embedder,
	c cache.Cache,
	opts EmbeddingOptions,
	log *logrus.Logger,
) EmbeddingService {
	if c == nil {
		c = cache.Nop{}
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 1536
	}
	if log == nil {
		log = logrus.New()
	}
	return &embeddingService{
		profiles:   profiles,
		embeddings: embeddings,
		embedder:   embedder,
		cache:      c,
		opts:       opts,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *embeddingService) GenerateAndSave(ctx context.Context, kind models.EmbeddingKind, profileID int) (EmbeddingOutcome, error) {
	op := "EmbeddingService.GenerateAndSave." + kind.String()

	p, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return EmbeddingMissing, nil
		}
		return "", utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}

	var text string
	switch kind {
	case models.EmbeddingMatching:
		if p.Parsed.IsEmpty() {
			s.log.WithField("profile_id", profileID).Warn("no parsed matching criteria, skipping matching embedding")
			return EmbeddingSkipped, nil
		}
		text = BuildProfileMatchingText(p)
	default:
		text = BuildGeneralText(p)
	}
	if strings.TrimSpace(text) == "" {
		s.log.WithFields(logrus.Fields{"profile_id": profileID, "kind": kind.String()}).Warn("empty embedding text, skipping")
		return EmbeddingSkipped, nil
	}

	vec, err := s.embed(ctx, op, text)
	if err != nil {
		return "", err
	}
	if err := s.embeddings.Upsert(ctx, kind, profileID, vec, s.now()); err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to save embedding", err)
	}
	return EmbeddingSaved, nil
}

func (s *embeddingService) Get(ctx context.Context, kind models.EmbeddingKind, profileID int) (*models.ProfileEmbedding, error) {
	const op = "EmbeddingService.Get"

	e, err := s.embeddings.Get(ctx, kind, profileID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "embedding not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load embedding", err)
	}
	return e, nil
}

func (s *embeddingService) Delete(ctx context.Context, kind models.EmbeddingKind, profileID int) error {
	if err := s.embeddings.Delete(ctx, kind, profileID); err != nil {
		return utils.E(utils.CodeInternal, "EmbeddingService.Delete", "failed to delete embedding", err)
	}
	return nil
}

func (s *embeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	const op = "EmbeddingService.EmbedQuery"

	key := cache.QueryEmbeddingKey(s.opts.Model, text)
	var cached []float32
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
		s.log.WithError(err).Debug("query embedding cache read failed")
	} else if hit && len(cached) == s.opts.Dimensions {
		return cached, nil
	}

	vec, err := s.embed(ctx, op, text)
	if err != nil {
		return nil, err
	}
	if s.opts.QueryCacheTTL > 0 {
		if err := s.cache.SetJSON(ctx, key, vec, s.opts.QueryCacheTTL); err != nil {
			s.log.WithError(err).Debug("query embedding cache write failed")
		}
	}
	return vec, nil
}

func (s *embeddingService) embed(ctx context.Context, op, text string) ([]float32, error) {
	vec, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, utils.E(utils.CodeTimeout, op, "embedding request cancelled", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "embedding request failed", err)
	}
	if len(vec) != s.opts.Dimensions {
		return nil, utils.E(utils.CodeInternal, op,
			"embedding dimension mismatch",
			fmt.Errorf("got %d, want %d", len(vec), s.opts.Dimensions))
	}
	return vec, nil
}
