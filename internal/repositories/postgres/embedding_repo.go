package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type embeddingRepo struct {
	db *gorm.DB
}

func NewEmbeddingRepo(db *gorm.DB) repositories.EmbeddingRepository {
	return &embeddingRepo{db: db}
}

func (r *embeddingRepo) Upsert(ctx context.Context, kind models.EmbeddingKind, profileID int, vector []float32, now time.Time) error {
	row := models.ProfileEmbedding{
		ProfileID: profileID,
		Embedding: pgvector.NewVector(vector),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).
		Table(kind.Table()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "profile_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "updated_at"}),
		}).
		Create(&row).Error
}

func (r *embeddingRepo) Get(ctx context.Context, kind models.EmbeddingKind, profileID int) (*models.ProfileEmbedding, error) {
	var row models.ProfileEmbedding
	err := r.db.WithContext(ctx).
		Table(kind.Table()).
		Where("profile_id = ?", profileID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *embeddingRepo) Delete(ctx context.Context, kind models.EmbeddingKind, profileID int) error {
	return r.db.WithContext(ctx).
		Table(kind.Table()).
		Where("profile_id = ?", profileID).
		Delete(&models.ProfileEmbedding{}).Error
}

func (r *embeddingRepo) Nearest(ctx context.Context, kind models.EmbeddingKind, vector []float32, filter models.SearchFilter, k int) ([]models.Neighbor, error) {
	vec := pgvector.NewVector(vector)

	q := r.db.WithContext(ctx).
		Table(kind.Table()+" AS e").
		Select("e.profile_id, e.embedding <=> ? AS distance", vec).
		Joins("JOIN profiles p ON p.id = e.profile_id")
	if filter.Country != "" {
		q = q.Where("p.parsed_country = ?", filter.Country)
	}
	if filter.HasStartup != nil {
		q = q.Where("p.has_startup = ?", *filter.HasStartup)
	}

	var out []models.Neighbor
	err := q.Order("distance ASC, e.profile_id ASC").Limit(k).Scan(&out).Error
	return out, err
}
