package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var editableColumns = []string{
	"name", "telegram", "linkedin", "email", "photo", "bio",
	"has_startup", "startup_name", "startup_stage", "startup_description",
	"can_help", "needs_help", "ai_usage", "updated_at",
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) repositories.ProfileRepository {
	return &profileRepo{db: db}
}

func preloadSatellites(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Skills", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("LookingFor", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func (r *profileRepo) Create(ctx context.Context, p *models.Profile) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return utils.ErrConflict
	}
	return err
}

func (r *profileRepo) Update(ctx context.Context, p *models.Profile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Profile{}).
			Where("id = ?", p.ID).
			Select(editableColumns).
			Updates(p)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrNotFound
		}

		if err := tx.Where("profile_id = ?", p.ID).Delete(&models.ProfileSkill{}).Error; err != nil {
			return err
		}
		if err := tx.Where("profile_id = ?", p.ID).Delete(&models.ProfileLookingFor{}).Error; err != nil {
			return err
		}
		for i := range p.Skills {
			p.Skills[i].ID = 0
			p.Skills[i].ProfileID = p.ID
		}
		for i := range p.LookingFor {
			p.LookingFor[i].ID = 0
			p.LookingFor[i].ProfileID = p.ID
		}
		if len(p.Skills) > 0 {
			if err := tx.Create(&p.Skills).Error; err != nil {
				return err
			}
		}
		if len(p.LookingFor) > 0 {
			if err := tx.Create(&p.LookingFor).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *profileRepo) UpdateParsed(ctx context.Context, id int, parsed models.ParsedFields, payload []byte, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"parsed_short_bio":     parsed.ShortBio,
			"parsed_main_activity": parsed.MainActivity,
			"parsed_interests":     parsed.Interests,
			"parsed_country":       parsed.Country,
			"parsed_city":          parsed.City,
			"parsed_payload":       datatypes.JSON(payload),
			"parsed_at":            at,
			"updated_at":           at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *profileRepo) GetByID(ctx context.Context, id int) (*models.Profile, error) {
	var p models.Profile
	err := preloadSatellites(r.db.WithContext(ctx)).
		Where("id = ?", id).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepo) GetByIDs(ctx context.Context, ids []int) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	arr := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		arr[i] = int64(id)
	}
	var rows []models.Profile
	err := preloadSatellites(r.db.WithContext(ctx)).
		Where("id = ANY(?)", arr).
		Find(&rows).Error
	return rows, err
}

func (r *profileRepo) List(ctx context.Context, offset, limit int) ([]models.Profile, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Profile{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Profile
	err := preloadSatellites(r.db.WithContext(ctx)).
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

func (r *profileRepo) ListIDs(ctx context.Context) ([]int, error) {
	var ids []int
	err := r.db.WithContext(ctx).Model(&models.Profile{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (r *profileRepo) Delete(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, kind := range []models.EmbeddingKind{models.EmbeddingGeneral, models.EmbeddingMatching} {
			if err := tx.Table(kind.Table()).Where("profile_id = ?", id).Delete(&models.ProfileEmbedding{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("profile_id = ?", id).Delete(&models.QueueEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("profile_id = ?", id).Delete(&models.ProfileSkill{}).Error; err != nil {
			return err
		}
		if err := tx.Where("profile_id = ?", id).Delete(&models.ProfileLookingFor{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Profile{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrNotFound
		}
		return nil
	})
}

func (r *profileRepo) CountByCountry(ctx context.Context) ([]models.CountryCount, error) {
	var rows []models.CountryCount
	err := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Select("TRIM(parsed_country) AS name, COUNT(*) AS user_count").
		Where("TRIM(COALESCE(parsed_country, '')) <> ''").
		Group("TRIM(parsed_country)").
		Order("user_count DESC, name").
		Scan(&rows).Error
	return rows, err
}
