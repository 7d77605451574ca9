package postgres

import (
	"context"
	"time"

	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"gorm.io/gorm"
)

type countryRepo struct {
	db *gorm.DB
}

func NewCountryRepo(db *gorm.DB) repositories.CountryRepository {
	return &countryRepo{db: db}
}

func (r *countryRepo) List(ctx context.Context) ([]models.Country, error) {
	var rows []models.Country
	err := r.db.WithContext(ctx).Order("user_count DESC, name ASC").Find(&rows).Error
	return rows, err
}

func (r *countryRepo) Sync(ctx context.Context, counts []models.CountryCount, now time.Time) (models.CountrySyncResult, error) {
	var res models.CountrySyncResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.Country
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}
		byName := make(map[string]models.Country, len(existing))
		for _, c := range existing {
			byName[c.Name] = c
		}

		keep := make(map[string]struct{}, len(counts))
		for _, cc := range counts {
			keep[cc.Name] = struct{}{}
			if cur, ok := byName[cc.Name]; ok {
				if cur.UserCount == cc.UserCount {
					continue
				}
				if err := tx.Model(&models.Country{}).
					Where("id = ?", cur.ID).
					Updates(map[string]any{"user_count": cc.UserCount, "updated_at": now}).Error; err != nil {
					return err
				}
				res.Updated++
				continue
			}
			row := models.Country{Name: cc.Name, UserCount: cc.UserCount, CreatedAt: now, UpdatedAt: now}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			res.Inserted++
		}

		var stale []int64
		for _, c := range existing {
			if _, ok := keep[c.Name]; !ok {
				stale = append(stale, c.ID)
			}
		}
		if len(stale) > 0 {
			if err := tx.Where("id IN ?", stale).Delete(&models.Country{}).Error; err != nil {
				return err
			}
			res.Deleted = len(stale)
		}
		return nil
	})
	return res, err
}
