package postgres

import (
	"context"
	"time"

	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type queueRepo struct {
	db *gorm.DB
}

func NewQueueRepo(db *gorm.DB) repositories.QueueRepository {
	return &queueRepo{db: db}
}

// xmax = 0 only for freshly inserted rows.
const enqueueSQL = `
INSERT INTO embedding_queue (profile_id, enqueued_at, retry_count, generation)
VALUES (@profile, @now, 0, 0)
ON CONFLICT (profile_id) DO UPDATE SET
	generation  = embedding_queue.generation + 1,
	retry_count = CASE WHEN embedding_queue.retry_count >= @max THEN 0 ELSE embedding_queue.retry_count END,
	enqueued_at = CASE WHEN embedding_queue.retry_count >= @max THEN EXCLUDED.enqueued_at ELSE embedding_queue.enqueued_at END
RETURNING (xmax = 0) AS inserted`

func (r *queueRepo) Enqueue(ctx context.Context, profileID int, now time.Time, maxRetries int) (bool, error) {
	var inserted bool
	err := r.db.WithContext(ctx).
		Raw(enqueueSQL, map[string]any{"profile": profileID, "now": now, "max": maxRetries}).
		Scan(&inserted).Error
	return inserted, err
}

func (r *queueRepo) DequeueBatch(ctx context.Context, max, maxRetries int) ([]models.QueueEntry, error) {
	var rows []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("retry_count < ?", maxRetries).
		Order("enqueued_at ASC, id ASC").
		Limit(max).
		Find(&rows).Error
	return rows, err
}

func (r *queueRepo) Remove(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.QueueEntry{}).Error
}

func (r *queueRepo) Acknowledge(ctx context.Context, entry models.QueueEntry) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND generation = ?", entry.ID, entry.Generation).
		Delete(&models.QueueEntry{})
	return res.RowsAffected > 0, res.Error
}

func (r *queueRepo) RequeueWithRetry(ctx context.Context, id int64, now time.Time) (*models.QueueEntry, error) {
	var row models.QueueEntry
	res := r.db.WithContext(ctx).
		Model(&row).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count":       gorm.Expr("retry_count + 1"),
			"last_processed_at": now,
			"enqueued_at":       now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &row, nil
}

func (r *queueRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.QueueEntry{}).Count(&n).Error
	return n, err
}

func (r *queueRepo) CountDead(ctx context.Context, maxRetries int) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.QueueEntry{}).Where("retry_count >= ?", maxRetries).Count(&n).Error
	return n, err
}

func (r *queueRepo) ReviveDead(ctx context.Context, maxRetries int, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("retry_count >= ?", maxRetries).
		Updates(map[string]any{"retry_count": 0, "enqueued_at": now})
	return res.RowsAffected, res.Error
}

func (r *queueRepo) PurgeDead(ctx context.Context, maxRetries int) (int64, error) {
	res := r.db.WithContext(ctx).Where("retry_count >= ?", maxRetries).Delete(&models.QueueEntry{})
	return res.RowsAffected, res.Error
}

func (r *queueRepo) Clear(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.QueueEntry{})
	return res.RowsAffected, res.Error
}
