package mongo

import (
	"context"
	"time"

	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type journalRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

// NewJournalRepo stores processing records in collection; records expire after ttl.
func NewJournalRepo(db *mongo.Database, collection string, ttl time.Duration) repositories.JournalRepository {
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &journalRepo{col: db.Collection(collection), ttl: ttl}
}

func (r *journalRepo) Insert(ctx context.Context, rec *models.ProcessingRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = rec.Timestamp.Add(r.ttl)
	}
	_, err := r.col.InsertOne(ctx, rec)
	return err
}

func (r *journalRepo) ListByProfile(ctx context.Context, profileID int, limit int64) ([]models.ProcessingRecord, error) {
	return r.find(ctx, bson.M{"profile_id": profileID}, limit)
}

func (r *journalRepo) ListByOutcome(ctx context.Context, outcomes []models.Outcome, limit int64) ([]models.ProcessingRecord, error) {
	vals := make([]string, len(outcomes))
	for i, o := range outcomes {
		vals[i] = string(o)
	}
	return r.find(ctx, bson.M{"outcome": bson.M{"$in": vals}}, limit)
}

func (r *journalRepo) find(ctx context.Context, filter bson.M, limit int64) ([]models.ProcessingRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	cur, err := r.col.Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.ProcessingRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
