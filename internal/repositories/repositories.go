// Package repositories declares the storage contracts shared by the postgres,
// memory and mongo implementations.
package repositories

import (
	"context"
	"time"

	"github.com/yoockh/vibematch/internal/models"
)

type ProfileRepository interface {
	// Create inserts p with its satellites. Returns utils.ErrConflict if the id exists.
	Create(ctx context.Context, p *models.Profile) error
	// Update replaces editable fields and satellites. Parsed fields are untouched.
	Update(ctx context.Context, p *models.Profile) error
	// UpdateParsed overwrites all parsed fields at once.
	UpdateParsed(ctx context.Context, id int, parsed models.ParsedFields, payload []byte, at time.Time) error
	GetByID(ctx context.Context, id int) (*models.Profile, error)
	// GetByIDs returns the profiles that still exist, in no particular order.
	GetByIDs(ctx context.Context, ids []int) ([]models.Profile, error)
	List(ctx context.Context, offset, limit int) ([]models.Profile, int64, error)
	ListIDs(ctx context.Context) ([]int, error)
	// Delete removes the profile with satellites, queue entry and embeddings.
	Delete(ctx context.Context, id int) error
	CountByCountry(ctx context.Context) ([]models.CountryCount, error)
}

type QueueRepository interface {
	// Enqueue inserts an entry or, when one exists, bumps its generation and
	// revives it if dead. created reports whether a new row was inserted.
	Enqueue(ctx context.Context, profileID int, now time.Time, maxRetries int) (created bool, err error)
	DequeueBatch(ctx context.Context, max, maxRetries int) ([]models.QueueEntry, error)
	Remove(ctx context.Context, id int64) error
	// Acknowledge deletes the entry only if its generation still matches.
	Acknowledge(ctx context.Context, entry models.QueueEntry) (bool, error)
	RequeueWithRetry(ctx context.Context, id int64, now time.Time) (*models.QueueEntry, error)
	Count(ctx context.Context) (int64, error)
	CountDead(ctx context.Context, maxRetries int) (int64, error)
	ReviveDead(ctx context.Context, maxRetries int, now time.Time) (int64, error)
	PurgeDead(ctx context.Context, maxRetries int) (int64, error)
	Clear(ctx context.Context) (int64, error)
}

type EmbeddingRepository interface {
	Upsert(ctx context.Context, kind models.EmbeddingKind, profileID int, vector []float32, now time.Time) error
	Get(ctx context.Context, kind models.EmbeddingKind, profileID int) (*models.ProfileEmbedding, error)
	Delete(ctx context.Context, kind models.EmbeddingKind, profileID int) error
	// Nearest ranks by ascending cosine distance, ties broken by profile id.
	Nearest(ctx context.Context, kind models.EmbeddingKind, vector []float32, filter models.SearchFilter, k int) ([]models.Neighbor, error)
}

type CountryRepository interface {
	List(ctx context.Context) ([]models.Country, error)
	Sync(ctx context.Context, counts []models.CountryCount, now time.Time) (models.CountrySyncResult, error)
}

type JournalRepository interface {
	Insert(ctx context.Context, rec *models.ProcessingRecord) error
	ListByProfile(ctx context.Context, profileID int, limit int64) ([]models.ProcessingRecord, error)
	ListByOutcome(ctx context.Context, outcomes []models.Outcome, limit int64) ([]models.ProcessingRecord, error)
}
