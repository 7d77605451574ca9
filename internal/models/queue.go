package models

import "time"

// QueueEntry is a pending request to (re)process one profile.
type QueueEntry struct {
	ID              int64      `gorm:"column:id;primaryKey" json:"id"`
	ProfileID       int        `gorm:"column:profile_id;uniqueIndex;not null" json:"profile_id"`
	EnqueuedAt      time.Time  `gorm:"column:enqueued_at;type:timestamptz;index" json:"enqueued_at"`
	RetryCount      int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	LastProcessedAt *time.Time `gorm:"column:last_processed_at;type:timestamptz" json:"last_processed_at,omitempty"`
	// Generation is bumped each time the profile is enqueued again while the
	// entry is still present.
	Generation int `gorm:"column:generation;not null;default:0" json:"generation"`
}

func (QueueEntry) TableName() string { return "embedding_queue" }

func (e QueueEntry) IsDead(maxRetries int) bool { return e.RetryCount >= maxRetries }

type DeadPolicy string

const (
	DeadRetain DeadPolicy = "retain"
	DeadDelete DeadPolicy = "delete"
)

type QueueStatus struct {
	ProfilesInQueue int64     `json:"profiles_in_queue"`
	DeadEntries     int64     `json:"dead_entries"`
	MaxRetries      int       `json:"max_retries"`
	WorkerState     string    `json:"worker_state,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
