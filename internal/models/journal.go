package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageDone     StageStatus = "done"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
	StageFallback StageStatus = "fallback"
)

type Outcome string

const (
	OutcomeDone     Outcome = "done"
	OutcomeRequeued Outcome = "requeued"
	OutcomeDead     Outcome = "dead"
	OutcomeMissing  Outcome = "missing"
	OutcomeKept     Outcome = "kept" // succeeded but re-enqueued meanwhile
)

// ProcessingRecord is one worker attempt on one queue entry.
type ProcessingRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProfileID    int                `bson:"profile_id" json:"profile_id"`
	QueueEntryID int64              `bson:"queue_entry_id" json:"queue_entry_id"`
	Attempt      int                `bson:"attempt" json:"attempt"`

	Parse    StageStatus `bson:"parse" json:"parse"`
	General  StageStatus `bson:"general" json:"general"`
	Matching StageStatus `bson:"matching" json:"matching"`

	Outcome    Outcome `bson:"outcome" json:"outcome"`
	Error      string  `bson:"error,omitempty" json:"error,omitempty"`
	DurationMS int64   `bson:"duration_ms" json:"duration_ms"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time `bson:"expires_at" json:"-"` // TTL index
}
