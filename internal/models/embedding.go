package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingKind selects which of the two per-profile vectors is meant.
type EmbeddingKind int

const (
	EmbeddingGeneral EmbeddingKind = iota
	EmbeddingMatching
)

func (k EmbeddingKind) String() string {
	switch k {
	case EmbeddingGeneral:
		return "general"
	case EmbeddingMatching:
		return "matching"
	default:
		return "unknown"
	}
}

func (k EmbeddingKind) Table() string {
	if k == EmbeddingMatching {
		return "matching_embeddings"
	}
	return "profile_embeddings"
}

// ProfileEmbedding is a row of either embedding table; the table is chosen per
// query from the kind.
type ProfileEmbedding struct {
	ProfileID int             `gorm:"column:profile_id;primaryKey;autoIncrement:false" json:"profile_id"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector" json:"-"`
	CreatedAt time.Time       `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

// Neighbor is one ranked candidate from a nearest-neighbour query.
type Neighbor struct {
	ProfileID int     `gorm:"column:profile_id"`
	Distance  float64 `gorm:"column:distance"`
}

// SearchFilter narrows the candidate set before ranking. Zero value means no filter.
type SearchFilter struct {
	Country    string
	HasStartup *bool
}

func (f SearchFilter) Match(p *Profile) bool {
	if f.Country != "" && p.Parsed.Country != f.Country {
		return false
	}
	if f.HasStartup != nil && p.HasStartup != *f.HasStartup {
		return false
	}
	return true
}
