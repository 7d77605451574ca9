// Package events fans out embedding worker progress over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const Channel = "vibematch:embedding:events"

const (
	TypeItem   = "item"
	TypeBatch  = "batch"
	TypeStatus = "status"
)

type Event struct {
	Type       string    `json:"type"`
	ProfileID  int       `json:"profile_id,omitempty"`
	QueueID    int64     `json:"queue_id,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	BatchSize  int       `json:"batch_size,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	State      string    `json:"state,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: Channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, string(b)).Err()
}

// New returns a RedisPublisher, or Nop when rdb is nil.
func New(rdb *redis.Client) Publisher {
	if rdb == nil {
		return Nop{}
	}
	return NewRedisPublisher(rdb)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
