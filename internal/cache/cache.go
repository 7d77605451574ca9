package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

const CountriesKey = "vibematch:countries"

// QueryEmbeddingKey identifies the cached vector of a search text for one model.
func QueryEmbeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return strings.Join([]string{"vibematch", "qemb", model, hex.EncodeToString(sum[:])}, ":")
}

// Nop never hits and never stores.
type Nop struct{}

func (Nop) GetJSON(context.Context, string, any) (bool, error)        { return false, nil }
func (Nop) SetJSON(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Del(context.Context, ...string) error                      { return nil }
