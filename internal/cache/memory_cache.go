package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memItem struct {
	raw []byte
	exp time.Time
}

// Memory is an in-process Cache used when Redis is not configured and in tests.
type Memory struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: map[string]memItem{}, now: time.Now}
}

func (m *Memory) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	it, ok := m.items[key]
	if ok && !it.exp.IsZero() && m.now().After(it.exp) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(it.raw, dst); err != nil {
		_ = m.Del(context.Background(), key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) SetJSON(_ context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	it := memItem{raw: b}
	if ttl > 0 {
		it.exp = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}
