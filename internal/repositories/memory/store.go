// Package memory keeps all repositories in process memory behind one lock so
// cascades across them stay consistent. Vector search is brute force.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
)

type Store struct {
	mu         sync.RWMutex
	profiles   map[int]*models.Profile
	queue      map[int64]*models.QueueEntry
	queueSeq   int64
	embeddings map[models.EmbeddingKind]map[int]*models.ProfileEmbedding
	countries  map[string]*models.Country
	countrySeq int64
}

func NewStore() *Store {
	return &Store{
		profiles: map[int]*models.Profile{},
		queue:    map[int64]*models.QueueEntry{},
		embeddings: map[models.EmbeddingKind]map[int]*models.ProfileEmbedding{
			models.EmbeddingGeneral:  {},
			models.EmbeddingMatching: {},
		},
		countries: map[string]*models.Country{},
	}
}

func (s *Store) Profiles() repositories.ProfileRepository     { return (*profileRepo)(s) }
func (s *Store) Queue() repositories.QueueRepository          { return (*queueRepo)(s) }
func (s *Store) Embeddings() repositories.EmbeddingRepository { return (*embeddingRepo)(s) }
func (s *Store) Countries() repositories.CountryRepository    { return (*countryRepo)(s) }

func cloneProfile(p *models.Profile) *models.Profile {
	c := *p
	c.Skills = append([]models.ProfileSkill(nil), p.Skills...)
	c.LookingFor = append([]models.ProfileLookingFor(nil), p.LookingFor...)
	c.ParsedPayload = append([]byte(nil), p.ParsedPayload...)
	if p.ParsedAt != nil {
		t := *p.ParsedAt
		c.ParsedAt = &t
	}
	return &c
}

// ---- profiles ----

type profileRepo Store

func (r *profileRepo) Create(_ context.Context, p *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; ok {
		return utils.ErrConflict
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	r.profiles[p.ID] = cloneProfile(p)
	return nil
}

func (r *profileRepo) Update(_ context.Context, p *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.profiles[p.ID]
	if !ok {
		return utils.ErrNotFound
	}
	next := cloneProfile(p)
	next.CreatedAt = cur.CreatedAt
	next.Parsed = cur.Parsed
	next.ParsedPayload = cur.ParsedPayload
	next.ParsedAt = cur.ParsedAt
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	r.profiles[p.ID] = next
	return nil
}

func (r *profileRepo) UpdateParsed(_ context.Context, id int, parsed models.ParsedFields, payload []byte, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.profiles[id]
	if !ok {
		return utils.ErrNotFound
	}
	cur.Parsed = parsed
	cur.ParsedPayload = append([]byte(nil), payload...)
	t := at
	cur.ParsedAt = &t
	cur.UpdatedAt = at
	return nil
}

func (r *profileRepo) GetByID(_ context.Context, id int) (*models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (r *profileRepo) GetByIDs(_ context.Context, ids []int) ([]models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok {
			out = append(out, *cloneProfile(p))
		}
	}
	return out, nil
}

func (r *profileRepo) sortedIDs() []int {
	ids := make([]int, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r *profileRepo) List(_ context.Context, offset, limit int) ([]models.Profile, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.sortedIDs()
	total := int64(len(ids))
	if offset > len(ids) {
		offset = len(ids)
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]models.Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, *cloneProfile(r.profiles[id]))
	}
	return out, total, nil
}

func (r *profileRepo) ListIDs(_ context.Context) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedIDs(), nil
}

func (r *profileRepo) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[id]; !ok {
		return utils.ErrNotFound
	}
	delete(r.profiles, id)
	for qid, e := range r.queue {
		if e.ProfileID == id {
			delete(r.queue, qid)
		}
	}
	for _, byID := range r.embeddings {
		delete(byID, id)
	}
	return nil
}

func (r *profileRepo) CountByCountry(_ context.Context) ([]models.CountryCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := map[string]int64{}
	for _, p := range r.profiles {
		if c := strings.TrimSpace(p.Parsed.Country); c != "" {
			counts[c]++
		}
	}
	out := make([]models.CountryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, models.CountryCount{Name: name, UserCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserCount != out[j].UserCount {
			return out[i].UserCount > out[j].UserCount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ---- queue ----

type queueRepo Store

func (r *queueRepo) Enqueue(_ context.Context, profileID int, now time.Time, maxRetries int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.queue {
		if e.ProfileID != profileID {
			continue
		}
		e.Generation++
		if e.RetryCount >= maxRetries {
			e.RetryCount = 0
			e.EnqueuedAt = now
		}
		return false, nil
	}
	r.queueSeq++
	r.queue[r.queueSeq] = &models.QueueEntry{ID: r.queueSeq, ProfileID: profileID, EnqueuedAt: now}
	return true, nil
}

func (r *queueRepo) DequeueBatch(_ context.Context, max, maxRetries int) ([]models.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	live := make([]models.QueueEntry, 0, len(r.queue))
	for _, e := range r.queue {
		if e.RetryCount < maxRetries {
			live = append(live, *e)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].EnqueuedAt.Equal(live[j].EnqueuedAt) {
			return live[i].EnqueuedAt.Before(live[j].EnqueuedAt)
		}
		return live[i].ID < live[j].ID
	})
	if len(live) > max {
		live = live[:max]
	}
	return live, nil
}

func (r *queueRepo) Remove(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queue, id)
	return nil
}

func (r *queueRepo) Acknowledge(_ context.Context, entry models.QueueEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.queue[entry.ID]
	if !ok || cur.Generation != entry.Generation {
		return false, nil
	}
	delete(r.queue, entry.ID)
	return true, nil
}

func (r *queueRepo) RequeueWithRetry(_ context.Context, id int64, now time.Time) (*models.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.queue[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cur.RetryCount++
	t := now
	cur.LastProcessedAt = &t
	cur.EnqueuedAt = now
	out := *cur
	return &out, nil
}

func (r *queueRepo) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.queue)), nil
}

func (r *queueRepo) CountDead(_ context.Context, maxRetries int) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, e := range r.queue {
		if e.RetryCount >= maxRetries {
			n++
		}
	}
	return n, nil
}

func (r *queueRepo) ReviveDead(_ context.Context, maxRetries int, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.queue {
		if e.RetryCount >= maxRetries {
			e.RetryCount = 0
			e.EnqueuedAt = now
			n++
		}
	}
	return n, nil
}

func (r *queueRepo) PurgeDead(_ context.Context, maxRetries int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.queue {
		if e.RetryCount >= maxRetries {
			delete(r.queue, id)
			n++
		}
	}
	return n, nil
}

func (r *queueRepo) Clear(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.queue))
	r.queue = map[int64]*models.QueueEntry{}
	return n, nil
}

// ---- embeddings ----

type embeddingRepo Store

func (r *embeddingRepo) Upsert(_ context.Context, kind models.EmbeddingKind, profileID int, vector []float32, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec := pgvector.NewVector(append([]float32(nil), vector...))
	if cur, ok := r.embeddings[kind][profileID]; ok {
		cur.Embedding = vec
		cur.UpdatedAt = now
		return nil
	}
	r.embeddings[kind][profileID] = &models.ProfileEmbedding{
		ProfileID: profileID,
		Embedding: vec,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (r *embeddingRepo) Get(_ context.Context, kind models.EmbeddingKind, profileID int) (*models.ProfileEmbedding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.embeddings[kind][profileID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	out := *cur
	return &out, nil
}

func (r *embeddingRepo) Delete(_ context.Context, kind models.EmbeddingKind, profileID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.embeddings[kind], profileID)
	return nil
}

func (r *embeddingRepo) Nearest(_ context.Context, kind models.EmbeddingKind, vector []float32, filter models.SearchFilter, k int) ([]models.Neighbor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Neighbor, 0, len(r.embeddings[kind]))
	for pid, e := range r.embeddings[kind] {
		p, ok := r.profiles[pid]
		if !ok || !filter.Match(p) {
			continue
		}
		out = append(out, models.Neighbor{ProfileID: pid, Distance: CosineDistance(vector, e.Embedding.Slice())})
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := rankDistance(out[i].Distance), rankDistance(out[j].Distance)
		if di != dj {
			return di < dj
		}
		return out[i].ProfileID < out[j].ProfileID
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// rankDistance sorts NaN after every number, as postgres does.
func rankDistance(d float64) float64 {
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}

// CosineDistance is 1 - cos(a, b). Zero vectors and length mismatches give NaN,
// matching pgvector.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.NaN()
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// ---- countries ----

type countryRepo Store

func (r *countryRepo) List(_ context.Context) ([]models.Country, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Country, 0, len(r.countries))
	for _, c := range r.countries {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserCount != out[j].UserCount {
			return out[i].UserCount > out[j].UserCount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *countryRepo) Sync(_ context.Context, counts []models.CountryCount, now time.Time) (models.CountrySyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res models.CountrySyncResult
	keep := make(map[string]struct{}, len(counts))
	for _, cc := range counts {
		keep[cc.Name] = struct{}{}
		if cur, ok := r.countries[cc.Name]; ok {
			if cur.UserCount != cc.UserCount {
				cur.UserCount = cc.UserCount
				cur.UpdatedAt = now
				res.Updated++
			}
			continue
		}
		r.countrySeq++
		r.countries[cc.Name] = &models.Country{ID: r.countrySeq, Name: cc.Name, UserCount: cc.UserCount, CreatedAt: now, UpdatedAt: now}
		res.Inserted++
	}
	for name := range r.countries {
		if _, ok := keep[name]; !ok {
			delete(r.countries, name)
			res.Deleted++
		}
	}
	return res, nil
}
