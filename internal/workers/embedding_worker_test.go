package workers

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/vibematch/internal/cache"
	"github.com/yoockh/vibematch/internal/events"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/providers/llm"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/repositories/memory"
	"github.com/yoockh/vibematch/internal/services"
)

const parsedReply = `{"shortBio":"s","mainActivity":"Founder","interests":["AI"],"country":"Spain","city":""}`

type stubChat struct{ reply string }

func (c stubChat) CompleteChat(context.Context, llm.ChatRequest) (string, error) {
	return c.reply, nil
}

type hookEmbedder struct {
	fn func(text string) ([]float32, error)
}

func (e hookEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if e.fn != nil {
		return e.fn(text)
	}
	return []float32{1, 0, 0}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) outcomes() map[int]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[int]string{}
	for _, ev := range p.events {
		if ev.Type == events.TypeItem {
			out[ev.ProfileID] = ev.Outcome
		}
	}
	return out
}

type memJournal struct {
	mu   sync.Mutex
	recs []models.ProcessingRecord
}

func (j *memJournal) Insert(ctx context.Context, rec *models.ProcessingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, *rec)
	return nil
}

func (j *memJournal) ListByProfile(_ context.Context, profileID int, _ int64) ([]models.ProcessingRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []models.ProcessingRecord
	for _, r := range j.recs {
		if r.ProfileID == profileID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (j *memJournal) ListByOutcome(context.Context, []models.Outcome, int64) ([]models.ProcessingRecord, error) {
	return nil, nil
}

type fixture struct {
	store   *memory.Store
	queue   services.QueueService
	events  *recordingPublisher
	journal *memJournal
	worker  *EmbeddingWorker
}

func newFixture(t *testing.T, embed hookEmbedder, maxRetries int) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memory.NewStore()
	f := &fixture{
		store:   store,
		queue:   services.NewQueueService(store.Queue(), services.QueueOptions{MaxRetries: maxRetries}, log),
		events:  &recordingPublisher{},
		journal: &memJournal{},
	}
	f.worker = &EmbeddingWorker{
		Queue:  f.queue,
		Parser: services.NewParsingService(store.Profiles(), stubChat{reply: parsedReply}, services.ParsingOptions{}, log),
		Embeddings: services.NewEmbeddingService(store.Profiles(), store.Embeddings(), embed, cache.Nop{},
			services.EmbeddingOptions{Dimensions: 3}, log),
		Countries:     services.NewCountryService(store.Profiles(), store.Countries(), cache.Nop{}, 0, log),
		Journal:       services.NewJournalService(f.journal, log),
		Events:        f.events,
		Logger:        log,
		Concurrency:   5,
		IdleInterval:  10 * time.Millisecond,
		ErrorBackoff:  10 * time.Millisecond,
		SyncCountries: true,
	}
	return f
}

func (f *fixture) addProfile(t *testing.T, id int, name string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Profiles().Create(ctx, &models.Profile{ID: id, Name: name, Bio: name + " bio"}))
	require.NoError(t, f.queue.Enqueue(ctx, id))
}

func TestRunOnce_ProcessesBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, hookEmbedder{}, 3)
	f.addProfile(t, 1, "Ann")
	f.addProfile(t, 2, "Bob")

	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []int{1, 2} {
		for _, kind := range []models.EmbeddingKind{models.EmbeddingGeneral, models.EmbeddingMatching} {
			_, err := f.store.Embeddings().Get(ctx, kind, id)
			assert.NoError(t, err, "profile %d %s", id, kind)
		}
		p, err := f.store.Profiles().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Spain", p.Parsed.Country)
	}

	count, _ := f.queue.Count(ctx)
	assert.Zero(t, count)
	assert.Equal(t, map[int]string{1: "done", 2: "done"}, f.events.outcomes())

	countries, err := f.store.Countries().List(ctx)
	require.NoError(t, err)
	require.Len(t, countries, 1)
	assert.EqualValues(t, 2, countries[0].UserCount)

	recs, _ := f.journal.ListByProfile(ctx, 1, 10)
	require.Len(t, recs, 1)
	assert.Equal(t, models.StageDone, recs[0].Parse)
	assert.Equal(t, models.StageDone, recs[0].General)
	assert.Equal(t, models.StageDone, recs[0].Matching)
	assert.Equal(t, models.OutcomeDone, recs[0].Outcome)

	n, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, StateIdle, f.worker.State())
}

func TestRunOnce_FailingItemIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, hookEmbedder{fn: func(text string) ([]float32, error) {
		if strings.Contains(text, "Bad") {
			return nil, errors.New("embedding provider down")
		}
		return []float32{0, 1, 0}, nil
	}}, 3)
	f.addProfile(t, 1, "Good")
	f.addProfile(t, 2, "Bad")

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[int]string{1: "done", 2: "requeued"}, f.events.outcomes())

	batch, err := f.queue.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 2, batch[0].ProfileID)
	assert.Equal(t, 1, batch[0].RetryCount)
	assert.NotNil(t, batch[0].LastProcessedAt)

	_, err = f.store.Embeddings().Get(ctx, models.EmbeddingGeneral, 1)
	assert.NoError(t, err)

	recs, _ := f.journal.ListByProfile(ctx, 2, 10)
	require.Len(t, recs, 1)
	assert.Equal(t, models.StageFailed, recs[0].General)
	assert.Contains(t, recs[0].Error, "embedding")
}

func TestRunOnce_RetryCeilingMarksDead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, hookEmbedder{fn: func(string) ([]float32, error) {
		return nil, errors.New("down")
	}}, 2)
	f.addProfile(t, 1, "Ann")

	for i := 0; i < 2; i++ {
		_, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, "dead", f.events.outcomes()[1])

	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "dead entries are not dequeued")

	st, err := f.queue.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.DeadEntries)
}

// deadlineQueueRepo rejects writes on a finished context, as the gorm repo does.
type deadlineQueueRepo struct {
	repositories.QueueRepository
}

func (r deadlineQueueRepo) RequeueWithRetry(ctx context.Context, id int64, now time.Time) (*models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.QueueRepository.RequeueWithRetry(ctx, id, now)
}

func (r deadlineQueueRepo) Acknowledge(ctx context.Context, e models.QueueEntry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.QueueRepository.Acknowledge(ctx, e)
}

func (r deadlineQueueRepo) Remove(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.QueueRepository.Remove(ctx, id)
}

type blockingEmbedder struct{}

func (blockingEmbedder) EmbedText(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunOnce_ItemTimeoutStillCountsRetries(t *testing.T) {
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := newFixture(t, hookEmbedder{}, 3)
	f.queue = services.NewQueueService(deadlineQueueRepo{f.store.Queue()}, services.QueueOptions{MaxRetries: 3}, log)
	f.worker.Queue = f.queue
	f.worker.Embeddings = services.NewEmbeddingService(f.store.Profiles(), f.store.Embeddings(), blockingEmbedder{}, cache.Nop{},
		services.EmbeddingOptions{Dimensions: 3}, log)
	f.worker.ItemTimeout = 30 * time.Millisecond
	f.addProfile(t, 1, "Ann")

	for i := 0; i < 3; i++ {
		n, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "cycle %d", i+1)
	}

	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "entry past the ceiling is not dequeued again")

	st, err := f.queue.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.DeadEntries)
	assert.Equal(t, "dead", f.events.outcomes()[1])

	recs, err := f.journal.ListByProfile(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []models.Outcome{models.OutcomeRequeued, models.OutcomeRequeued, models.OutcomeDead},
		[]models.Outcome{recs[0].Outcome, recs[1].Outcome, recs[2].Outcome})
	assert.Equal(t, 3, recs[2].Attempt)
}

func TestRunOnce_MissingProfileRemovesEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, hookEmbedder{}, 3)
	require.NoError(t, f.queue.Enqueue(ctx, 42))

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	count, _ := f.queue.Count(ctx)
	assert.Zero(t, count)
	assert.Equal(t, "missing", f.events.outcomes()[42])
}

func TestRunOnce_ReenqueueDuringProcessingIsKept(t *testing.T) {
	ctx := context.Background()
	var f *fixture
	var once sync.Once
	f = newFixture(t, hookEmbedder{fn: func(string) ([]float32, error) {
		once.Do(func() { _ = f.queue.Enqueue(context.Background(), 1) })
		return []float32{1, 0, 0}, nil
	}}, 3)
	f.addProfile(t, 1, "Ann")

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", f.events.outcomes()[1])

	batch, err := f.queue.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Zero(t, batch[0].RetryCount)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, hookEmbedder{}, 3)
	f.addProfile(t, 1, "Ann")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, _ := f.queue.Count(context.Background())
		return n == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRun_RequiresDependencies(t *testing.T) {
	w := &EmbeddingWorker{}
	assert.Error(t, w.Run(context.Background()))
	_, err := w.RunOnce(context.Background())
	assert.Error(t, err)
}
