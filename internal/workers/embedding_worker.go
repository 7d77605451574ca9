package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/events"
	"github.com/yoockh/vibematch/internal/metrics"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/services"
	"github.com/yoockh/vibematch/internal/utils"
	"golang.org/x/sync/errgroup"
)

type State int32

const (
	StateIdle State = iota
	StateDraining
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDraining:
		return "draining"
	case StateBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

// EmbeddingWorker drains the embedding queue: every entry is parsed, then both
// embeddings are regenerated, then the entry is acknowledged.
type EmbeddingWorker struct {
	Queue      services.QueueService
	Parser     services.ParsingService
	Embeddings services.EmbeddingService
	Countries  services.CountryService
	Journal    services.JournalService
	Events     events.Publisher
	Metrics    *metrics.Metrics
	Logger     *logrus.Logger

	Concurrency   int
	IdleInterval  time.Duration
	ErrorBackoff  time.Duration
	ItemTimeout   time.Duration
	SyncCountries bool

	// BookkeepingTimeout bounds the queue, journal and event writes that
	// follow an item; they do not share the item's deadline.
	BookkeepingTimeout time.Duration

	state atomic.Int32
	cycle sync.Mutex
	once  sync.Once
}

func (w *EmbeddingWorker) State() State { return State(w.state.Load()) }

func (w *EmbeddingWorker) setState(ctx context.Context, s State) {
	if State(w.state.Swap(int32(s))) == s {
		return
	}
	w.publish(ctx, events.Event{Type: events.TypeStatus, State: s.String()})
}

func (w *EmbeddingWorker) init() {
	w.once.Do(func() {
		if w.Concurrency <= 0 {
			w.Concurrency = 5
		}
		if w.IdleInterval <= 0 {
			w.IdleInterval = 5 * time.Second
		}
		if w.ErrorBackoff <= 0 {
			w.ErrorBackoff = 10 * time.Second
		}
		if w.ItemTimeout <= 0 {
			w.ItemTimeout = 2 * time.Minute
		}
		if w.BookkeepingTimeout <= 0 {
			w.BookkeepingTimeout = 10 * time.Second
		}
		if w.Events == nil {
			w.Events = events.Nop{}
		}
		if w.Logger == nil {
			w.Logger = logrus.New()
		}
	})
}

func (w *EmbeddingWorker) validate() error {
	if w.Queue == nil || w.Parser == nil || w.Embeddings == nil {
		return errors.New("EmbeddingWorker missing dependency: Queue/Parser/Embeddings must be set")
	}
	return nil
}

// Run loops until ctx is cancelled. A batch in flight is allowed to finish.
func (w *EmbeddingWorker) Run(ctx context.Context) error {
	if err := w.validate(); err != nil {
		return err
	}
	w.init()
	w.Logger.WithFields(logrus.Fields{
		"concurrency":   w.Concurrency,
		"idle_interval": w.IdleInterval.String(),
		"item_timeout":  w.ItemTimeout.String(),
	}).Info("embedding worker started")

	for {
		if ctx.Err() != nil {
			w.Logger.Info("embedding worker stopped")
			return nil
		}

		n, err := w.RunOnce(ctx)
		wait := time.Duration(0)
		switch {
		case err != nil && ctx.Err() == nil:
			w.Logger.WithError(err).Error("embedding worker cycle failed")
			w.setState(ctx, StateBackoff)
			wait = w.ErrorBackoff
		case n == 0:
			wait = w.IdleInterval
		}

		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
		w.setState(context.WithoutCancel(ctx), StateIdle)
	}
}

// RunOnce processes one batch and returns how many entries were taken.
func (w *EmbeddingWorker) RunOnce(ctx context.Context) (n int, err error) {
	if err := w.validate(); err != nil {
		return 0, err
	}
	w.init()

	w.cycle.Lock()
	defer w.cycle.Unlock()

	defer func() {
		if r := recover(); r != nil {
			w.Logger.WithField("stack", string(debug.Stack())).Errorf("embedding worker panic: %v", r)
			err = fmt.Errorf("embedding worker panic: %v", r)
		}
	}()

	batch, err := w.Queue.DequeueBatch(ctx, w.Concurrency)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		w.refreshDepth(ctx)
		return 0, nil
	}

	w.setState(ctx, StateDraining)
	defer w.setState(context.WithoutCancel(ctx), StateIdle)
	start := time.Now()

	// Items keep running after ctx is cancelled, bounded by ItemTimeout.
	base := context.WithoutCancel(ctx)
	outcomes := make([]models.Outcome, len(batch))

	var g errgroup.Group
	for i, entry := range batch {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(base, w.ItemTimeout)
			defer cancel()
			outcomes[i] = w.processEntry(itemCtx, entry)
			return nil
		})
	}
	_ = g.Wait()

	dur := time.Since(start)
	w.Metrics.BatchDone(dur)

	done := 0
	for _, o := range outcomes {
		if o == models.OutcomeDone || o == models.OutcomeKept {
			done++
		}
	}
	if w.SyncCountries && w.Countries != nil && done > 0 {
		if _, err := w.Countries.Sync(base); err != nil {
			w.Logger.WithError(err).Warn("country sync after batch failed")
		}
	}
	w.refreshDepth(base)

	w.publish(base, events.Event{Type: events.TypeBatch, BatchSize: len(batch), DurationMS: dur.Milliseconds()})
	w.Logger.WithFields(logrus.Fields{
		"batch_size":  len(batch),
		"succeeded":   done,
		"duration_ms": dur.Milliseconds(),
	}).Info("embedding batch processed")
	return len(batch), nil
}

// processEntry never returns an error: failures are recorded on the entry.
func (w *EmbeddingWorker) processEntry(ctx context.Context, e models.QueueEntry) (outcome models.Outcome) {
	start := time.Now()
	rec := &models.ProcessingRecord{
		ProfileID:    e.ProfileID,
		QueueEntryID: e.ID,
		Attempt:      e.RetryCount + 1,
		Parse:        models.StagePending,
		General:      models.StagePending,
		Matching:     models.StagePending,
	}
	log := w.Logger.WithFields(logrus.Fields{
		"queue_id":   e.ID,
		"profile_id": e.ProfileID,
		"attempt":    rec.Attempt,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("panic while processing entry: %v", r)
			outcome = w.fail(ctx, e, rec, fmt.Errorf("panic: %v", r))
		}
		rec.Outcome = outcome
		rec.DurationMS = time.Since(start).Milliseconds()

		bk, cancel := w.bookkeeping(ctx)
		defer cancel()
		w.Metrics.ItemProcessed(string(outcome))
		if w.Journal != nil {
			w.Journal.Record(bk, rec)
		}
		w.publish(bk, events.Event{
			Type:       events.TypeItem,
			ProfileID:  e.ProfileID,
			QueueID:    e.ID,
			Attempt:    rec.Attempt,
			Outcome:    string(outcome),
			Error:      rec.Error,
			DurationMS: rec.DurationMS,
		})
		log.WithFields(logrus.Fields{"outcome": outcome, "duration_ms": rec.DurationMS}).Debug("queue entry processed")
	}()

	if _, err := w.Parser.ParseAndUpdate(ctx, e.ProfileID); err != nil {
		if utils.IsCode(err, utils.CodeNotFound) {
			return w.missing(ctx, e, rec)
		}
		rec.Parse = models.StageFailed
		log.WithError(err).Warn("profile parse failed, embedding with previous fields")
	} else {
		rec.Parse = models.StageDone
	}

	for _, kind := range []models.EmbeddingKind{models.EmbeddingGeneral, models.EmbeddingMatching} {
		res, err := w.Embeddings.GenerateAndSave(ctx, kind, e.ProfileID)
		stage := stageOf(res)
		if kind == models.EmbeddingGeneral {
			rec.General = stage
		} else {
			rec.Matching = stage
		}
		if err != nil {
			if kind == models.EmbeddingGeneral {
				rec.General = models.StageFailed
			} else {
				rec.Matching = models.StageFailed
			}
			return w.fail(ctx, e, rec, err)
		}
		if res == services.EmbeddingMissing {
			return w.missing(ctx, e, rec)
		}
	}

	bk, cancel := w.bookkeeping(ctx)
	acked, err := w.Queue.Acknowledge(bk, e)
	cancel()
	if err != nil {
		return w.fail(ctx, e, rec, err)
	}
	if !acked {
		return models.OutcomeKept
	}
	return models.OutcomeDone
}

func stageOf(o services.EmbeddingOutcome) models.StageStatus {
	switch o {
	case services.EmbeddingSaved:
		return models.StageDone
	case services.EmbeddingSkipped:
		return models.StageSkipped
	default:
		return models.StagePending
	}
}

func (w *EmbeddingWorker) fail(ctx context.Context, e models.QueueEntry, rec *models.ProcessingRecord, cause error) models.Outcome {
	rec.Error = cause.Error()
	log := w.Logger.WithError(cause).WithFields(logrus.Fields{"queue_id": e.ID, "profile_id": e.ProfileID})

	bk, cancel := w.bookkeeping(ctx)
	defer cancel()
	dead, err := w.Queue.RequeueWithRetry(bk, e.ID)
	if err != nil {
		if utils.IsCode(err, utils.CodeNotFound) {
			log.Info("queue entry vanished while processing")
			return models.OutcomeMissing
		}
		log.WithField("requeue_error", err.Error()).Error("failed to requeue entry")
		return models.OutcomeRequeued
	}
	if dead {
		log.Error("profile processing failed permanently")
		return models.OutcomeDead
	}
	log.Warn("profile processing failed, entry requeued")
	return models.OutcomeRequeued
}

func (w *EmbeddingWorker) missing(ctx context.Context, e models.QueueEntry, rec *models.ProcessingRecord) models.Outcome {
	if rec.Parse == models.StagePending {
		rec.Parse = models.StageSkipped
	}
	bk, cancel := w.bookkeeping(ctx)
	defer cancel()
	if err := w.Queue.Remove(bk, e.ID); err != nil {
		w.Logger.WithError(err).WithField("queue_id", e.ID).Warn("failed to remove entry of missing profile")
	}
	return models.OutcomeMissing
}

// bookkeeping detaches from ctx, which may already be past the item deadline.
func (w *EmbeddingWorker) bookkeeping(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), w.BookkeepingTimeout)
}

func (w *EmbeddingWorker) refreshDepth(ctx context.Context) {
	if w.Metrics == nil {
		return
	}
	st, err := w.Queue.Status(ctx)
	if err != nil {
		w.Logger.WithError(err).Debug("queue depth refresh failed")
		return
	}
	w.Metrics.QueueDepth(st.ProfilesInQueue-st.DeadEntries, st.DeadEntries)
}

func (w *EmbeddingWorker) publish(ctx context.Context, ev events.Event) {
	if w.Events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := w.Events.Publish(ctx, ev); err != nil {
		w.Logger.WithError(err).Debug("failed to publish worker event")
	}
}
