package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
)

const DefaultMaxRetries = 3

type QueueService interface {
	Enqueue(ctx context.Context, profileID int) error
	DequeueBatch(ctx context.Context, max int) ([]models.QueueEntry, error)
	Remove(ctx context.Context, entryID int64) error
	// Acknowledge removes a processed entry unless the profile was enqueued
	// again after the entry was dequeued.
	Acknowledge(ctx context.Context, entry models.QueueEntry) (bool, error)
	// RequeueWithRetry records a failed attempt. dead reports that the entry
	// reached the retry ceiling.
	RequeueWithRetry(ctx context.Context, entryID int64) (dead bool, err error)
	Count(ctx context.Context) (int64, error)
	Status(ctx context.Context) (*models.QueueStatus, error)
	Clear(ctx context.Context) (int64, error)
	RetryDead(ctx context.Context) (int64, error)
	PurgeDead(ctx context.Context) (int64, error)
	MaxRetries() int
}

type QueueOptions struct {
	MaxRetries int
	DeadPolicy models.DeadPolicy
}

type queueService struct {
	repo repositories.QueueRepository
	opts QueueOptions
	log  *logrus.Logger
	now  func() time.Time
}

func NewQueueService(repo repositories.QueueRepository, opts QueueOptions, log *logrus.Logger) QueueService {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.DeadPolicy == "" {
		opts.DeadPolicy = models.DeadRetain
	}
	if log == nil {
		log = logrus.New()
	}
	return &queueService{repo: repo, opts: opts, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *queueService) MaxRetries() int { return s.opts.MaxRetries }

func (s *queueService) Enqueue(ctx context.Context, profileID int) error {
	const op = "QueueService.Enqueue"

	if profileID <= 0 {
		return utils.E(utils.CodeInvalidArgument, op, "profile_id must be positive", nil)
	}
	created, err := s.repo.Enqueue(ctx, profileID, s.now(), s.opts.MaxRetries)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to enqueue profile", err)
	}
	s.log.WithFields(logrus.Fields{"profile_id": profileID, "created": created}).Debug("profile enqueued")
	return nil
}

func (s *queueService) DequeueBatch(ctx context.Context, max int) ([]models.QueueEntry, error) {
	const op = "QueueService.DequeueBatch"

	if max <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "max must be positive", nil)
	}
	rows, err := s.repo.DequeueBatch(ctx, max, s.opts.MaxRetries)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read queue", err)
	}
	return rows, nil
}

func (s *queueService) Remove(ctx context.Context, entryID int64) error {
	const op = "QueueService.Remove"

	if err := s.repo.Remove(ctx, entryID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to remove queue entry", err)
	}
	return nil
}

func (s *queueService) Acknowledge(ctx context.Context, entry models.QueueEntry) (bool, error) {
	const op = "QueueService.Acknowledge"

	ok, err := s.repo.Acknowledge(ctx, entry)
	if err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to acknowledge queue entry", err)
	}
	return ok, nil
}

func (s *queueService) RequeueWithRetry(ctx context.Context, entryID int64) (bool, error) {
	const op = "QueueService.RequeueWithRetry"

	e, err := s.repo.RequeueWithRetry(ctx, entryID, s.now())
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return false, utils.E(utils.CodeNotFound, op, "queue entry not found", err)
		}
		return false, utils.E(utils.CodeInternal, op, "failed to requeue entry", err)
	}
	if !e.IsDead(s.opts.MaxRetries) {
		return false, nil
	}

	log := s.log.WithFields(logrus.Fields{"queue_id": e.ID, "profile_id": e.ProfileID, "retry_count": e.RetryCount})
	if s.opts.DeadPolicy == models.DeadDelete {
		if err := s.repo.Remove(ctx, e.ID); err != nil {
			return true, utils.E(utils.CodeInternal, op, "failed to drop dead entry", err)
		}
		log.Warn("queue entry reached retry ceiling and was dropped")
		return true, nil
	}
	log.Warn("queue entry reached retry ceiling and is parked")
	return true, nil
}

func (s *queueService) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, "QueueService.Count", "failed to count queue", err)
	}
	return n, nil
}

func (s *queueService) Status(ctx context.Context) (*models.QueueStatus, error) {
	const op = "QueueService.Status"

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to count queue", err)
	}
	dead, err := s.repo.CountDead(ctx, s.opts.MaxRetries)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to count dead entries", err)
	}
	return &models.QueueStatus{
		ProfilesInQueue: total,
		DeadEntries:     dead,
		MaxRetries:      s.opts.MaxRetries,
		Timestamp:       s.now(),
	}, nil
}

func (s *queueService) Clear(ctx context.Context) (int64, error) {
	n, err := s.repo.Clear(ctx)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, "QueueService.Clear", "failed to clear queue", err)
	}
	s.log.WithField("removed", n).Info("embedding queue cleared")
	return n, nil
}

func (s *queueService) RetryDead(ctx context.Context) (int64, error) {
	n, err := s.repo.ReviveDead(ctx, s.opts.MaxRetries, s.now())
	if err != nil {
		return 0, utils.E(utils.CodeInternal, "QueueService.RetryDead", "failed to revive dead entries", err)
	}
	return n, nil
}

func (s *queueService) PurgeDead(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeDead(ctx, s.opts.MaxRetries)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, "QueueService.PurgeDead", "failed to purge dead entries", err)
	}
	return n, nil
}
