package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
)

// JournalService keeps a best-effort history of worker attempts.
type JournalService interface {
	Record(ctx context.Context, rec *models.ProcessingRecord)
	ListByProfile(ctx context.Context, profileID int, limit int64) ([]models.ProcessingRecord, error)
	ListFailures(ctx context.Context, limit int64) ([]models.ProcessingRecord, error)
}

type journalService struct {
	repo repositories.JournalRepository
	log  *logrus.Logger
}

// NewJournalService accepts a nil repo; records are then dropped.
func NewJournalService(repo repositories.JournalRepository, log *logrus.Logger) JournalService {
	if log == nil {
		log = logrus.New()
	}
	return &journalService{repo: repo, log: log}
}

func (s *journalService) Record(ctx context.Context, rec *models.ProcessingRecord) {
	if s.repo == nil || rec == nil {
		return
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		s.log.WithError(err).WithField("profile_id", rec.ProfileID).Warn("failed to write processing journal")
	}
}

func (s *journalService) ListByProfile(ctx context.Context, profileID int, limit int64) ([]models.ProcessingRecord, error) {
	const op = "JournalService.ListByProfile"

	if s.repo == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "processing journal is not configured", nil)
	}
	if profileID <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "profile_id must be positive", nil)
	}
	rows, err := s.repo.ListByProfile(ctx, profileID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read processing journal", err)
	}
	return rows, nil
}

func (s *journalService) ListFailures(ctx context.Context, limit int64) ([]models.ProcessingRecord, error) {
	const op = "JournalService.ListFailures"

	if s.repo == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "processing journal is not configured", nil)
	}
	rows, err := s.repo.ListByOutcome(ctx, []models.Outcome{models.OutcomeRequeued, models.OutcomeDead}, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read processing journal", err)
	}
	return rows, nil
}
