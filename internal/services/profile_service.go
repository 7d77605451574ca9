package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/storage"
	"github.com/yoockh/vibematch/internal/utils"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ProfileService interface {
	Create(ctx context.Context, in models.ProfileInput) (*models.Profile, error)
	Update(ctx context.Context, id int, in models.ProfileInput) (*models.Profile, error)
	Delete(ctx context.Context, id int) error
	Get(ctx context.Context, id int) (*models.Profile, error)
	List(ctx context.Context, offset, limit int) ([]models.Profile, int64, error)
	// Import reconciles storage against the full external list.
	Import(ctx context.Context, items []models.ProfileInput) (*models.BatchImportResult, error)
}

type profileService struct {
	profiles repositories.ProfileRepository
	queue    QueueService
	archive  storage.Uploader
	log      *logrus.Logger
	now      func() time.Time
}

// NewProfileService accepts a nil archive; imports are then not archived.
func NewProfileService(profiles repositories.ProfileRepository, queue QueueService, archive storage.Uploader, log *logrus.Logger) ProfileService {
	if log == nil {
		log = logrus.New()
	}
	return &profileService{
		profiles: profiles,
		queue:    queue,
		archive:  archive,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *profileService) Create(ctx context.Context, in models.ProfileInput) (*models.Profile, error) {
	const op = "ProfileService.Create"

	if in.ID <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id must be positive", nil)
	}
	p, err := s.create(ctx, op, in)
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *profileService) create(ctx context.Context, op string, in models.ProfileInput) (*models.Profile, error) {
	p := &models.Profile{ID: in.ID}
	in.Apply(p)
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	if err := s.profiles.Create(ctx, p); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "profile already exists", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create profile", err)
	}
	return p, nil
}

func (s *profileService) Update(ctx context.Context, id int, in models.ProfileInput) (*models.Profile, error) {
	const op = "ProfileService.Update"

	if id <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id must be positive", nil)
	}
	p, err := s.update(ctx, op, id, in)
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *profileService) update(ctx context.Context, op string, id int, in models.ProfileInput) (*models.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}
	in.Apply(p)
	p.UpdatedAt = s.now()

	if err := s.profiles.Update(ctx, p); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update profile", err)
	}
	return p, nil
}

func (s *profileService) Delete(ctx context.Context, id int) error {
	const op = "ProfileService.Delete"

	if id <= 0 {
		return utils.E(utils.CodeInvalidArgument, op, "id must be positive", nil)
	}
	if err := s.profiles.Delete(ctx, id); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete profile", err)
	}
	s.log.WithField("profile_id", id).Info("profile deleted")
	return nil
}

func (s *profileService) Get(ctx context.Context, id int) (*models.Profile, error) {
	const op = "ProfileService.Get"

	if id <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id must be positive", nil)
	}
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}
	return p, nil
}

func (s *profileService) List(ctx context.Context, offset, limit int) ([]models.Profile, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, total, err := s.profiles.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, utils.E(utils.CodeInternal, "ProfileService.List", "failed to list profiles", err)
	}
	return rows, total, nil
}

func (s *profileService) Import(ctx context.Context, items []models.ProfileInput) (*models.BatchImportResult, error) {
	const op = "ProfileService.Import"

	if len(items) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "import list is empty", nil)
	}

	res := &models.BatchImportResult{TotalProcessed: len(items), Errors: []models.ImportError{}}
	res.ArchivePath = s.archiveImport(ctx, items)

	wanted := make(map[int]models.ProfileInput, len(items))
	order := make([]int, 0, len(items))
	for _, in := range items {
		if in.ID <= 0 {
			res.Errors = append(res.Errors, models.ImportError{ProfileID: in.ID, Message: "id must be positive"})
			continue
		}
		if _, dup := wanted[in.ID]; dup {
			res.Errors = append(res.Errors, models.ImportError{ProfileID: in.ID, Message: "duplicate id in import"})
			continue
		}
		wanted[in.ID] = in
		order = append(order, in.ID)
	}

	existing, err := s.profiles.ListIDs(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list existing profiles", err)
	}
	present := make(map[int]struct{}, len(existing))
	for _, id := range existing {
		present[id] = struct{}{}
		if _, keep := wanted[id]; keep {
			continue
		}
		if err := s.profiles.Delete(ctx, id); err != nil && !errors.Is(err, utils.ErrNotFound) {
			res.Errors = append(res.Errors, models.ImportError{ProfileID: id, Message: fmt.Sprintf("delete failed: %v", err)})
			continue
		}
		res.Deleted++
	}

	for _, id := range order {
		in := wanted[id]
		var opErr error
		if _, ok := present[id]; ok {
			_, opErr = s.update(ctx, op, id, in)
			if opErr == nil {
				res.Updated++
			}
		} else {
			_, opErr = s.create(ctx, op, in)
			if opErr == nil {
				res.Created++
			}
		}
		if opErr != nil {
			res.Errors = append(res.Errors, models.ImportError{ProfileID: id, Message: opErr.Error()})
			continue
		}
		if err := s.queue.Enqueue(ctx, id); err != nil {
			res.Errors = append(res.Errors, models.ImportError{ProfileID: id, Message: fmt.Sprintf("enqueue failed: %v", err)})
		}
	}

	s.log.WithFields(logrus.Fields{
		"total":   res.TotalProcessed,
		"created": res.Created,
		"updated": res.Updated,
		"deleted": res.Deleted,
		"errors":  len(res.Errors),
	}).Info("profile import finished")
	return res, nil
}

// archiveImport uploads the raw import payload. Failures are logged only.
func (s *profileService) archiveImport(ctx context.Context, items []models.ProfileInput) string {
	if s.archive == nil {
		return ""
	}
	body, err := json.Marshal(items)
	if err != nil {
		s.log.WithError(err).Warn("failed to encode import archive")
		return ""
	}
	now := s.now()
	object := fmt.Sprintf("imports/%s/%s-%s.json", now.Format("2006-01-02"), now.Format("150405"), uuid.NewString())
	path, err := s.archive.Upload(ctx, object, "application/json", bytes.NewReader(body))
	if err != nil {
		s.log.WithError(err).WithField("object", object).Warn("failed to archive import payload")
		return ""
	}
	return path
}
