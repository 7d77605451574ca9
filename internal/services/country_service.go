package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/cache"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
)

type CountryService interface {
	// Sync recomputes per-country profile counts from parsed profiles.
	Sync(ctx context.Context) (models.CountrySyncResult, error)
	List(ctx context.Context) ([]models.Country, error)
}

type countryService struct {
	profiles  repositories.ProfileRepository
	countries repositories.CountryRepository
	cache     cache.Cache
	ttl       time.Duration
	log       *logrus.Logger
}

func NewCountryService(profiles repositories.ProfileRepository, countries repositories.CountryRepository, c cache.Cache, ttl time.Duration, log *logrus.Logger) CountryService {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &countryService{profiles: profiles, countries: countries, cache: c, ttl: ttl, log: log}
}

func (s *countryService) Sync(ctx context.Context) (models.CountrySyncResult, error) {
	const op = "CountryService.Sync"

	counts, err := s.profiles.CountByCountry(ctx)
	if err != nil {
		return models.CountrySyncResult{}, utils.E(utils.CodeInternal, op, "failed to aggregate countries", err)
	}
	res, err := s.countries.Sync(ctx, counts, time.Now().UTC())
	if err != nil {
		return models.CountrySyncResult{}, utils.E(utils.CodeInternal, op, "failed to store countries", err)
	}
	if err := s.cache.Del(ctx, cache.CountriesKey); err != nil {
		s.log.WithError(err).Warn("failed to invalidate country cache")
	}
	s.log.WithFields(logrus.Fields{
		"inserted": res.Inserted,
		"updated":  res.Updated,
		"deleted":  res.Deleted,
	}).Debug("countries synced")
	return res, nil
}

func (s *countryService) List(ctx context.Context) ([]models.Country, error) {
	const op = "CountryService.List"

	var cached []models.Country
	if hit, err := s.cache.GetJSON(ctx, cache.CountriesKey, &cached); err != nil {
		s.log.WithError(err).Debug("country cache read failed")
	} else if hit {
		return cached, nil
	}
	rows, err := s.countries.List(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list countries", err)
	}
	if rows == nil {
		rows = []models.Country{}
	}
	if s.ttl > 0 {
		if err := s.cache.SetJSON(ctx, cache.CountriesKey, rows, s.ttl); err != nil {
			s.log.WithError(err).Debug("country cache write failed")
		}
	}
	return rows, nil
}
