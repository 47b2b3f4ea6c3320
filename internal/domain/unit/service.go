package unit

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referhub/referhub/internal/domain/facility"
	"github.com/referhub/referhub/internal/domain/referral"
	"github.com/referhub/referhub/internal/platform/validation"
)

const dashboardReferrals = 3

type HospitalLookup interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*facility.Hospital, error)
}

type ReferralLister interface {
	Latest(ctx context.Context, unitID uuid.UUID, n int) ([]*referral.Referral, error)
}

type Service struct {
	repo      Repository
	hospitals HospitalLookup
	referrals ReferralLister
	cache     PresenceCache
	validate  *validation.Validator
	logger    zerolog.Logger
}

func NewService(repo Repository, hospitals HospitalLookup, referrals ReferralLister, cache PresenceCache, v *validation.Validator, logger zerolog.Logger) *Service {
	if cache == nil {
		cache = NopPresenceCache{}
	}
	return &Service{
		repo:      repo,
		hospitals: hospitals,
		referrals: referrals,
		cache:     cache,
		validate:  v,
		logger:    logger.With().Str("component", "unit").Logger(),
	}
}

// Create registers a unit under hospitalID. New units start offline and not
// accepting referrals.
func (s *Service) Create(ctx context.Context, hospitalID uuid.UUID, req CreateRequest) (*Unit, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if _, err := s.hospitals.GetHospital(ctx, hospitalID); err != nil {
		return nil, err
	}
	u := &Unit{
		HospitalID: hospitalID,
		Name:       strings.TrimSpace(req.Name),
		Email:      req.Email,
		Presence:   Presence{AvailableBeds: *req.AvailableBeds},
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Unit, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Unit, int, error) {
	if _, err := s.hospitals.GetHospital(ctx, hospitalID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByHospital(ctx, hospitalID, limit, offset)
}

func (s *Service) Dashboard(ctx context.Context, unitID uuid.UUID) (*Dashboard, error) {
	u, err := s.repo.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	h, err := s.hospitals.GetHospital(ctx, u.HospitalID)
	if err != nil {
		return nil, err
	}
	recent, err := s.referrals.Latest(ctx, unitID, dashboardReferrals)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []*referral.Referral{}
	}
	return &Dashboard{Unit: u, Hospital: h, RecentReferrals: recent}, nil
}

// UpdateStatus stores the unit's new presence and writes it through to the
// presence cache. Cache failures are logged only.
func (s *Service) UpdateStatus(ctx context.Context, unitID uuid.UUID, req StatusRequest) (*Unit, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	u, err := s.repo.UpdatePresence(ctx, unitID, Presence{
		IsOnline:           *req.IsOnline,
		AcceptingReferrals: *req.AcceptingReferrals,
		AvailableBeds:      *req.AvailableBeds,
	})
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, u.Snapshot()); err != nil {
		s.logger.Warn().Err(err).Str("unit_id", unitID.String()).Msg("presence cache write failed")
	}
	return u, nil
}

// GetPresence serves from the cache and falls back to storage, refilling the
// cache on a miss.
func (s *Service) GetPresence(ctx context.Context, unitID uuid.UUID) (*Snapshot, error) {
	snap, err := s.cache.Get(ctx, unitID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn().Err(err).Str("unit_id", unitID.String()).Msg("presence cache read failed")
	}

	u, err := s.repo.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	fresh := u.Snapshot()
	if err := s.cache.Set(ctx, fresh); err != nil {
		s.logger.Warn().Err(err).Str("unit_id", unitID.String()).Msg("presence cache write failed")
	}
	return &fresh, nil
}

func (s *Service) Count(ctx context.Context) (total, online int, err error) {
	return s.repo.Count(ctx)
}
