package referral

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/validation"
)

// Directory resolves the hospital and unit a referral is addressed to.
type Directory interface {
	// HospitalExists returns a not-found error for unknown hospitals.
	HospitalExists(ctx context.Context, id uuid.UUID) error
	// UnitHospital returns the hospital that owns the unit.
	UnitHospital(ctx context.Context, unitID uuid.UUID) (uuid.UUID, error)
}

type Service struct {
	repo     Repository
	dir      Directory
	validate *validation.Validator
}

func NewService(repo Repository, dir Directory, v *validation.Validator) *Service {
	return &Service{repo: repo, dir: dir, validate: v}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	return lo.Ternary[*string](s == "", nil, &s)
}

// Create stores a new pending referral from clinicID.
func (s *Service) Create(ctx context.Context, clinicID uuid.UUID, req CreateRequest) (*Referral, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	hospitalID := uuid.MustParse(req.HospitalID)
	unitID := uuid.MustParse(req.UnitID)

	if err := s.dir.HospitalExists(ctx, hospitalID); err != nil {
		return nil, err
	}
	owner, err := s.dir.UnitHospital(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if owner != hospitalID {
		return nil, apperr.Validation("unit %s does not belong to hospital %s", unitID, hospitalID)
	}

	r := &Referral{
		ClinicID:       clinicID,
		HospitalID:     hospitalID,
		UnitID:         unitID,
		Reason:         strings.TrimSpace(req.Reason),
		Urgency:        Urgency(req.Urgency),
		AdditionalNote: optional(req.AdditionalNote),
		Status:         StatusPending,
		Patient: &Patient{
			Fullname:   strings.TrimSpace(req.Patient.Fullname),
			Age:        *req.Patient.Age,
			Gender:     req.Patient.Gender,
			Phone:      optional(req.Patient.Phone),
			NHISNumber: optional(req.Patient.NHISNumber),
			Vitals:     req.Vitals,
		},
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Respond applies a unit's decision to a pending referral. The status change
// is a single compare-and-set against pending, so of several concurrent
// responses exactly one wins and the rest get an invalid transition error.
func (s *Service) Respond(ctx context.Context, unitID, referralID uuid.UUID, status string) (*Referral, error) {
	next, ok := ParseResponse(status)
	if !ok {
		return nil, apperr.Validation("status must be one of [accepted declined]")
	}

	current, err := s.repo.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if current.UnitID != unitID {
		return nil, apperr.Authorization("referral %s is not addressed to unit %s", referralID, unitID)
	}
	if current.Status != StatusPending {
		return nil, apperr.InvalidTransition("referral %s is already %s", referralID, current.Status)
	}

	updated, ok, err := s.repo.CompareAndSetStatus(ctx, referralID, StatusPending, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidTransition("referral %s is no longer pending", referralID)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.repo.GetByID(ctx, id)
}

// GetForClinic hides referrals owned by other clinics behind not-found.
func (s *Service) GetForClinic(ctx context.Context, clinicID, id uuid.UUID) (*Referral, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ClinicID != clinicID {
		return nil, apperr.NotFound("referral", id.String())
	}
	return r, nil
}

func (s *Service) ListForClinic(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]*Referral, int, error) {
	return s.repo.List(ctx, Filter{ClinicID: &clinicID}, limit, offset)
}

func (s *Service) ListForUnit(ctx context.Context, unitID uuid.UUID, limit, offset int) ([]*Referral, int, error) {
	return s.repo.List(ctx, Filter{UnitID: &unitID}, limit, offset)
}

func (s *Service) ListForHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Referral, int, error) {
	return s.repo.List(ctx, Filter{HospitalID: &hospitalID}, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]*Referral, int, error) {
	return s.repo.List(ctx, Filter{}, limit, offset)
}

// Latest returns the unit's n most recent referrals.
func (s *Service) Latest(ctx context.Context, unitID uuid.UUID, n int) ([]*Referral, error) {
	items, _, err := s.repo.List(ctx, Filter{UnitID: &unitID}, n, 0)
	return items, err
}

func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx)
}
