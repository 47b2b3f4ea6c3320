package facility

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/referhub/referhub/internal/platform/validation"
)

type Service struct {
	hospitals HospitalRepository
	clinics   ClinicRepository
	validate  *validation.Validator
}

func NewService(hospitals HospitalRepository, clinics ClinicRepository, v *validation.Validator) *Service {
	return &Service{hospitals: hospitals, clinics: clinics, validate: v}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// -- Hospitals --

func (s *Service) CreateHospital(ctx context.Context, req CreateHospitalRequest) (*Hospital, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	h := &Hospital{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Location: strings.TrimSpace(req.Location),
		Phone:    strings.TrimSpace(req.Phone),
	}
	if err := s.hospitals.Create(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.hospitals.GetByID(ctx, id)
}

func (s *Service) ListHospitals(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	return s.hospitals.List(ctx, limit, offset)
}

// -- Clinics --

func (s *Service) CreateClinic(ctx context.Context, req CreateClinicRequest) (*Clinic, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	c := &Clinic{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Location: strings.TrimSpace(req.Location),
	}
	if err := s.clinics.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.clinics.GetByID(ctx, id)
}

func (s *Service) ListClinics(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	return s.clinics.List(ctx, limit, offset)
}

func (s *Service) CountHospitals(ctx context.Context) (int, error) {
	_, total, err := s.hospitals.List(ctx, 0, 0)
	return total, err
}

func (s *Service) CountClinics(ctx context.Context) (int, error) {
	_, total, err := s.clinics.List(ctx, 0, 0)
	return total, err
}
