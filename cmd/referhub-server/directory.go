package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/referhub/referhub/internal/domain/facility"
	"github.com/referhub/referhub/internal/domain/referral"
	"github.com/referhub/referhub/internal/domain/unit"
)

type hospitalGetter interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*facility.Hospital, error)
}

type unitGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*unit.Unit, error)
}

// referralDirectory adapts the facility service and the unit repository to
// referral.Directory. It reads the unit repository directly because the unit
// service itself depends on the referral service.
type referralDirectory struct {
	hospitals hospitalGetter
	units     unitGetter
}

var _ referral.Directory = (*referralDirectory)(nil)

func newReferralDirectory(hospitals hospitalGetter, units unitGetter) *referralDirectory {
	return &referralDirectory{hospitals: hospitals, units: units}
}

func (d *referralDirectory) HospitalExists(ctx context.Context, id uuid.UUID) error {
	_, err := d.hospitals.GetHospital(ctx, id)
	return err
}

func (d *referralDirectory) UnitHospital(ctx context.Context, unitID uuid.UUID) (uuid.UUID, error) {
	u, err := d.units.GetByID(ctx, unitID)
	if err != nil {
		return uuid.Nil, err
	}
	return u.HospitalID, nil
}
