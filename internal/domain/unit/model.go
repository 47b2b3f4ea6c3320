package unit

import (
	"time"

	"github.com/google/uuid"

	"github.com/referhub/referhub/internal/domain/facility"
	"github.com/referhub/referhub/internal/domain/referral"
)

const MaxBeds = 1000

// Presence is the unit's self-reported operational state.
type Presence struct {
	IsOnline           bool      `json:"is_online"`
	AcceptingReferrals bool      `json:"accepting_referrals"`
	AvailableBeds      int       `json:"available_beds"`
	LastUpdated        time.Time `json:"last_updated"`
}

type Unit struct {
	ID         uuid.UUID `json:"id"`
	HospitalID uuid.UUID `json:"hospital_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Presence
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the cached view of a unit's presence.
type Snapshot struct {
	UnitID     uuid.UUID `json:"unit_id"`
	HospitalID uuid.UUID `json:"hospital_id"`
	Name       string    `json:"name"`
	Presence
}

func (u *Unit) Snapshot() Snapshot {
	return Snapshot{UnitID: u.ID, HospitalID: u.HospitalID, Name: u.Name, Presence: u.Presence}
}

type CreateRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	Email         string `json:"email" validate:"required,email"`
	AvailableBeds *int   `json:"available_beds" validate:"required,min=0,max=1000"`
}

type StatusRequest struct {
	IsOnline           *bool `json:"is_online" validate:"required"`
	AcceptingReferrals *bool `json:"accepting_referrals" validate:"required"`
	AvailableBeds      *int  `json:"available_beds" validate:"required,min=0,max=1000"`
}

type Dashboard struct {
	Unit            *Unit                `json:"unit"`
	Hospital        *facility.Hospital   `json:"hospital"`
	RecentReferrals []*referral.Referral `json:"recent_referrals"`
}
