package fanout

import (
	"time"

	"github.com/google/uuid"

	"github.com/referhub/referhub/internal/domain/notification"
	"github.com/referhub/referhub/internal/domain/referral"
)

// Admin stats actions carried by admin_stats_update events.
const (
	ActionReferralCreated   = "referral_created"
	ActionReferralResponded = "referral_responded"
	ActionUnitStatusUpdated = "unit_status_updated"
)

// Event bodies as seen by each room.

type UnitReferralBody struct {
	Referral     *referral.Referral         `json:"referral"`
	Notification *notification.Notification `json:"notification,omitempty"`
	Message      string                     `json:"message"`
}

type HospitalReferralBody struct {
	Referral   *referral.Referral `json:"referral"`
	HospitalID uuid.UUID          `json:"hospital_id"`
	UnitID     uuid.UUID          `json:"unit_id"`
}

type ClinicResponseBody struct {
	Referral     *referral.Referral         `json:"referral"`
	Notification *notification.Notification `json:"notification,omitempty"`
	Status       referral.Status            `json:"status"`
	Message      string                     `json:"message"`
}

type HospitalResponseBody struct {
	ReferralID uuid.UUID       `json:"referral_id"`
	Status     referral.Status `json:"status"`
	UnitID     uuid.UUID       `json:"unit_id"`
	HospitalID uuid.UUID       `json:"hospital_id"`
}

type UnitStatusBody struct {
	UnitID             uuid.UUID `json:"unit_id"`
	UnitName           string    `json:"unit_name"`
	HospitalID         uuid.UUID `json:"hospital_id"`
	IsOnline           bool      `json:"is_online"`
	AcceptingReferrals bool      `json:"accepting_referrals"`
	AvailableBeds      int       `json:"available_beds"`
	LastUpdated        time.Time `json:"last_updated"`
}

type BedCountBody struct {
	UnitID             uuid.UUID `json:"unit_id"`
	UnitName           string    `json:"unit_name"`
	HospitalID         uuid.UUID `json:"hospital_id"`
	HospitalName       string    `json:"hospital_name"`
	AvailableBeds      int       `json:"available_beds"`
	AcceptingReferrals bool      `json:"accepting_referrals"`
	LastUpdated        time.Time `json:"last_updated"`
}

type AdminStatsBody struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}

type ReferralStatsData struct {
	ReferralID uuid.UUID        `json:"referral_id"`
	HospitalID uuid.UUID        `json:"hospital_id"`
	UnitID     uuid.UUID        `json:"unit_id"`
	Urgency    referral.Urgency `json:"urgency"`
	Status     referral.Status  `json:"status"`
	Timestamp  time.Time        `json:"timestamp"`
}
