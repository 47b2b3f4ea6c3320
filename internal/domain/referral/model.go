package referral

import (
	"time"

	"github.com/google/uuid"
)

// Status is a referral's lifecycle state. pending is the only non-terminal
// state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// ParseResponse accepts the two statuses a unit may respond with.
func ParseResponse(s string) (Status, bool) {
	switch Status(s) {
	case StatusAccepted, StatusDeclined:
		return Status(s), true
	}
	return "", false
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyModerate Urgency = "moderate"
	UrgencyHigh     Urgency = "high"
)

// Vitals are recorded as the clinic typed them.
type Vitals struct {
	Temperature     string `json:"temperature,omitempty" validate:"max=20"`
	BP              string `json:"bp,omitempty" validate:"max=20"`
	Pulse           string `json:"pulse,omitempty" validate:"max=20"`
	O2Sat           string `json:"o2_sat,omitempty" validate:"max=20"`
	RespirationRate string `json:"respiration_rate,omitempty" validate:"max=20"`
}

type Patient struct {
	ID         uuid.UUID `json:"id"`
	Fullname   string    `json:"fullname"`
	Age        int       `json:"age"`
	Gender     string    `json:"gender"`
	Phone      *string   `json:"phone,omitempty"`
	NHISNumber *string   `json:"nhis_number,omitempty"`
	Vitals     Vitals    `json:"vitals"`
	CreatedAt  time.Time `json:"created_at"`
}

type Referral struct {
	ID             uuid.UUID `json:"id"`
	ClinicID       uuid.UUID `json:"clinic_id"`
	HospitalID     uuid.UUID `json:"hospital_id"`
	UnitID         uuid.UUID `json:"unit_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Reason         string    `json:"reason"`
	Urgency        Urgency   `json:"urgency"`
	AdditionalNote *string   `json:"additional_note,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Patient *Patient `json:"patient,omitempty"`
}

type PatientInfo struct {
	Fullname   string `json:"fullname" validate:"required,max=100"`
	Age        *int   `json:"age" validate:"required,min=0,max=150"`
	Gender     string `json:"gender" validate:"required,oneof=male female other"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,max=20"`
	NHISNumber string `json:"nhis_number,omitempty" validate:"omitempty,max=50"`
}

// CreateRequest is what a clinic submits. The clinic itself comes from the
// authenticated subject.
type CreateRequest struct {
	HospitalID     string      `json:"hospital_id" validate:"required,uuid"`
	UnitID         string      `json:"unit_id" validate:"required,uuid"`
	Patient        PatientInfo `json:"patient"`
	Vitals         Vitals      `json:"vitals"`
	Reason         string      `json:"reason" validate:"required,max=500"`
	Urgency        string      `json:"urgency" validate:"required,oneof=low moderate high"`
	AdditionalNote string      `json:"additional_note,omitempty" validate:"max=1000"`
}

type RespondRequest struct {
	ReferralID string `json:"referral_id"`
	Status     string `json:"status"`
}

// Filter narrows list queries. Nil fields are not constrained.
type Filter struct {
	ClinicID   *uuid.UUID
	HospitalID *uuid.UUID
	UnitID     *uuid.UUID
}
