package facility

import (
	"time"

	"github.com/google/uuid"
)

// Hospital owns units and receives referrals through them.
type Hospital struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Location  string    `db:"location" json:"location"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Clinic originates referrals.
type Clinic struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Location  string    `db:"location" json:"location"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type CreateHospitalRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Location string `json:"location" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"required,max=20"`
}

type CreateClinicRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Location string `json:"location" validate:"required,max=200"`
}
