package facility

import (
	"context"

	"github.com/google/uuid"
)

type HospitalRepository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	List(ctx context.Context, limit, offset int) ([]*Hospital, int, error)
}

type ClinicRepository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	List(ctx context.Context, limit, offset int) ([]*Clinic, int, error)
}
