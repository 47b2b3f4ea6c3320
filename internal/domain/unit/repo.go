package unit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, u *Unit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Unit, error)
	List(ctx context.Context, limit, offset int) ([]*Unit, int, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Unit, int, error)
	// UpdatePresence writes the presence flags and bed count and advances
	// LastUpdated past its previous value.
	UpdatePresence(ctx context.Context, id uuid.UUID, p Presence) (*Unit, error)
	Count(ctx context.Context) (total, online int, err error)
}
