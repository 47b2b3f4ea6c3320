package referral

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create stores the referral and its patient together.
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Referral, int, error)
	// CompareAndSetStatus moves the referral from expected to next in one
	// conditional write. ok is false when the stored status was not expected
	// or the referral does not exist.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (r *Referral, ok bool, err error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
