package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListForRecipient(ctx context.Context, r Recipient, limit, offset int) ([]*Notification, int, error)
	UnreadCount(ctx context.Context, r Recipient) (int, error)
	// MarkRead returns not-found when id does not belong to r.
	MarkRead(ctx context.Context, r Recipient, id uuid.UUID) (*Notification, error)
	MarkAllRead(ctx context.Context, r Recipient) (int, error)
}
