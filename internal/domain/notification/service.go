package notification

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/referhub/referhub/internal/platform/apperr"
)

// Recorder appends notification records. Its failures never undo the
// operation that produced the event; callers log and continue.
type Recorder interface {
	Record(ctx context.Context, to Recipient, eventType, message string) (*Notification, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// Record stores one notification for to. Storage failures come back as
// persistence errors.
func (s *Service) Record(ctx context.Context, to Recipient, eventType, message string) (*Notification, error) {
	if !to.Type.Valid() {
		return nil, apperr.Validation("invalid recipient type %q", to.Type)
	}
	if to.ID == uuid.Nil {
		return nil, apperr.Validation("recipient id is required")
	}
	if strings.TrimSpace(eventType) == "" {
		return nil, apperr.Validation("event type is required")
	}
	n := &Notification{
		RecipientType: to.Type,
		RecipientID:   to.ID,
		EventType:     eventType,
		Message:       truncate(message, MaxMessageLength),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			err = apperr.Persistence("record notification", err)
		}
		return nil, err
	}
	return n, nil
}

func (s *Service) ListForRecipient(ctx context.Context, r Recipient, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListForRecipient(ctx, r, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, r Recipient) (int, error) {
	return s.repo.UnreadCount(ctx, r)
}

// MarkRead is idempotent; the first read time is kept.
func (s *Service) MarkRead(ctx context.Context, r Recipient, id uuid.UUID) (*Notification, error) {
	return s.repo.MarkRead(ctx, r, id)
}

func (s *Service) MarkAllRead(ctx context.Context, r Recipient) (int, error) {
	return s.repo.MarkAllRead(ctx, r)
}
