package notification

import (
	"time"

	"github.com/google/uuid"
)

type RecipientType string

const (
	RecipientClinic RecipientType = "clinic"
	RecipientUnit   RecipientType = "unit"
)

func (t RecipientType) Valid() bool {
	return t == RecipientClinic || t == RecipientUnit
}

type Recipient struct {
	Type RecipientType `json:"type"`
	ID   uuid.UUID     `json:"id"`
}

func (r Recipient) String() string {
	return string(r.Type) + "/" + r.ID.String()
}

const MaxMessageLength = 500

// Notification is the durable record of one event for one recipient. Only
// the read state ever changes.
type Notification struct {
	ID            uuid.UUID     `json:"id"`
	RecipientType RecipientType `json:"recipient_type"`
	RecipientID   uuid.UUID     `json:"recipient_id"`
	EventType     string        `json:"event_type"`
	Message       string        `json:"message"`
	IsRead        bool          `json:"is_read"`
	ReadAt        *time.Time    `json:"read_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (n *Notification) Recipient() Recipient {
	return Recipient{Type: n.RecipientType, ID: n.RecipientID}
}
