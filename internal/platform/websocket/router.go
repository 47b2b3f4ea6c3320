package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/referhub/referhub/internal/platform/apperr"
)

// EventType names a notification pushed to connected clients.
type EventType string

const (
	EventNewReferral       EventType = "new_referral"
	EventReferralResponse  EventType = "referral_response"
	EventUnitStatusUpdated EventType = "unit_status_updated"
	EventBedCountUpdated   EventType = "bed_count_updated"
	EventAdminStatsUpdate  EventType = "admin_stats_update"
)

// Envelope is the JSON payload every room member receives.
type Envelope struct {
	Type      EventType   `json:"type"`
	Entity    interface{} `json:"entity"`
	Timestamp time.Time   `json:"timestamp"`
}

// DomainEvent is a fact to be fanned out to one or more rooms. AlsoGlobal
// adds the global room to TargetRooms.
type DomainEvent struct {
	Type        EventType
	TargetRooms []RoomID
	AlsoGlobal  bool
	Body        interface{}
	Timestamp   time.Time
}

// Rooms returns the de-duplicated set of rooms the event goes to. Every
// connection is a member of the global room, so an event addressed to it goes
// to the global room alone and no connection receives it twice.
func (e DomainEvent) Rooms() []RoomID {
	if e.AlsoGlobal || lo.Contains(e.TargetRooms, GlobalRoom) {
		return []RoomID{GlobalRoom}
	}
	return lo.Uniq(e.TargetRooms)
}

// EventPublisher fans domain events out to subscribers. The in-process Router
// is the only implementation; a cross-process bus would satisfy the same
// interface.
type EventPublisher interface {
	Publish(ctx context.Context, ev DomainEvent) error
}

// Router delivers domain events to the members of their target rooms.
// Delivery never blocks on a slow connection.
type Router struct {
	hub     *Hub
	logger  zerolog.Logger
	marshal func(v interface{}) ([]byte, error)
	now     func() time.Time
}

func NewRouter(hub *Hub, logger zerolog.Logger) *Router {
	return &Router{hub: hub, logger: logger, marshal: json.Marshal, now: time.Now}
}

// Publish encodes and delivers ev to each target room independently. A room
// whose payload cannot be produced is skipped and reported; the other rooms
// still receive the event. The returned error joins one DeliveryError per
// failed room.
func (r *Router) Publish(_ context.Context, ev DomainEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = r.now().UTC()
	}

	var errs []error
	for _, room := range ev.Rooms() {
		payload, err := r.marshal(Envelope{Type: ev.Type, Entity: ev.Body, Timestamp: ts})
		if err != nil {
			r.logger.Error().Err(err).Str("event", string(ev.Type)).Stringer("room", room).Msg("event encoding failed")
			errs = append(errs, apperr.Delivery(room.String(), err))
			continue
		}
		n := r.hub.broadcast(room, payload)
		r.logger.Debug().Str("event", string(ev.Type)).Stringer("room", room).Int("recipients", n).Msg("event delivered")
	}
	return errors.Join(errs...)
}
