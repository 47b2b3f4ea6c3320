// Package fanout sequences every state-changing referral and unit operation:
// commit, record the durable notification, then publish to live rooms.
package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referhub/referhub/internal/domain/facility"
	"github.com/referhub/referhub/internal/domain/notification"
	"github.com/referhub/referhub/internal/domain/referral"
	"github.com/referhub/referhub/internal/domain/unit"
	"github.com/referhub/referhub/internal/platform/websocket"
)

type ReferralMachine interface {
	Create(ctx context.Context, clinicID uuid.UUID, req referral.CreateRequest) (*referral.Referral, error)
	Respond(ctx context.Context, unitID, referralID uuid.UUID, status string) (*referral.Referral, error)
}

type UnitStatusService interface {
	Get(ctx context.Context, id uuid.UUID) (*unit.Unit, error)
	UpdateStatus(ctx context.Context, unitID uuid.UUID, req unit.StatusRequest) (*unit.Unit, error)
}

// Directory supplies display names for notification messages.
type Directory interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*facility.Hospital, error)
	GetClinic(ctx context.Context, id uuid.UUID) (*facility.Clinic, error)
}

var (
	_ referral.Workflow  = (*Coordinator)(nil)
	_ unit.StatusUpdater = (*Coordinator)(nil)
)

type Coordinator struct {
	referrals ReferralMachine
	units     UnitStatusService
	directory Directory
	recorder  notification.Recorder
	publisher websocket.EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewCoordinator(
	referrals ReferralMachine,
	units UnitStatusService,
	directory Directory,
	recorder notification.Recorder,
	publisher websocket.EventPublisher,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		referrals: referrals,
		units:     units,
		directory: directory,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.With().Str("component", "fanout").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateReferral commits a new referral, records a notification for the
// target unit and pushes new_referral to the unit and hospital rooms plus an
// admin stats update to the global room.
func (c *Coordinator) CreateReferral(ctx context.Context, clinicID uuid.UUID, req referral.CreateRequest) (*referral.Referral, error) {
	r, err := c.referrals.Create(ctx, clinicID, req)
	if err != nil {
		return nil, err
	}
	// Committed. Nothing below may fail the call.
	ctx = context.WithoutCancel(ctx)
	ts := c.now()

	clinicName := "a clinic"
	if cl, err := c.directory.GetClinic(ctx, r.ClinicID); err != nil {
		c.logger.Warn().Err(err).Str("clinic_id", r.ClinicID.String()).Msg("clinic lookup failed")
	} else {
		clinicName = cl.Name
	}

	n := c.record(ctx, notification.Recipient{Type: notification.RecipientUnit, ID: r.UnitID},
		string(websocket.EventNewReferral),
		fmt.Sprintf("New referral from %s for %s", clinicName, patientName(r)))

	c.publish(ctx, websocket.DomainEvent{
		Type:        websocket.EventNewReferral,
		TargetRooms: []websocket.RoomID{websocket.UnitRoom(r.UnitID.String())},
		Body: UnitReferralBody{
			Referral:     r,
			Notification: n,
			Message:      fmt.Sprintf("New %s priority referral received", r.Urgency),
		},
		Timestamp: ts,
	})
	c.publish(ctx, websocket.DomainEvent{
		Type:        websocket.EventNewReferral,
		TargetRooms: []websocket.RoomID{websocket.HospitalRoom(r.HospitalID.String())},
		Body:        HospitalReferralBody{Referral: r, HospitalID: r.HospitalID, UnitID: r.UnitID},
		Timestamp:   ts,
	})
	c.publishStats(ctx, ActionReferralCreated, referralStats(r, ts), ts)
	return r, nil
}

// RespondToReferral commits a unit's decision, records a notification for
// the originating clinic and pushes referral_response to the clinic and
// hospital rooms plus an admin stats update. A lost race records and
// publishes nothing.
func (c *Coordinator) RespondToReferral(ctx context.Context, unitID, referralID uuid.UUID, status string) (*referral.Referral, error) {
	r, err := c.referrals.Respond(ctx, unitID, referralID, status)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	ts := c.now()

	unitName := "the unit"
	if u, err := c.units.Get(ctx, r.UnitID); err != nil {
		c.logger.Warn().Err(err).Str("unit_id", r.UnitID.String()).Msg("unit lookup failed")
	} else {
		unitName = u.Name
	}

	n := c.record(ctx, notification.Recipient{Type: notification.RecipientClinic, ID: r.ClinicID},
		string(websocket.EventReferralResponse),
		fmt.Sprintf("Your referral for %s has been %s", patientName(r), r.Status))

	c.publish(ctx, websocket.DomainEvent{
		Type:        websocket.EventReferralResponse,
		TargetRooms: []websocket.RoomID{websocket.ClinicRoom(r.ClinicID.String())},
		Body: ClinicResponseBody{
			Referral:     r,
			Notification: n,
			Status:       r.Status,
			Message:      fmt.Sprintf("Referral for %s %s by %s", patientName(r), r.Status, unitName),
		},
		Timestamp: ts,
	})
	c.publish(ctx, websocket.DomainEvent{
		Type:        websocket.EventReferralResponse,
		TargetRooms: []websocket.RoomID{websocket.HospitalRoom(r.HospitalID.String())},
		Body: HospitalResponseBody{
			ReferralID: r.ID,
			Status:     r.Status,
			UnitID:     r.UnitID,
			HospitalID: r.HospitalID,
		},
		Timestamp: ts,
	})
	c.publishStats(ctx, ActionReferralResponded, referralStats(r, ts), ts)
	return r, nil
}

// UpdateUnitStatus commits the unit's presence and pushes it to the owning
// hospital's room and the global room. Presence changes have no notification
// record; recipients are clinics and units only.
func (c *Coordinator) UpdateUnitStatus(ctx context.Context, unitID uuid.UUID, req unit.StatusRequest) (*unit.Unit, error) {
	u, err := c.units.UpdateStatus(ctx, unitID, req)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	ts := c.now()

	hospitalName := ""
	if h, err := c.directory.GetHospital(ctx, u.HospitalID); err != nil {
		c.logger.Warn().Err(err).Str("hospital_id", u.HospitalID.String()).Msg("hospital lookup failed")
	} else {
		hospitalName = h.Name
	}

	status := UnitStatusBody{
		UnitID:             u.ID,
		UnitName:           u.Name,
		HospitalID:         u.HospitalID,
		IsOnline:           u.IsOnline,
		AcceptingReferrals: u.AcceptingReferrals,
		AvailableBeds:      u.AvailableBeds,
		LastUpdated:        u.LastUpdated,
	}
	c.publish(ctx, websocket.DomainEvent{
		Type:        websocket.EventUnitStatusUpdated,
		TargetRooms: []websocket.RoomID{websocket.HospitalRoom(u.HospitalID.String())},
		Body:        status,
		Timestamp:   ts,
	})
	c.publishStats(ctx, ActionUnitStatusUpdated, status, ts)
	c.publish(ctx, websocket.DomainEvent{
		Type:       websocket.EventBedCountUpdated,
		AlsoGlobal: true,
		Body: BedCountBody{
			UnitID:             u.ID,
			UnitName:           u.Name,
			HospitalID:         u.HospitalID,
			HospitalName:       hospitalName,
			AvailableBeds:      u.AvailableBeds,
			AcceptingReferrals: u.AcceptingReferrals,
			LastUpdated:        u.LastUpdated,
		},
		Timestamp: ts,
	})
	return u, nil
}

func (c *Coordinator) record(ctx context.Context, to notification.Recipient, eventType, message string) *notification.Notification {
	n, err := c.recorder.Record(ctx, to, eventType, message)
	if err != nil {
		c.logger.Warn().Err(err).Stringer("recipient", to).Str("event", eventType).Msg("notification not recorded")
		return nil
	}
	return n
}

func (c *Coordinator) publish(ctx context.Context, ev websocket.DomainEvent) {
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("live delivery failed")
	}
}

func (c *Coordinator) publishStats(ctx context.Context, action string, data interface{}, ts time.Time) {
	c.publish(ctx, websocket.DomainEvent{
		Type:       websocket.EventAdminStatsUpdate,
		AlsoGlobal: true,
		Body:       AdminStatsBody{Action: action, Data: data},
		Timestamp:  ts,
	})
}

func referralStats(r *referral.Referral, ts time.Time) ReferralStatsData {
	return ReferralStatsData{
		ReferralID: r.ID,
		HospitalID: r.HospitalID,
		UnitID:     r.UnitID,
		Urgency:    r.Urgency,
		Status:     r.Status,
		Timestamp:  ts,
	}
}

func patientName(r *referral.Referral) string {
	if r.Patient == nil || r.Patient.Fullname == "" {
		return "the patient"
	}
	return r.Patient.Fullname
}
