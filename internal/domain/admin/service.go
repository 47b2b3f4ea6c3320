package admin

import (
	"context"

	"github.com/referhub/referhub/internal/domain/referral"
)

type DirectoryCounter interface {
	CountHospitals(ctx context.Context) (int, error)
	CountClinics(ctx context.Context) (int, error)
}

type UnitCounter interface {
	Count(ctx context.Context) (total, online int, err error)
}

type ReferralCounter interface {
	CountByStatus(ctx context.Context) (map[referral.Status]int, error)
}

// ConnectionCounter reports live realtime connections.
type ConnectionCounter interface {
	ClientCount() int
}

type Stats struct {
	TotalHospitals    int `json:"total_hospitals"`
	TotalClinics      int `json:"total_clinics"`
	TotalUnits        int `json:"total_units"`
	ActiveUnits       int `json:"active_units"`
	TotalReferrals    int `json:"total_referrals"`
	PendingReferrals  int `json:"pending_referrals"`
	AcceptedReferrals int `json:"accepted_referrals"`
	DeclinedReferrals int `json:"declined_referrals"`
	LiveConnections   int `json:"live_connections"`
}

type Service struct {
	directory DirectoryCounter
	units     UnitCounter
	referrals ReferralCounter
	conns     ConnectionCounter
}

func NewService(directory DirectoryCounter, units UnitCounter, referrals ReferralCounter, conns ConnectionCounter) *Service {
	return &Service{directory: directory, units: units, referrals: referrals, conns: conns}
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	var err error
	if st.TotalHospitals, err = s.directory.CountHospitals(ctx); err != nil {
		return nil, err
	}
	if st.TotalClinics, err = s.directory.CountClinics(ctx); err != nil {
		return nil, err
	}
	if st.TotalUnits, st.ActiveUnits, err = s.units.Count(ctx); err != nil {
		return nil, err
	}
	byStatus, err := s.referrals.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	st.PendingReferrals = byStatus[referral.StatusPending]
	st.AcceptedReferrals = byStatus[referral.StatusAccepted]
	st.DeclinedReferrals = byStatus[referral.StatusDeclined]
	st.TotalReferrals = st.PendingReferrals + st.AcceptedReferrals + st.DeclinedReferrals
	if s.conns != nil {
		st.LiveConnections = s.conns.ClientCount()
	}
	return &st, nil
}
