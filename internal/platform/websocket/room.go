package websocket

import (
	"errors"
	"fmt"

	"github.com/referhub/referhub/internal/platform/auth"
)

var ErrRoomForbidden = errors.New("room not permitted for this subject")

// RoomKind tags a RoomID.
type RoomKind string

const (
	RoomClinic   RoomKind = "clinic"
	RoomUnit     RoomKind = "unit"
	RoomHospital RoomKind = "hospital"
	RoomGlobal   RoomKind = "global"
)

// RoomID identifies a multicast group. It is comparable and is used directly
// as a map key; two RoomIDs are the same room iff Kind and OwnerID match.
type RoomID struct {
	Kind    RoomKind `json:"kind"`
	OwnerID string   `json:"id,omitempty"`
}

// GlobalRoom contains every live connection.
var GlobalRoom = RoomID{Kind: RoomGlobal}

func ClinicRoom(clinicID string) RoomID     { return RoomID{Kind: RoomClinic, OwnerID: clinicID} }
func UnitRoom(unitID string) RoomID         { return RoomID{Kind: RoomUnit, OwnerID: unitID} }
func HospitalRoom(hospitalID string) RoomID { return RoomID{Kind: RoomHospital, OwnerID: hospitalID} }

// ParseRoom builds a RoomID from a kind and owner id as received from a
// client. The global room takes no owner; every other kind requires one.
func ParseRoom(kind, ownerID string) (RoomID, error) {
	switch RoomKind(kind) {
	case RoomGlobal:
		if ownerID != "" {
			return RoomID{}, fmt.Errorf("global room takes no owner id")
		}
		return GlobalRoom, nil
	case RoomClinic, RoomUnit, RoomHospital:
		if ownerID == "" {
			return RoomID{}, fmt.Errorf("%s room requires an owner id", kind)
		}
		return RoomID{Kind: RoomKind(kind), OwnerID: ownerID}, nil
	}
	return RoomID{}, fmt.Errorf("unknown room kind %q", kind)
}

// String renders the room for logs only; it is never used as a key.
func (r RoomID) String() string {
	if r.Kind == RoomGlobal {
		return string(RoomGlobal)
	}
	return string(r.Kind) + ":" + r.OwnerID
}

// CanJoin reports whether s may subscribe to r. Admins may join any room. A
// clinic may join its own room. A unit may join its own room and its
// hospital's room. Everyone is already in the global room.
func CanJoin(s auth.Subject, r RoomID) bool {
	switch {
	case r == GlobalRoom, s.Type == auth.SubjectAdmin:
		return true
	case s.Type == auth.SubjectClinic:
		return r == ClinicRoom(s.ID)
	case s.Type == auth.SubjectUnit:
		return r == UnitRoom(s.ID) || (s.HospitalID != "" && r == HospitalRoom(s.HospitalID))
	}
	return false
}
