package auth

import (
	"context"
	"fmt"
)

// SubjectType is the kind of principal behind a request.
type SubjectType string

const (
	SubjectClinic SubjectType = "clinic"
	SubjectUnit   SubjectType = "unit"
	SubjectAdmin  SubjectType = "admin"
)

func (t SubjectType) Valid() bool {
	switch t {
	case SubjectClinic, SubjectUnit, SubjectAdmin:
		return true
	}
	return false
}

// Subject is the authenticated principal. ID is the clinic or unit id for
// clinic and unit subjects; HospitalID is set for unit subjects.
type Subject struct {
	ID         string      `json:"id"`
	Type       SubjectType `json:"type"`
	HospitalID string      `json:"hospital_id,omitempty"`
}

func (s Subject) String() string {
	return fmt.Sprintf("%s/%s", s.Type, s.ID)
}

type contextKey string

const (
	SubjectKey contextKey = "subject"

	// subjectEchoKey is the echo.Context key mirroring SubjectKey.
	subjectEchoKey = "subject"
)

// WithSubject returns a copy of ctx carrying s.
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, SubjectKey, s)
}

func SubjectFromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(SubjectKey).(Subject)
	return s, ok
}
