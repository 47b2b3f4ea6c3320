package referral

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/auth"
)

// directWorkflow runs the state machine without fan-out.
type directWorkflow struct{ svc *Service }

func (w directWorkflow) CreateReferral(ctx context.Context, clinicID uuid.UUID, req CreateRequest) (*Referral, error) {
	return w.svc.Create(ctx, clinicID, req)
}

func (w directWorkflow) RespondToReferral(ctx context.Context, unitID, referralID uuid.UUID, status string) (*Referral, error) {
	return w.svc.Respond(ctx, unitID, referralID, status)
}

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc, directWorkflow{f.svc}), f, echo.New()
}

func asSubject(e *echo.Echo, req *http.Request, id uuid.UUID, typ auth.SubjectType) (echo.Context, *httptest.ResponseRecorder) {
	req = req.WithContext(auth.WithSubject(req.Context(), auth.Subject{ID: id.String(), Type: typ}))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_Create(t *testing.T) {
	h, f, e := newTestHandler()
	body, _ := json.Marshal(f.request())
	c, rec := asSubject(e, jsonRequest(http.MethodPost, string(body)), f.clinic, auth.SubjectClinic)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp struct {
		Message  string   `json:"message"`
		Referral Referral `json:"referral"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Referral.Status != StatusPending || resp.Referral.ClinicID != f.clinic {
		t.Errorf("unexpected referral %+v", resp.Referral)
	}
}

func TestHandler_Create_MalformedBody(t *testing.T) {
	h, f, e := newTestHandler()
	c, _ := asSubject(e, jsonRequest(http.MethodPost, `{"reason":`), f.clinic, auth.SubjectClinic)
	if err := h.Create(c); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandler_Respond(t *testing.T) {
	h, f, e := newTestHandler()
	r := f.create(t)

	body := `{"referral_id":"` + r.ID.String() + `","status":"accepted"}`
	c, rec := asSubject(e, jsonRequest(http.MethodPost, body), f.unit, auth.SubjectUnit)
	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"accepted"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	c, _ = asSubject(e, jsonRequest(http.MethodPost, body), f.unit, auth.SubjectUnit)
	if err := h.Respond(c); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("second response: expected invalid transition, got %v", err)
	}
}

func TestHandler_Respond_BadReferralID(t *testing.T) {
	h, f, e := newTestHandler()
	c, _ := asSubject(e, jsonRequest(http.MethodPost, `{"referral_id":"r1","status":"accepted"}`), f.unit, auth.SubjectUnit)
	if err := h.Respond(c); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandler_GetForClinic(t *testing.T) {
	h, f, e := newTestHandler()
	r := f.create(t)

	c, rec := asSubject(e, httptest.NewRequest(http.MethodGet, "/", nil), f.clinic, auth.SubjectClinic)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	if err := h.GetForClinic(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = asSubject(e, httptest.NewRequest(http.MethodGet, "/", nil), uuid.New(), auth.SubjectClinic)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	if err := h.GetForClinic(c); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHandler_ListForUnit(t *testing.T) {
	h, f, e := newTestHandler()
	f.create(t)
	f.create(t)

	c, rec := asSubject(e, httptest.NewRequest(http.MethodGet, "/?limit=1", nil), f.unit, auth.SubjectUnit)
	if err := h.ListForUnit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 || !resp.HasMore {
		t.Errorf("unexpected page %+v", resp)
	}
}

func TestHandler_ListForHospital_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("hospitalId")
	c.SetParamValues("nope")
	if err := h.ListForHospital(c); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterClinicRoutes(e.Group("/api/clinic"))
	h.RegisterUnitRoutes(e.Group("/api/unit"))
	h.RegisterAdminRoutes(e.Group("/api/admin"))

	want := map[string]bool{
		"POST:/api/clinic/referrals":                    false,
		"GET:/api/clinic/referrals":                     false,
		"GET:/api/clinic/referrals/:id":                 false,
		"GET:/api/unit/referrals":                       false,
		"POST:/api/unit/referrals/respond":              false,
		"GET:/api/admin/referrals":                      false,
		"GET:/api/admin/hospital/:hospitalId/referrals": false,
		"GET:/api/admin/unit/:unitId/referrals":         false,
	}
	for _, r := range e.Routes() {
		key := r.Method + ":" + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("missing route %s", route)
		}
	}
}
