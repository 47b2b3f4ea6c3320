package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/referhub/referhub/internal/platform/apperr"
)

var testCfg = JWTConfig{Issuer: "referhub-test", SigningKey: []byte("test-secret")}

func runWith(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) (Subject, bool, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Subject
	var ok bool
	err := mw(func(c echo.Context) error {
		got, ok = CurrentSubject(c)
		return c.NoContent(http.StatusOK)
	})(c)
	return got, ok, err
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tok, err := IssueToken(testCfg, Subject{ID: "u1", Type: SubjectUnit, HospitalID: "h1"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/unit/referrals", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	s, ok, err := runWith(t, JWTMiddleware(testCfg), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || s.ID != "u1" || s.Type != SubjectUnit || s.HospitalID != "h1" {
		t.Fatalf("unexpected subject %+v (ok=%v)", s, ok)
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired, _ := IssueToken(testCfg, Subject{ID: "c1", Type: SubjectClinic}, -time.Minute)
	otherKey, _ := IssueToken(JWTConfig{Issuer: "referhub-test", SigningKey: []byte("other")}, Subject{ID: "c1", Type: SubjectClinic}, time.Hour)
	otherIssuer, _ := IssueToken(JWTConfig{Issuer: "someone-else", SigningKey: testCfg.SigningKey}, Subject{ID: "c1", Type: SubjectClinic}, time.Hour)

	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"garbage":      "Bearer not-a-token",
		"expired":      "Bearer " + expired,
		"wrong key":    "Bearer " + otherKey,
		"wrong issuer": "Bearer " + otherIssuer,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/clinic/referrals", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		_, _, err := runWith(t, JWTMiddleware(testCfg), req)
		if statusOf(err) != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %v", name, err)
		}
	}
}

func TestJWTMiddleware_QueryTokenOnUpgrade(t *testing.T) {
	tok, err := IssueToken(testCfg, Subject{ID: "c1", Type: SubjectClinic}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	upgrade := httptest.NewRequest(http.MethodGet, "/ws?access_token="+tok, nil)
	upgrade.Header.Set("Upgrade", "websocket")
	s, ok, err := runWith(t, JWTMiddleware(testCfg), upgrade)
	if err != nil || !ok || s.ID != "c1" {
		t.Fatalf("expected clinic subject from query token, got %+v ok=%v err=%v", s, ok, err)
	}

	plain := httptest.NewRequest(http.MethodGet, "/api/clinic/referrals?access_token="+tok, nil)
	if _, _, err := runWith(t, JWTMiddleware(testCfg), plain); statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("query token must only be honoured on upgrades, got %v", err)
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := testCfg
	cfg.Skipper = func(echo.Context) bool { return true }
	_, ok, err := runWith(t, JWTMiddleware(cfg), httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil || ok {
		t.Fatalf("skipped request should pass without a subject, err=%v ok=%v", err, ok)
	}
}

func TestIssueToken_RejectsInvalidSubjectType(t *testing.T) {
	if _, err := IssueToken(testCfg, Subject{ID: "x", Type: "nurse"}, time.Hour); err == nil {
		t.Fatal("expected error")
	}
	if _, err := IssueToken(JWTConfig{}, Subject{ID: "x", Type: SubjectAdmin}, time.Hour); err == nil {
		t.Fatal("expected error without signing key")
	}
}

func TestDevAuthMiddleware_Headers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderSubjectID, "c7")
	req.Header.Set(HeaderSubjectType, "clinic")

	s, ok, err := runWith(t, DevAuthMiddleware(JWTConfig{}), req)
	if err != nil || !ok {
		t.Fatalf("unexpected err=%v ok=%v", err, ok)
	}
	if s.ID != "c7" || s.Type != SubjectClinic {
		t.Fatalf("unexpected subject %+v", s)
	}
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	s, ok, err := runWith(t, DevAuthMiddleware(JWTConfig{}), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil || !ok || s.Type != SubjectAdmin {
		t.Fatalf("expected admin subject, got %+v err=%v", s, err)
	}
}

func TestDevAuthMiddleware_InvalidType(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderSubjectType, "nurse")
	_, _, err := runWith(t, DevAuthMiddleware(JWTConfig{}), req)
	if statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestDevAuthMiddleware_VerifiesTokenWhenPresent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	_, _, err := runWith(t, DevAuthMiddleware(testCfg), req)
	if statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequireSubjectType(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	mw := RequireSubjectType(SubjectUnit, SubjectAdmin)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req.WithContext(WithSubject(req.Context(), Subject{ID: "u1", Type: SubjectUnit})), httptest.NewRecorder())
	if err := mw(ok)(c); err != nil {
		t.Fatalf("unit should pass: %v", err)
	}

	c = e.NewContext(req.WithContext(WithSubject(req.Context(), Subject{ID: "c1", Type: SubjectClinic})), httptest.NewRecorder())
	if err := mw(ok)(c); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("clinic should be rejected with authorization error, got %v", err)
	}

	c = e.NewContext(req, httptest.NewRecorder())
	if err := mw(ok)(c); statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("missing subject should be 401, got %v", err)
	}
}

func TestAuthSkipper(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	c.SetPath("/health")
	if !AuthSkipper(c) {
		t.Error("expected /health to be public")
	}
	for _, path := range []string{"/api/admin/stats", "/ws"} {
		c.SetPath(path)
		if AuthSkipper(c) {
			t.Errorf("expected %s to require auth", path)
		}
	}
}

func TestSubjectUUID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	c := e.NewContext(req, httptest.NewRecorder())
	if _, err := SubjectUUID(c); statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 without subject, got %v", err)
	}

	c = e.NewContext(req.WithContext(WithSubject(req.Context(), Subject{ID: "dev-admin", Type: SubjectAdmin})), httptest.NewRecorder())
	if _, err := SubjectUUID(c); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected authorization error for non-uuid id, got %v", err)
	}

	id := "7a1c2d3e-0000-4000-8000-000000000001"
	c = e.NewContext(req.WithContext(WithSubject(req.Context(), Subject{ID: id, Type: SubjectUnit})), httptest.NewRecorder())
	got, err := SubjectUUID(c)
	if err != nil || got.String() != id {
		t.Fatalf("expected %s, got %s err=%v", id, got, err)
	}
}
