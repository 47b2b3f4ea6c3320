package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/referhub/referhub/internal/platform/apperr"
)

// Development-mode identity headers, honoured only by DevAuthMiddleware.
const (
	HeaderSubjectID   = "X-Subject-ID"
	HeaderSubjectType = "X-Subject-Type"
	HeaderHospitalID  = "X-Hospital-ID"
)

type Claims struct {
	jwt.RegisteredClaims
	SubjectType SubjectType `json:"subject_type"`
	HospitalID  string      `json:"hospital_id,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	Skipper    func(c echo.Context) bool
}

// IssueToken signs an HS256 token for s that expires after ttl.
func IssueToken(cfg JWTConfig, s Subject, ttl time.Duration) (string, error) {
	if len(cfg.SigningKey) == 0 {
		return "", fmt.Errorf("signing key is required")
	}
	if !s.Type.Valid() {
		return "", fmt.Errorf("invalid subject type %q", s.Type)
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SubjectType: s.Type,
		HospitalID:  s.HospitalID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

func parseToken(cfg JWTConfig, header string) (Subject, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return Subject{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Subject{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	if claims.Subject == "" || !claims.SubjectType.Valid() {
		return Subject{}, echo.NewHTTPError(http.StatusUnauthorized, "token does not name a subject")
	}
	return Subject{ID: claims.Subject, Type: claims.SubjectType, HospitalID: claims.HospitalID}, nil
}

// QueryAccessToken carries the bearer token on websocket upgrades, where
// browsers cannot set an Authorization header.
const QueryAccessToken = "access_token"

// authorizationOf returns the Authorization header, or a bearer header built
// from the access_token query parameter for websocket upgrades.
func authorizationOf(req *http.Request) string {
	if header := req.Header.Get("Authorization"); header != "" {
		return header
	}
	if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		if tok := req.URL.Query().Get(QueryAccessToken); tok != "" {
			return "Bearer " + tok
		}
	}
	return ""
}

func setSubject(c echo.Context, s Subject) {
	c.Set(subjectEchoKey, s)
	c.SetRequest(c.Request().WithContext(WithSubject(c.Request().Context(), s)))
}

// JWTMiddleware authenticates every request with an HS256 bearer token.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			header := authorizationOf(c.Request())
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			s, err := parseToken(cfg, header)
			if err != nil {
				return err
			}
			setSubject(c, s)
			return next(c)
		}
	}
}

// DevAuthMiddleware accepts requests without a bearer token and takes the
// subject from X-Subject-* headers, defaulting to an admin. A bearer token,
// when present and a signing key is configured, is still verified.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			req := c.Request()
			if header := authorizationOf(req); header != "" && len(cfg.SigningKey) > 0 {
				s, err := parseToken(cfg, header)
				if err != nil {
					return err
				}
				setSubject(c, s)
				return next(c)
			}

			s := Subject{
				ID:         lo.Ternary(req.Header.Get(HeaderSubjectID) != "", req.Header.Get(HeaderSubjectID), "dev-admin"),
				Type:       SubjectType(lo.Ternary(req.Header.Get(HeaderSubjectType) != "", req.Header.Get(HeaderSubjectType), string(SubjectAdmin))),
				HospitalID: req.Header.Get(HeaderHospitalID),
			}
			if !s.Type.Valid() {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject type")
			}
			setSubject(c, s)
			return next(c)
		}
	}
}

// RequireSubjectType rejects requests whose subject is not one of types.
func RequireSubjectType(types ...SubjectType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := SubjectFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}
			if !lo.Contains(types, s.Type) {
				return apperr.Authorization("%s subjects may not access this resource", s.Type)
			}
			return next(c)
		}
	}
}

// CurrentSubject returns the subject set by the auth middleware.
func CurrentSubject(c echo.Context) (Subject, bool) {
	if s, ok := c.Get(subjectEchoKey).(Subject); ok {
		return s, true
	}
	return SubjectFromContext(c.Request().Context())
}

// SubjectUUID returns the current subject's id as a UUID. Requests that reach
// a resource handler without one are rejected as unauthorized.
func SubjectUUID(c echo.Context) (uuid.UUID, error) {
	s, ok := CurrentSubject(c)
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return uuid.Nil, apperr.Authorization("subject id %q is not a valid id", s.ID)
	}
	return id, nil
}
