// Package apperr defines the error taxonomy shared by the referral engine, the
// notification pipeline and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindAuthorization     Kind = "authorization"
	KindInvalidTransition Kind = "invalid_transition"
	KindPersistence       Kind = "persistence"
	KindDelivery          Kind = "delivery"
	KindInternal          Kind = "internal"
)

// Sentinels usable with errors.Is.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrPersistence       = &Error{Kind: KindPersistence}
	ErrDelivery          = &Error{Kind: KindDelivery}
	ErrInternal          = &Error{Kind: KindInternal}
)

// Error carries a Kind, a caller-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotFound) works
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func Authorization(format string, args ...interface{}) error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

func Delivery(target string, err error) error {
	return &Error{Kind: KindDelivery, Message: target, Err: err}
}

func Internal(err error) error {
	return &Error{Kind: KindInternal, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind onto an HTTP status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindInvalidTransition:
		return http.StatusConflict
	case KindPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
}

// HTTPErrorHandler renders *Error values and echo.HTTPError values as
// ErrorResponse. Persistence and internal faults get a generic message so no
// driver detail reaches the client.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := fmt.Sprintf("%v", he.Message)
			kind := KindInternal
			switch {
			case he.Code == http.StatusNotFound:
				kind = KindNotFound
			case he.Code == http.StatusUnauthorized || he.Code == http.StatusForbidden:
				kind = KindAuthorization
			case he.Code < http.StatusInternalServerError:
				kind = KindValidation
			}
			_ = c.JSON(he.Code, ErrorResponse{Error: kind, Message: msg})
			return
		}

		kind := KindOf(err)
		resp := ErrorResponse{Error: kind}
		switch kind {
		case KindPersistence, KindInternal, KindDelivery:
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
			resp.Message = "internal server error"
		default:
			var e *Error
			errors.As(err, &e)
			resp.Message = e.Message
		}
		_ = c.JSON(HTTPStatus(kind), resp)
	}
}
