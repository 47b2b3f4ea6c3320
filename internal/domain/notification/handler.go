package notification

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/auth"
	"github.com/referhub/referhub/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the recipient's own notification routes. Used for
// both the clinic and the unit groups.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.GET("/notifications/unread-count", h.UnreadCount)
	g.PATCH("/notifications/:id/read", h.MarkRead)
	g.POST("/notifications/read-all", h.MarkAllRead)
}

func recipientOf(c echo.Context) (Recipient, error) {
	s, ok := auth.CurrentSubject(c)
	if !ok {
		return Recipient{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	t := RecipientType(s.Type)
	if !t.Valid() {
		return Recipient{}, apperr.Authorization("%s subjects do not receive notifications", s.Type)
	}
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return Recipient{}, apperr.Authorization("subject id %q is not a valid id", s.ID)
	}
	return Recipient{Type: t, ID: id}, nil
}

func (h *Handler) List(c echo.Context) error {
	r, err := recipientOf(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForRecipient(c.Request().Context(), r, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UnreadCount(c echo.Context) error {
	r, err := recipientOf(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	r, err := recipientOf(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid notification id")
	}
	n, err := h.svc.MarkRead(c.Request().Context(), r, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	r, err := recipientOf(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkAllRead(c.Request().Context(), r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}
