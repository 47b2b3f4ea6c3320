package unit

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/auth"
	"github.com/referhub/referhub/pkg/pagination"
)

// StatusUpdater applies a unit's status change together with its live
// fan-out.
type StatusUpdater interface {
	UpdateUnitStatus(ctx context.Context, unitID uuid.UUID, req StatusRequest) (*Unit, error)
}

type Handler struct {
	svc     *Service
	updater StatusUpdater
}

func NewHandler(svc *Service, updater StatusUpdater) *Handler {
	return &Handler{svc: svc, updater: updater}
}

func (h *Handler) RegisterUnitRoutes(unit *echo.Group) {
	unit.GET("/dashboard", h.Dashboard)
	unit.PUT("/status", h.UpdateStatus)
}

func (h *Handler) RegisterClinicRoutes(clinic *echo.Group) {
	clinic.GET("/hospital/:hospitalId/units", h.ListByHospital)
	clinic.GET("/unit/:unitId/presence", h.GetPresence)
}

func (h *Handler) RegisterAdminRoutes(admin *echo.Group) {
	admin.POST("/hospital/:hospitalId/unit/register", h.Create)
	admin.GET("/units", h.List)
	admin.GET("/hospital/:hospitalId/units", h.ListByHospital)
}

func (h *Handler) Create(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.Param("hospitalId"))
	if err != nil {
		return apperr.Validation("invalid hospital id")
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}
	u, err := h.svc.Create(c.Request().Context(), hospitalID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListByHospital(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.Param("hospitalId"))
	if err != nil {
		return apperr.Validation("invalid hospital id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByHospital(c.Request().Context(), hospitalID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetPresence(c echo.Context) error {
	unitID, err := uuid.Parse(c.Param("unitId"))
	if err != nil {
		return apperr.Validation("invalid unit id")
	}
	snap, err := h.svc.GetPresence(c.Request().Context(), unitID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) Dashboard(c echo.Context) error {
	unitID, err := auth.SubjectUUID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Dashboard(c.Request().Context(), unitID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	unitID, err := auth.SubjectUUID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}
	u, err := h.updater.UpdateUnitStatus(c.Request().Context(), unitID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Status updated",
		"unit":    u,
	})
}
