package referral

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/auth"
	"github.com/referhub/referhub/pkg/pagination"
)

// Workflow performs the state-changing referral operations together with
// their notification and live fan-out.
type Workflow interface {
	CreateReferral(ctx context.Context, clinicID uuid.UUID, req CreateRequest) (*Referral, error)
	RespondToReferral(ctx context.Context, unitID, referralID uuid.UUID, status string) (*Referral, error)
}

type Handler struct {
	svc  *Service
	flow Workflow
}

func NewHandler(svc *Service, flow Workflow) *Handler {
	return &Handler{svc: svc, flow: flow}
}

func (h *Handler) RegisterClinicRoutes(clinic *echo.Group) {
	clinic.POST("/referrals", h.Create)
	clinic.GET("/referrals", h.ListForClinic)
	clinic.GET("/referrals/:id", h.GetForClinic)
}

func (h *Handler) RegisterUnitRoutes(unit *echo.Group) {
	unit.GET("/referrals", h.ListForUnit)
	unit.POST("/referrals/respond", h.Respond)
}

func (h *Handler) RegisterAdminRoutes(admin *echo.Group) {
	admin.GET("/referrals", h.ListAll)
	admin.GET("/hospital/:hospitalId/referrals", h.ListForHospital)
	admin.GET("/unit/:unitId/referrals", h.ListForUnitAdmin)
}

func parseID(c echo.Context, param, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s id", entity)
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	clinicID, err := auth.SubjectUUID(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}
	r, err := h.flow.CreateReferral(c.Request().Context(), clinicID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":  "Referral sent",
		"referral": r,
	})
}

func (h *Handler) Respond(c echo.Context) error {
	unitID, err := auth.SubjectUUID(c)
	if err != nil {
		return err
	}
	var req RespondRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}
	referralID, err := uuid.Parse(req.ReferralID)
	if err != nil {
		return apperr.Validation("referral_id must be a valid id")
	}
	r, err := h.flow.RespondToReferral(c.Request().Context(), unitID, referralID, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":  "Referral " + string(r.Status),
		"referral": r,
	})
}

func (h *Handler) GetForClinic(c echo.Context) error {
	clinicID, err := auth.SubjectUUID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id", "referral")
	if err != nil {
		return err
	}
	r, err := h.svc.GetForClinic(c.Request().Context(), clinicID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListForClinic(c echo.Context) error {
	clinicID, err := auth.SubjectUUID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForClinic(c.Request().Context(), clinicID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListForUnit(c echo.Context) error {
	unitID, err := auth.SubjectUUID(c)
	if err != nil {
		return err
	}
	return h.listForUnit(c, unitID)
}

func (h *Handler) ListForUnitAdmin(c echo.Context) error {
	unitID, err := parseID(c, "unitId", "unit")
	if err != nil {
		return err
	}
	return h.listForUnit(c, unitID)
}

func (h *Handler) listForUnit(c echo.Context, unitID uuid.UUID) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForUnit(c.Request().Context(), unitID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListForHospital(c echo.Context) error {
	hospitalID, err := parseID(c, "hospitalId", "hospital")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForHospital(c.Request().Context(), hospitalID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListAll(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAll(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
