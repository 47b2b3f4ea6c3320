package facility

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterAdminRoutes mounts directory management under the admin group.
func (h *Handler) RegisterAdminRoutes(admin *echo.Group) {
	admin.POST("/hospital/register", h.CreateHospital)
	admin.GET("/hospitals", h.ListHospitals)
	admin.GET("/hospital/:hospitalId", h.GetHospital)
	admin.POST("/clinic/register", h.CreateClinic)
	admin.GET("/clinics", h.ListClinics)
}

// RegisterClinicRoutes mounts the hospital browsing clinics use to pick a
// referral target.
func (h *Handler) RegisterClinicRoutes(clinic *echo.Group) {
	clinic.GET("/hospitals", h.ListHospitals)
}

func (h *Handler) CreateHospital(c echo.Context) error {
	var req CreateHospitalRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}
	hosp, err := h.svc.CreateHospital(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, hosp)
}

func (h *Handler) GetHospital(c echo.Context) error {
	id, err := uuid.Parse(c.Param("hospitalId"))
	if err != nil {
		return apperr.Validation("invalid hospital id")
	}
	hosp, err := h.svc.GetHospital(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) ListHospitals(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListHospitals(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) CreateClinic(c echo.Context) error {
	var req CreateClinicRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}
	clinic, err := h.svc.CreateClinic(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, clinic)
}

func (h *Handler) ListClinics(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListClinics(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
