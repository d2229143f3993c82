package patient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hms/internal/platform/validate"
)

const (
	welcomeMessage = "Welcome to the Hospital Management System!"
	aboutMessage   = "Patient records API with BMI computation and classification."
	createdMessage = "Patient record created successfully."

	detailNotFound     = "Patient doesn't exist"
	detailStoreMissing = "Patient store not found"
	detailExists       = "Patient record already exists"
	detailBadSortField = "Unknown value for sort by"
	detailBadSortOrder = "Unknown value for order"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/", h.Home)
	g.GET("/aboutus", h.AboutUs)
	g.GET("/view", h.View)
	g.GET("/patient/:id", h.ViewPatient)
	g.GET("/sort", h.SortPatients)
	g.POST("/create", h.CreatePatient)
}

func (h *Handler) Home(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": welcomeMessage})
}

func (h *Handler) AboutUs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": aboutMessage})
}

func (h *Handler) View(c echo.Context) error {
	records, err := h.svc.ViewAll(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) ViewPatient(c echo.Context) error {
	rec, err := h.svc.ViewOne(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) SortPatients(c echo.Context) error {
	by := c.QueryParam("sortby")
	if by == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": "validation failed: sortby: field required",
			"errors": []validate.FieldError{{Field: "sortby", Message: "field required"}},
		})
	}
	records, err := h.svc.Sort(c.Request().Context(), by, c.QueryParam("order"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return bindError(err)
	}
	if err := h.svc.Create(c.Request().Context(), &p); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, createdMessage)
}

// bindError reports an oversized body as 413 and any other bind failure as
// 422.
func bindError(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if httpErr, ok := e.(*echo.HTTPError); ok && httpErr.Code == http.StatusRequestEntityTooLarge {
			return httpErr
		}
	}
	msg, cause := err.Error(), err
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg, cause = fmt.Sprint(httpErr.Message), httpErr.Internal
	}
	out := echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body: "+msg)
	if cause != nil {
		out = out.SetInternal(cause)
	}
	return out
}

// errorResponse maps service errors onto status codes. Sort argument errors
// answer 403 to stay wire compatible with existing clients.
func errorResponse(c echo.Context, err error) error {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": verr.Error(),
			"errors": verr.Fields,
		})
	case errors.Is(err, ErrPatientNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"detail": detailNotFound})
	case errors.Is(err, ErrStoreNotFound):
		// err names the file path; it is logged, not sent.
		return echo.NewHTTPError(http.StatusNotFound, detailStoreMissing).SetInternal(err)
	case errors.Is(err, ErrInvalidSortField):
		return c.JSON(http.StatusForbidden, map[string]string{"detail": detailBadSortField})
	case errors.Is(err, ErrInvalidSortOrder):
		return c.JSON(http.StatusForbidden, map[string]string{"detail": detailBadSortOrder})
	case errors.Is(err, ErrPatientExists):
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": detailExists})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}
