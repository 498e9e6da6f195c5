package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jdkroon/adslot-backend/internal/middleware"
	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/service"
)

// WaitlistHandler covers admission requests from the public signup flow
// and the admin operations on individual waitlist entries.
type WaitlistHandler struct {
	Waitlist *service.WaitlistService
}

// NewWaitlistHandler constructs a WaitlistHandler.
func NewWaitlistHandler(waitlist *service.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{Waitlist: waitlist}
}

// Create handles POST /v1/waitlist.  It runs the admission check: when
// capacity suffices the advertiser is admitted immediately (no entry is
// created and the response says so); otherwise a WAITING entry is stored
// and the advertiser will be invited once capacity frees up.
func (h *WaitlistHandler) Create(c echo.Context) error {
	var body struct {
		PackageType       string   `json:"packageType"`
		TargetRegionCodes []string `json:"targetRegionCodes"`
		CompanyName       string   `json:"companyName"`
		ContactEmail      string   `json:"contactEmail"`
		FormData          string   `json:"formData"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ContactEmail == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "contactEmail is required"})
	}
	check, entry, err := h.Waitlist.RequestAdmission(c.Request().Context(), service.AdmissionInput{
		PackageType:       body.PackageType,
		TargetRegionCodes: normalizeRegions(body.TargetRegionCodes),
		CompanyName:       body.CompanyName,
		ContactEmail:      body.ContactEmail,
		FormData:          body.FormData,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidPackage) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid package type"})
		}
		log.Printf("waitlist: cid=%s admission failed: %v", middleware.CorrelationID(c), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "something went wrong, please retry"})
	}
	if entry == nil {
		return c.JSON(http.StatusOK, echo.Map{
			"admitted":         true,
			"availableScreens": check.AvailableScreens,
			"requiredScreens":  check.RequiredScreens,
		})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"admitted":         false,
		"waitlistId":       entry.ID,
		"status":           entry.Status,
		"availableScreens": check.AvailableScreens,
		"requiredScreens":  check.RequiredScreens,
		"topReasons":       reasonsOrEmpty(check.TopReasons),
	})
}

// Cancel handles POST /v1/admin/waitlist/:id/cancel.
func (h *WaitlistHandler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid waitlist id"})
	}
	if err := h.Waitlist.Cancel(c.Request().Context(), id); err != nil {
		return waitlistTransitionError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "CANCELLED"})
}

// Reset handles POST /v1/admin/waitlist/:id/reset, the explicit admin edge
// from EXPIRED or CANCELLED back to WAITING.
func (h *WaitlistHandler) Reset(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid waitlist id"})
	}
	if err := h.Waitlist.Reset(c.Request().Context(), id); err != nil {
		return waitlistTransitionError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "WAITING"})
}

// TriggerCheck handles POST /v1/admin/waitlist/trigger-check.  It runs one
// sweep immediately instead of waiting for the periodic interval; the
// single-flight lock still applies, so a sweep already in progress makes
// this a no-op.
func (h *WaitlistHandler) TriggerCheck(c echo.Context) error {
	if err := h.Waitlist.Sweep(c.Request().Context()); err != nil {
		log.Printf("waitlist: cid=%s manual sweep failed: %v", middleware.CorrelationID(c), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep failed, please retry"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "sweep completed"})
}

// waitlistTransitionError maps the shared transition errors to responses.
func waitlistTransitionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "waitlist entry not found"})
	case errors.Is(err, repository.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "entry is not in a state that allows this action"})
	default:
		log.Printf("waitlist: cid=%s transition failed: %v", middleware.CorrelationID(c), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "something went wrong, please retry"})
	}
}

// parseID extracts the :id path parameter.
func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
