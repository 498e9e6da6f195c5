package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jdkroon/adslot-backend/internal/middleware"
	"github.com/jdkroon/adslot-backend/internal/model"
	"github.com/jdkroon/adslot-backend/internal/service"
)

// AvailabilityHandler serves the read side of capacity: the city aggregate
// for the public map and the pre-sale capacity check for the signup flow.
type AvailabilityHandler struct {
	Capacity *service.CapacityService
}

// NewAvailabilityHandler constructs an AvailabilityHandler.
func NewAvailabilityHandler(capacity *service.CapacityService) *AvailabilityHandler {
	return &AvailabilityHandler{Capacity: capacity}
}

// Cities handles GET /v1/availability/cities.  The response comes from the
// shared cache when fresh; each city reports how many sellable locations
// it has and how many of those still have slot space.
func (h *AvailabilityHandler) Cities(c echo.Context) error {
	cities, err := h.Capacity.CityAvailability(c.Request().Context())
	if err != nil {
		log.Printf("availability: cid=%s city aggregate failed: %v", middleware.CorrelationID(c), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if cities == nil {
		cities = []model.CityAvailability{}
	}
	return c.JSON(http.StatusOK, echo.Map{"cities": cities})
}

// CheckCapacity handles POST /v1/capacity/check.  It answers whether the
// requested package fits right now; running out of capacity is an expected
// answer, not an error.  The same check backs the waitlist admission
// decision, so two calls without an intervening state change return the
// same result.
func (h *AvailabilityHandler) CheckCapacity(c echo.Context) error {
	var body struct {
		PackageType       string   `json:"packageType"`
		TargetRegionCodes []string `json:"targetRegionCodes"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if model.RequiredScreens(body.PackageType) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid package type"})
	}
	result, err := h.Capacity.Check(c.Request().Context(), body.PackageType, normalizeRegions(body.TargetRegionCodes), false)
	if err != nil {
		log.Printf("availability: cid=%s capacity check failed: %v", middleware.CorrelationID(c), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"isAvailable":      result.IsAvailable,
		"availableScreens": result.AvailableScreens,
		"requiredScreens":  result.RequiredScreens,
		"topReasons":       reasonsOrEmpty(result.TopReasons),
	})
}

// normalizeRegions lower-cases, trims and deduplicates region codes from
// client input.
func normalizeRegions(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, rc := range codes {
		rc = strings.ToLower(strings.TrimSpace(rc))
		if rc == "" {
			continue
		}
		if _, ok := seen[rc]; !ok {
			seen[rc] = struct{}{}
			out = append(out, rc)
		}
	}
	return out
}

func reasonsOrEmpty(reasons []string) []string {
	if reasons == nil {
		return []string{}
	}
	return reasons
}
