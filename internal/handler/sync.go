package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jdkroon/adslot-backend/internal/middleware"
	"github.com/jdkroon/adslot-backend/internal/model"
	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/service"
)

// SyncHandler receives the capacity-changing facts from the contract and
// location collaborators.
type SyncHandler struct {
	Sync *service.SyncService
}

// NewSyncHandler constructs a SyncHandler.
func NewSyncHandler(sync *service.SyncService) *SyncHandler {
	return &SyncHandler{Sync: sync}
}

// ContractSigned handles POST /v1/admin/contracts/:id/signed.  An optional
// signedAt (RFC 3339) backdates the fact; backdating into a locked period
// is refused.
func (h *SyncHandler) ContractSigned(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid contract id"})
	}
	var body struct {
		SignedAt string `json:"signedAt"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	signedAt := time.Now().UTC()
	if body.SignedAt != "" {
		signedAt, err = time.Parse(time.RFC3339, body.SignedAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "signedAt must be RFC 3339"})
		}
	}
	if err := h.Sync.ContractSigned(c.Request().Context(), id, signedAt); err != nil {
		return syncError(c, err, "contract")
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.ContractStatusSigned})
}

// ContractCancelled handles POST /v1/admin/contracts/:id/cancelled.
func (h *SyncHandler) ContractCancelled(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid contract id"})
	}
	if err := h.Sync.ContractCancelled(c.Request().Context(), id); err != nil {
		return syncError(c, err, "contract")
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.ContractStatusCancelled})
}

// SetLocationStatus handles POST /v1/admin/locations/:id/status.
func (h *SyncHandler) SetLocationStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid location id"})
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Status != model.LocationStatusActive && body.Status != model.LocationStatusInactive {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be active or inactive"})
	}
	if err := h.Sync.SetLocationStatus(c.Request().Context(), id, body.Status); err != nil {
		return syncError(c, err, "location")
	}
	return c.JSON(http.StatusOK, echo.Map{"status": body.Status})
}

// SetReadyForAds handles POST /v1/admin/locations/:id/ready-for-ads.
func (h *SyncHandler) SetReadyForAds(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid location id"})
	}
	var body struct {
		Ready *bool `json:"ready"`
	}
	if err := c.Bind(&body); err != nil || body.Ready == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ready is required"})
	}
	if err := h.Sync.SetReadyForAds(c.Request().Context(), id, *body.Ready); err != nil {
		return syncError(c, err, "location")
	}
	return c.JSON(http.StatusOK, echo.Map{"readyForAds": *body.Ready})
}

func syncError(c echo.Context, err error, entity string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": entity + " not found"})
	case errors.Is(err, repository.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": entity + " is not in a state that allows this change"})
	case errors.Is(err, repository.ErrSnapshotLocked):
		return c.JSON(http.StatusConflict, echo.Map{"error": "the affected billing period is locked"})
	default:
		log.Printf("sync: cid=%s update failed: %v", middleware.CorrelationID(c), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "something went wrong, please retry"})
	}
}
