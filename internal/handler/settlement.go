package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jdkroon/adslot-backend/internal/middleware"
	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/service"
)

// SettlementHandler exposes the month-close steps to the back office:
// snapshot creation, invoice and payout generation, locking, and the
// carry-over ledger.
type SettlementHandler struct {
	Settlement *service.SettlementService
	Settle     *repository.SettlementRepo
}

// NewSettlementHandler constructs a SettlementHandler.
func NewSettlementHandler(settlement *service.SettlementService, settle *repository.SettlementRepo) *SettlementHandler {
	return &SettlementHandler{Settlement: settlement, Settle: settle}
}

// CreateSnapshot handles POST /v1/admin/snapshots.  Creating a snapshot
// for a period that already has one returns the existing snapshot with a
// 200 instead of a 201.
func (h *SettlementHandler) CreateSnapshot(c echo.Context) error {
	var body struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Year < 2000 || body.Month < 1 || body.Month > 12 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "year and month are required"})
	}
	snap, created, err := h.Settlement.CreateSnapshot(c.Request().Context(), body.Year, body.Month)
	if err != nil {
		return settlementError(c, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{
		"snapshotId": snap.ID,
		"year":       snap.Year,
		"month":      snap.Month,
		"status":     snap.Status,
		"created":    created,
	})
}

// GenerateInvoices handles POST /v1/admin/snapshots/:id/generate-invoices.
func (h *SettlementHandler) GenerateInvoices(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid snapshot id"})
	}
	count, generated, err := h.Settlement.GenerateInvoices(c.Request().Context(), id)
	if err != nil {
		return settlementError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"snapshotId": id,
		"invoices":   count,
		"generated":  generated,
	})
}

// GeneratePayouts handles POST /v1/admin/snapshots/:id/generate-payouts.
func (h *SettlementHandler) GeneratePayouts(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid snapshot id"})
	}
	count, generated, err := h.Settlement.GeneratePayouts(c.Request().Context(), id)
	if err != nil {
		return settlementError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"snapshotId": id,
		"payouts":    count,
		"generated":  generated,
	})
}

// Lock handles POST /v1/admin/snapshots/:id/lock.
func (h *SettlementHandler) Lock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid snapshot id"})
	}
	snap, err := h.Settlement.Lock(c.Request().Context(), id)
	if err != nil {
		return settlementError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"snapshotId": snap.ID,
		"status":     snap.Status,
		"lockedAt":   snap.LockedAt,
	})
}

// Invoices handles GET /v1/admin/snapshots/:id/invoices.
func (h *SettlementHandler) Invoices(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid snapshot id"})
	}
	invoices, err := h.Settle.ListInvoices(c.Request().Context(), id)
	if err != nil {
		return settlementError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"snapshotId": id, "invoices": invoices})
}

// Payouts handles GET /v1/admin/snapshots/:id/payouts.
func (h *SettlementHandler) Payouts(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid snapshot id"})
	}
	payouts, err := h.Settle.ListPayouts(c.Request().Context(), id)
	if err != nil {
		return settlementError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"snapshotId": id, "payouts": payouts})
}

// Allocations handles GET /v1/admin/snapshots/:id/allocations: the
// per-screen drill-down behind a snapshot's payout totals.
func (h *SettlementHandler) Allocations(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid snapshot id"})
	}
	allocations, err := h.Settle.ListAllocations(c.Request().Context(), id)
	if err != nil {
		return settlementError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"snapshotId": id, "allocations": allocations})
}

// CarryOvers handles GET /v1/admin/payouts/carry-over: the full audit
// ledger of sub-threshold amounts, open and consumed.
func (h *SettlementHandler) CarryOvers(c echo.Context) error {
	entries, err := h.Settle.ListCarryOvers(c.Request().Context())
	if err != nil {
		return settlementError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"carryOvers": entries})
}

// settlementError maps settlement errors onto HTTP statuses.  A locked
// snapshot is always a 409.
func settlementError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "snapshot not found"})
	case errors.Is(err, repository.ErrSnapshotLocked):
		return c.JSON(http.StatusConflict, echo.Map{"error": "snapshot is locked; no further changes are allowed"})
	case errors.Is(err, repository.ErrSnapshotState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "snapshot is not in the required state for this step"})
	default:
		log.Printf("settlement: cid=%s operation failed: %v", middleware.CorrelationID(c), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "something went wrong, please retry"})
	}
}
