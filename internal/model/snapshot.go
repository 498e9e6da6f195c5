package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot statuses.  The lifecycle is strictly forward:
// open → invoiced → payouts_generated → locked.
const (
	SnapshotStatusOpen             = "open"
	SnapshotStatusInvoiced         = "invoiced"
	SnapshotStatusPayoutsGenerated = "payouts_generated"
	SnapshotStatusLocked           = "locked"
)

// SnapshotSchemaVersion is the payload schema written by this build.  Loads
// reject unknown versions instead of guessing at field meanings.
const SnapshotSchemaVersion = 1

// MonthlySnapshot freezes a billing period's contract and placement state.
// Later settlement steps read only the frozen payload, so edits to live
// contract data after the freeze can never change a period's figures.
//
// Fields:
//  ID       – primary key identifier.
//  Year     – billing year.
//  Month    – billing month (1-12).
//  Status   – open, invoiced, payouts_generated or locked.
//  Payload  – versioned frozen state (JSON column in the DB).
//  LockedAt – when the period was locked (nil until then).
type MonthlySnapshot struct {
	ID        uint64     // monthly_snapshots.id
	Year      int        // monthly_snapshots.year
	Month     int        // monthly_snapshots.month
	Status    string     // monthly_snapshots.status
	Payload   []byte     // monthly_snapshots.payload (raw JSON)
	LockedAt  *time.Time // monthly_snapshots.locked_at
	CreatedAt time.Time  // monthly_snapshots.created_at
}

// Locked reports whether the snapshot has reached its terminal state.
func (s MonthlySnapshot) Locked() bool { return s.Status == SnapshotStatusLocked }

// PeriodBounds returns the first and last day of the snapshot's month in UTC.
func (s MonthlySnapshot) PeriodBounds() (time.Time, time.Time) {
	start := time.Date(s.Year, time.Month(s.Month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

// SnapshotPayload is the versioned value object frozen into a monthly
// snapshot.  Decimal amounts are serialized as strings so the payload
// round-trips without floating point loss.
type SnapshotPayload struct {
	SchemaVersion int              `json:"schema_version"`
	Year          int              `json:"year"`
	Month         int              `json:"month"`
	FrozenAt      time.Time        `json:"frozen_at"`
	Contracts     []FrozenContract `json:"contracts"`
	Locations     []FrozenLocation `json:"locations"`
}

// FrozenContract captures the billing-relevant contract state at freeze
// time, including the placements that were attached to it.
type FrozenContract struct {
	ContractID        uint64            `json:"contract_id"`
	AdvertiserID      uint64            `json:"advertiser_id"`
	Status            string            `json:"status"`
	MonthlyPriceExVat decimal.Decimal   `json:"monthly_price_ex_vat"`
	StartDate         time.Time         `json:"start_date"`
	EndDate           *time.Time        `json:"end_date,omitempty"`
	Placements        []FrozenPlacement `json:"placements"`
}

// FrozenPlacement records which screen a contract occupied and for which
// date window.
type FrozenPlacement struct {
	PlacementID uint64     `json:"placement_id"`
	ScreenID    uint64     `json:"screen_id"`
	LocationID  uint64     `json:"location_id"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// FrozenLocation captures the partner terms and screen activity figures
// needed to allocate revenue for the period.
type FrozenLocation struct {
	LocationID          uint64          `json:"location_id"`
	City                string          `json:"city"`
	RegionCode          string          `json:"region_code"`
	RevenueSharePercent decimal.Decimal `json:"revenue_share_percent"`
	Screens             []FrozenScreen  `json:"screens"`
}

// FrozenScreen records the activity weight inputs for one screen.
type FrozenScreen struct {
	ScreenID        uint64 `json:"screen_id"`
	LoopSlotSeconds uint32 `json:"loop_slot_seconds"`
	PlaysPerHour    uint32 `json:"plays_per_hour"`
}

// EncodeSnapshotPayload serializes a payload, stamping the current schema
// version.
func EncodeSnapshotPayload(p SnapshotPayload) ([]byte, error) {
	p.SchemaVersion = SnapshotSchemaVersion
	return json.Marshal(p)
}

// DecodeSnapshotPayload parses and validates a frozen payload.  It fails on
// unknown schema versions and on structurally impossible data so tampered
// or truncated blobs surface loudly instead of producing wrong invoices.
func DecodeSnapshotPayload(raw []byte) (SnapshotPayload, error) {
	var p SnapshotPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return SnapshotPayload{}, fmt.Errorf("snapshot payload: %w", err)
	}
	if p.SchemaVersion != SnapshotSchemaVersion {
		return SnapshotPayload{}, fmt.Errorf("snapshot payload: unsupported schema version %d", p.SchemaVersion)
	}
	if p.Month < 1 || p.Month > 12 {
		return SnapshotPayload{}, fmt.Errorf("snapshot payload: invalid month %d", p.Month)
	}
	if p.Year < 2000 {
		return SnapshotPayload{}, fmt.Errorf("snapshot payload: invalid year %d", p.Year)
	}
	for _, c := range p.Contracts {
		if c.ContractID == 0 || c.AdvertiserID == 0 {
			return SnapshotPayload{}, fmt.Errorf("snapshot payload: contract with missing identifiers")
		}
		if c.MonthlyPriceExVat.IsNegative() {
			return SnapshotPayload{}, fmt.Errorf("snapshot payload: contract %d has negative price", c.ContractID)
		}
	}
	for _, l := range p.Locations {
		if l.LocationID == 0 {
			return SnapshotPayload{}, fmt.Errorf("snapshot payload: location with missing identifier")
		}
	}
	return p, nil
}
