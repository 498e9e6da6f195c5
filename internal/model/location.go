package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Location statuses as stored in the locations.status column.
const (
	LocationStatusActive   = "active"
	LocationStatusInactive = "inactive"
)

// LocationCapacityCeiling is the maximum number of live placements a single
// location may carry.  Capacity is pooled per location across all of its
// screens rather than tracked per individual screen; this keeps the
// partner-facing capacity story simple ("your shop has room for N
// advertisers") at the cost of a join-aggregate query when counting.
const LocationCapacityCeiling = 20

// Location represents a physical partner venue that hosts one or more
// advertising screens.  A location is *sellable* only when it is active and
// has been flagged ready for ads by operations.
//
// Fields:
//  ID                  – primary key identifier.
//  Name                – display name of the venue.
//  City                – city the venue is located in.
//  RegionCode          – lower-case region identifier used for targeting.
//  Status              – "active" or "inactive".
//  ReadyForAds         – whether the venue may carry paid placements.
//  RevenueSharePercent – percentage of allocated revenue paid out to the partner.
type Location struct {
	ID                  uint64          // locations.id
	Name                string          // locations.name
	City                string          // locations.city
	RegionCode          string          // locations.region_code
	Status              string          // locations.status
	ReadyForAds         bool            // locations.ready_for_ads
	RevenueSharePercent decimal.Decimal // locations.revenue_share_percent
	CreatedAt           time.Time       // locations.created_at
	UpdatedAt           time.Time       // locations.updated_at
}

// Sellable reports whether the location may be offered to advertisers.
func (l Location) Sellable() bool {
	return l.Status == LocationStatusActive && l.ReadyForAds
}

// Screen represents a single signage device installed at a location.  The
// loop and play figures describe how often an ad slot on this screen is
// shown and feed the per-screen allocation score during settlement.
type Screen struct {
	ID              uint64    // screens.id
	LocationID      uint64    // screens.location_id
	DeviceRef       string    // screens.device_ref (opaque provider device reference)
	Status          string    // screens.status
	LoopSlotSeconds uint32    // screens.loop_slot_seconds (seconds per slot in the content loop)
	PlaysPerHour    uint32    // screens.plays_per_hour
	CreatedAt       time.Time // screens.created_at
	UpdatedAt       time.Time // screens.updated_at
}

// LocationCapacity is the derived per-location view produced by the capacity
// ledger.  ActiveCount is never persisted; it is recomputed on demand from
// live placements so there is no counter to drift.
type LocationCapacity struct {
	LocationID  uint64 // location this row describes
	City        string // city of the location
	RegionCode  string // region code of the location
	ActiveCount int    // number of LIVE placements pooled across all screens
}

// HasSpace reports whether the location can accept one more live placement.
func (c LocationCapacity) HasSpace() bool {
	return c.ActiveCount < LocationCapacityCeiling
}

// CityAvailability aggregates capacity per city for the public availability
// endpoint.  A location counts as "with space" when its pooled live count is
// below the ceiling.
type CityAvailability struct {
	City             string `json:"city"`
	ScreensTotal     int    `json:"screens_total"`
	ScreensWithSpace int    `json:"screens_with_space"`
	ScreensFull      int    `json:"screens_full"`
}
