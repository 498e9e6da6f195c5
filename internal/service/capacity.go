// Package service implements the business operations of the ad-slot core:
// capacity admission control, the waitlist state machine, claim
// confirmation and month-close settlement.  Handlers stay thin; every
// multi-step database operation lives here so it can run inside a single
// transaction.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/jdkroon/adslot-backend/internal/cache"
	"github.com/jdkroon/adslot-backend/internal/model"
	"github.com/jdkroon/adslot-backend/internal/repository"
)

// Admission reasons returned in the top_reasons field of a capacity check.
const (
	ReasonNoSellableInRegion    = "no_sellable_locations_in_region"
	ReasonInsufficientInRegion  = "insufficient_locations_in_region"
	ReasonInsufficientTotal     = "insufficient_total_capacity"
	ReasonReservedForInvites    = "capacity_reserved_for_pending_invites"
)

// CapacityCheckResult is the outcome of an admission check.
type CapacityCheckResult struct {
	IsAvailable      bool     `json:"is_available"`
	AvailableScreens int      `json:"available_screens"`
	RequiredScreens  int      `json:"required_screens"`
	TopReasons       []string `json:"top_reasons"`
}

// CapacityService exposes the derived capacity ledger and the city
// availability aggregate.  Reads go through the shared Redis cache with a
// short TTL; the ledger itself is recomputed from placements on every
// cache miss, so there is no counter that can drift.
type CapacityService struct {
	Capacity *repository.CapacityRepo
	Waitlist *repository.WaitlistRepo
	Cache    cache.AvailabilityStore
}

// NewCapacityService constructs a CapacityService.
func NewCapacityService(capRepo *repository.CapacityRepo, wlRepo *repository.WaitlistRepo, store cache.AvailabilityStore) *CapacityService {
	return &CapacityService{Capacity: capRepo, Waitlist: wlRepo, Cache: store}
}

// CityAvailability returns the per-city aggregate, served from cache when
// fresh.  The cache is the only intentionally stale data in the system;
// capacity-changing commits invalidate it synchronously.
func (s *CapacityService) CityAvailability(ctx context.Context) ([]model.CityAvailability, error) {
	if cities, ok := s.Cache.Get(ctx); ok {
		return cities, nil
	}
	cities, err := s.Capacity.CityAvailability(ctx)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, cities)
	return cities, nil
}

// Check runs the admission check for a package in the given regions.  An
// empty region list means anywhere.  When countReservations is true,
// capacity softly reserved for outstanding claim invites is subtracted so
// the waitlist sweep does not overcommit the same freed slots; the public
// pre-sale check passes false and only looks at hard capacity.
func (s *CapacityService) Check(ctx context.Context, packageType string, regionCodes []string, countReservations bool) (CapacityCheckResult, error) {
	required := model.RequiredScreens(packageType)
	caps, err := s.Capacity.CapacityByRegion(ctx, regionCodes)
	if err != nil {
		return CapacityCheckResult{}, err
	}
	withSpace := 0
	for _, c := range caps {
		if c.HasSpace() {
			withSpace++
		}
	}

	reserved := 0
	if countReservations {
		reservations, err := s.Waitlist.ActiveReservations(ctx)
		if err != nil {
			return CapacityCheckResult{}, err
		}
		for _, res := range reservations {
			if regionsOverlap(res.RegionCodes, regionCodes) {
				reserved += res.ReservedCount
			}
		}
	}

	available := withSpace - reserved
	if available < 0 {
		available = 0
	}

	result := CapacityCheckResult{
		IsAvailable:      available >= required,
		AvailableScreens: available,
		RequiredScreens:  required,
	}
	if !result.IsAvailable {
		switch {
		case len(regionCodes) > 0 && len(caps) == 0:
			result.TopReasons = append(result.TopReasons, ReasonNoSellableInRegion)
		case len(regionCodes) > 0:
			result.TopReasons = append(result.TopReasons, ReasonInsufficientInRegion)
		default:
			result.TopReasons = append(result.TopReasons, ReasonInsufficientTotal)
		}
		if reserved > 0 && withSpace >= required {
			result.TopReasons = append(result.TopReasons, ReasonReservedForInvites)
		}
	}
	return result, nil
}

// CheckTx re-runs the capacity check inside an existing transaction after
// the contended location rows have been locked.  This is the correctness
// backstop for claim confirmation: the row locks serialize concurrent
// confirms, and the claimed holds left behind by committed winners are
// subtracted from the placement-derived count, so with N confirms against
// one remaining slot exactly one sees enough capacity.  The caller's own
// reservation is excluded; a request never competes with itself.
func (s *CapacityService) CheckTx(ctx context.Context, tx *sql.Tx, regionCodes []string, required int, requestID uint64) (bool, error) {
	if err := s.Capacity.LockSellableLocationsTx(ctx, tx, regionCodes); err != nil {
		return false, err
	}
	caps, err := s.Capacity.CapacityByRegionTx(ctx, tx, regionCodes)
	if err != nil {
		return false, err
	}
	withSpace := 0
	for _, c := range caps {
		if c.HasSpace() {
			withSpace++
		}
	}
	holds, err := s.Waitlist.ClaimedReservationsTx(ctx, tx, requestID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	held := 0
	for _, res := range holds {
		if regionsOverlap(res.RegionCodes, regionCodes) {
			held += res.ReservedCount
		}
	}
	return withSpace-held >= required, nil
}

// regionsOverlap reports whether a reservation scoped to resRegions
// competes with a check scoped to checkRegions.  An empty list on either
// side means "anywhere" and always overlaps.
func regionsOverlap(resRegions, checkRegions []string) bool {
	if len(resRegions) == 0 || len(checkRegions) == 0 {
		return true
	}
	for _, a := range resRegions {
		for _, b := range checkRegions {
			if a == b {
				return true
			}
		}
	}
	return false
}
