package service

import (
	"context"
	"time"

	"github.com/jdkroon/adslot-backend/internal/cache"
	"github.com/jdkroon/adslot-backend/internal/repository"
)

// SyncService applies the facts delivered by the provider-sync
// collaborators: contracts getting signed or cancelled and locations
// changing sellability.  Every one of these is a capacity-changing commit,
// so the availability cache is invalidated synchronously before success is
// reported — a caller must never see a stale "available" right after a
// sale.  Facts that would take effect inside an already locked billing
// period are refused: locking is a hard boundary.
type SyncService struct {
	Contracts *repository.ContractRepo
	Locations *repository.LocationRepo
	Snapshots *repository.SnapshotRepo
	Cache     cache.AvailabilityStore
}

// NewSyncService constructs a SyncService.
func NewSyncService(contracts *repository.ContractRepo, locations *repository.LocationRepo, snapshots *repository.SnapshotRepo, store cache.AvailabilityStore) *SyncService {
	return &SyncService{Contracts: contracts, Locations: locations, Snapshots: snapshots, Cache: store}
}

// ContractSigned records a signature fact, effective now.
func (s *SyncService) ContractSigned(ctx context.Context, contractID uint64, signedAt time.Time) error {
	if err := s.guardLockedPeriod(ctx, signedAt); err != nil {
		return err
	}
	if err := s.Contracts.MarkSigned(ctx, contractID, signedAt); err != nil {
		return err
	}
	return s.Cache.Invalidate(ctx)
}

// ContractCancelled records a cancellation fact, effective now.
func (s *SyncService) ContractCancelled(ctx context.Context, contractID uint64) error {
	if err := s.guardLockedPeriod(ctx, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.Contracts.MarkCancelled(ctx, contractID); err != nil {
		return err
	}
	return s.Cache.Invalidate(ctx)
}

// SetLocationStatus activates or deactivates a location.
func (s *SyncService) SetLocationStatus(ctx context.Context, locationID uint64, status string) error {
	if err := s.Locations.SetStatus(ctx, locationID, status); err != nil {
		return err
	}
	return s.Cache.Invalidate(ctx)
}

// SetReadyForAds toggles a location's sellability flag.
func (s *SyncService) SetReadyForAds(ctx context.Context, locationID uint64, ready bool) error {
	if err := s.Locations.SetReadyForAds(ctx, locationID, ready); err != nil {
		return err
	}
	return s.Cache.Invalidate(ctx)
}

// guardLockedPeriod refuses contract facts dated inside a period that has
// already been locked.  The frozen figures of a locked month must never be
// contradicted by a backdated state change.
func (s *SyncService) guardLockedPeriod(ctx context.Context, effective time.Time) error {
	locked, err := s.Snapshots.ListLocked(ctx)
	if err != nil {
		return err
	}
	for _, snap := range locked {
		start, end := snap.PeriodBounds()
		// end is the first moment of the period's last day; the period
		// covers that entire day.
		if !effective.Before(start) && effective.Before(end.AddDate(0, 0, 1)) {
			return repository.ErrSnapshotLocked
		}
	}
	return nil
}
