package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"github.com/jdkroon/adslot-backend/internal/model"
	"github.com/jdkroon/adslot-backend/internal/queue"
	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/utils"
)

// ErrInvalidPackage is returned when an admission request names an unknown
// package type.  Handlers translate this into an HTTP 400.
var ErrInvalidPackage = errors.New("invalid package type")

// InviteNotifier dispatches a claim invite to the advertiser.  The AMQP
// publisher implements it in production; tests swap in a recorder.
type InviteNotifier interface {
	PublishClaimInvite(ctx context.Context, event queue.ClaimInviteEvent) error
}

// sweepLockKey is the distributed lock guarding the waitlist sweep.  Two
// concurrent sweeps would double-invite against the same freed capacity.
const sweepLockKey = "lock:waitlist:sweep"

// WaitlistService is the admission state machine: it decides immediate
// admission versus queuing, re-evaluates queued requests during sweeps and
// issues time-boxed claim invitations with a soft capacity reservation.
type WaitlistService struct {
	Repo        *repository.WaitlistRepo
	Capacity    *CapacityService
	Notifier    InviteNotifier
	Locker      *redislock.Client // nil when Redis is unavailable
	ClaimWindow time.Duration

	mu sync.Mutex // in-process single-flight fallback when Locker is nil
}

// NewWaitlistService constructs a WaitlistService.  locker may be nil; the
// sweep then falls back to an in-process mutex, which is only safe for a
// single instance.
func NewWaitlistService(repo *repository.WaitlistRepo, capacity *CapacityService, notifier InviteNotifier, locker *redislock.Client, claimWindow time.Duration) *WaitlistService {
	if claimWindow <= 0 {
		claimWindow = 48 * time.Hour
	}
	return &WaitlistService{Repo: repo, Capacity: capacity, Notifier: notifier, Locker: locker, ClaimWindow: claimWindow}
}

// AdmissionInput is the captured signup form for an admission request.
type AdmissionInput struct {
	PackageType       string
	TargetRegionCodes []string
	CompanyName       string
	ContactEmail      string
	FormData          string // raw JSON of the full form, held server-side
}

// RequestAdmission runs the admission check for a new advertiser.  When
// capacity suffices the advertiser is admitted immediately and no waitlist
// entry is created; otherwise a WAITING entry with a pre-generated claim
// token is stored.  Running out of capacity is an expected outcome, not an
// error.
func (s *WaitlistService) RequestAdmission(ctx context.Context, in AdmissionInput) (CapacityCheckResult, *model.WaitlistRequest, error) {
	required := model.RequiredScreens(in.PackageType)
	if required == 0 {
		return CapacityCheckResult{}, nil, ErrInvalidPackage
	}
	check, err := s.Capacity.Check(ctx, in.PackageType, in.TargetRegionCodes, false)
	if err != nil {
		return CapacityCheckResult{}, nil, err
	}
	if check.IsAvailable {
		return check, nil, nil
	}
	token, err := utils.NewClaimToken()
	if err != nil {
		return CapacityCheckResult{}, nil, err
	}
	req := &model.WaitlistRequest{
		PackageType:       in.PackageType,
		RequiredCount:     required,
		TargetRegionCodes: in.TargetRegionCodes,
		CompanyName:       in.CompanyName,
		ContactEmail:      in.ContactEmail,
		FormData:          in.FormData,
		ClaimToken:        token,
		Status:            model.WaitlistStatusWaiting,
	}
	if err := s.Repo.Create(ctx, req); err != nil {
		return CapacityCheckResult{}, nil, err
	}
	return check, req, nil
}

// Cancel is the admin edge WAITING/INVITED → CANCELLED.  An outstanding
// soft reservation is released so the capacity frees up immediately.
func (s *WaitlistService) Cancel(ctx context.Context, id uint64) error {
	if err := s.Repo.Cancel(ctx, id); err != nil {
		return err
	}
	return s.Repo.DeleteReservationByRequest(ctx, id)
}

// Reset is the explicit admin edge EXPIRED/CANCELLED → WAITING.
func (s *WaitlistService) Reset(ctx context.Context, id uint64) error {
	return s.Repo.Reset(ctx, id)
}

// Sweep re-evaluates the waitlist once.  It is single-flight: a
// distributed lock (or the in-process fallback) guarantees that two sweeps
// never run concurrently, because each would see the same freed capacity
// and double-invite.  Within one sweep, every invite creates a soft
// reservation that the next candidate's check subtracts, so a single sweep
// cannot overcommit either.  The invite does not hard-reserve anything:
// claim confirmation re-verifies capacity under row locks.
func (s *WaitlistService) Sweep(ctx context.Context) error {
	release, ok := s.acquireSweepLock(ctx)
	if !ok {
		log.Printf("waitlist-sweep: another sweep in flight, skipping")
		return nil
	}
	defer release()

	if err := s.Repo.PurgeExpiredReservations(ctx); err != nil {
		return err
	}

	// Expire invites whose claim window has passed; their entries become
	// terminal until an admin reset.
	now := time.Now().UTC()
	overdue, err := s.Repo.ListInvitedExpired(ctx, now)
	if err != nil {
		return err
	}
	for _, req := range overdue {
		if err := s.Repo.MarkExpired(ctx, req.ID); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				continue // claimed or cancelled between the list and the update
			}
			return err
		}
		if err := s.Repo.DeleteReservationByRequest(ctx, req.ID); err != nil {
			return err
		}
		log.Printf("waitlist-sweep: request %d invite expired", req.ID)
	}

	waiting, err := s.Repo.ListWaiting(ctx)
	if err != nil {
		return err
	}
	for _, req := range waiting {
		check, err := s.Capacity.Check(ctx, req.PackageType, req.TargetRegionCodes, true)
		if err != nil {
			return err
		}
		if !check.IsAvailable {
			continue
		}
		if err := s.invite(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// invite transitions one WAITING request to INVITED, reserves its capacity
// softly and dispatches the claim link.
func (s *WaitlistService) invite(ctx context.Context, req model.WaitlistRequest) error {
	sentAt := time.Now().UTC()
	expiresAt := sentAt.Add(s.ClaimWindow)
	if err := s.Repo.MarkInvited(ctx, req.ID, sentAt, expiresAt); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil // cancelled under our feet; nothing to do
		}
		return err
	}
	if err := s.Repo.CreateReservation(ctx, &model.SlotReservation{
		WaitlistRequestID: req.ID,
		RegionCodes:       req.TargetRegionCodes,
		ReservedCount:     req.RequiredCount,
		ExpiresAt:         expiresAt,
	}); err != nil {
		return err
	}
	event := queue.ClaimInviteEvent{
		RequestID:       req.ID,
		CompanyName:     req.CompanyName,
		ContactEmail:    req.ContactEmail,
		PackageType:     req.PackageType,
		RegionCodes:     req.TargetRegionCodes,
		ClaimToken:      req.ClaimToken,
		InviteSentAt:    sentAt.Format(time.RFC3339),
		InviteExpiresAt: expiresAt.Format(time.RFC3339),
	}
	// A failed publish does not roll back the invite: the entry is INVITED
	// and the next sweep run will not re-invite it, but the claim link can
	// be resent by support from the stored token.
	if err := s.Notifier.PublishClaimInvite(ctx, event); err != nil {
		log.Printf("waitlist-sweep: invite %d dispatched with publish error: %v", req.ID, err)
	} else {
		log.Printf("waitlist-sweep: request %d invited until %s", req.ID, expiresAt.Format(time.RFC3339))
	}
	return nil
}

// acquireSweepLock obtains the single-flight guard.  With Redis available
// it is a distributed lock shared by all instances; without it, an
// in-process TryLock.
func (s *WaitlistService) acquireSweepLock(ctx context.Context) (func(), bool) {
	if s.Locker == nil {
		if !s.mu.TryLock() {
			return nil, false
		}
		return s.mu.Unlock, true
	}
	lock, err := s.Locker.Obtain(ctx, sweepLockKey, 2*time.Minute, nil)
	if err == redislock.ErrNotObtained {
		return nil, false
	}
	if err != nil {
		// Redis hiccup: fall back to the in-process guard rather than
		// skipping the sweep entirely.
		if !s.mu.TryLock() {
			return nil, false
		}
		return s.mu.Unlock, true
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			log.Printf("waitlist-sweep: release lock: %v", err)
		}
	}, true
}

// RunSweepLoop runs Sweep on a fixed interval until the context is
// cancelled.  Intended to be started once from main.
func (s *WaitlistService) RunSweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Printf("waitlist-sweep: %v", err)
			}
		}
	}
}
