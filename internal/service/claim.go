package service

import (
	"context"
	"errors"
	"time"

	"github.com/jdkroon/adslot-backend/internal/model"
	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/utils"
)

// ClaimService validates claim tokens and atomically consumes a claim.
// Confirmation is the one place where the check-then-act race against
// concurrent claims matters: the capacity re-check runs inside a
// transaction holding row locks on the contended location rows, and a
// winning claim converts its reservation into a claimed hold that the next
// re-check counts against capacity.  With N concurrent confirmations
// against one remaining slot exactly one commits as CLAIMED and the rest
// revert to WAITING.
type ClaimService struct {
	Waitlist    *repository.WaitlistRepo
	Capacity    *CapacityService
	JWTSecret   string
	GrantTTLMin int
}

// NewClaimService constructs a ClaimService.
func NewClaimService(wl *repository.WaitlistRepo, capacity *CapacityService, jwtSecret string, grantTTLMin int) *ClaimService {
	if grantTTLMin <= 0 {
		grantTTLMin = 15
	}
	return &ClaimService{Waitlist: wl, Capacity: capacity, JWTSecret: jwtSecret, GrantTTLMin: grantTTLMin}
}

// ValidateToken resolves a claim link.  An expired invite is moved to its
// terminal EXPIRED state (idempotent; the sweep may have done it already)
// and reported as ErrTokenExpired so the user sees why the link is dead.
func (s *ClaimService) ValidateToken(ctx context.Context, token string) (*model.WaitlistRequest, error) {
	req, err := s.Waitlist.GetByClaimToken(ctx, token)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case model.WaitlistStatusClaimed:
		return nil, repository.ErrTokenAlreadyClaimed
	case model.WaitlistStatusExpired:
		return nil, repository.ErrTokenExpired
	case model.WaitlistStatusInvited:
		if req.InviteExpired(time.Now().UTC()) {
			// Lazily expire; ignore a lost race with the sweep.
			if err := s.Waitlist.MarkExpired(ctx, req.ID); err != nil && !errors.Is(err, repository.ErrInvalidTransition) {
				return nil, err
			}
			_ = s.Waitlist.DeleteReservationByRequest(ctx, req.ID)
			return nil, repository.ErrTokenExpired
		}
		return req, nil
	default:
		// WAITING or CANCELLED: the token exists but no invite is open.
		return nil, repository.ErrTokenInvalid
	}
}

// onboardingHold is how long a claimed hold keeps consuming capacity while
// the winner completes onboarding.  Once the placement exists it carries
// the slot itself; an abandoned onboarding frees the slot after this window.
const onboardingHold = 72 * time.Hour

// ConfirmResult carries the outcome of a successful claim: the server
// issued onboarding grant referencing the stored form data.  The client
// never holds the form data itself across the trust boundary.
type ConfirmResult struct {
	Request *model.WaitlistRequest
	Grant   utils.AccessToken
}

// Confirm atomically consumes a claim.  It locks the waitlist row and the
// contended location rows, re-runs the capacity check, and either commits
// the CLAIMED transition plus a short-lived onboarding grant, or commits a
// revert to WAITING when the capacity lost the race.  Both outcomes are
// full commits; losing the race is expected contention, not an error that
// rolls back.
func (s *ClaimService) Confirm(ctx context.Context, token string) (*ConfirmResult, error) {
	tx, err := s.Waitlist.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	req, err := s.Waitlist.GetByClaimTokenTx(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	switch req.Status {
	case model.WaitlistStatusClaimed:
		return nil, repository.ErrTokenAlreadyClaimed
	case model.WaitlistStatusExpired:
		return nil, repository.ErrTokenExpired
	case model.WaitlistStatusInvited:
		if req.InviteExpired(now) {
			return nil, repository.ErrTokenExpired
		}
	default:
		return nil, repository.ErrTokenInvalid
	}

	ok, err := s.Capacity.CheckTx(ctx, tx, req.TargetRegionCodes, req.RequiredCount, req.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Release the reservation and put the request back in line.
		if err := s.Waitlist.DeleteReservationByRequestTx(ctx, tx, req.ID); err != nil {
			return nil, err
		}
		if err := s.Waitlist.RevertToWaitingTx(ctx, tx, req.ID); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return nil, repository.ErrCapacityLost
	}

	// The winner's reservation becomes a claimed hold; until the onboarding
	// flow creates the placement this hold is what makes the consumed slot
	// visible to the next confirmation.
	hold := &model.SlotReservation{
		WaitlistRequestID: req.ID,
		RegionCodes:       req.TargetRegionCodes,
		ReservedCount:     req.RequiredCount,
	}
	if err := s.Waitlist.MarkReservationClaimedTx(ctx, tx, hold, now.Add(onboardingHold)); err != nil {
		return nil, err
	}
	if err := s.Waitlist.MarkClaimedTx(ctx, tx, req.ID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	grant, err := utils.NewOnboardingGrant(s.JWTSecret, req.ID, s.GrantTTLMin)
	if err != nil {
		return nil, err
	}
	req.Status = model.WaitlistStatusClaimed
	req.ClaimedAt = &now
	return &ConfirmResult{Request: req, Grant: grant}, nil
}
