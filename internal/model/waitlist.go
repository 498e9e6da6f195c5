package model

import (
	"time"
)

// Waitlist request statuses.  Transitions are monotonic except for the
// explicit admin reset from a terminal state back to WAITING:
//
//  WAITING → INVITED → {CLAIMED, EXPIRED}
//  WAITING, INVITED → CANCELLED
//  EXPIRED, CANCELLED → WAITING  (admin reset only)
const (
	WaitlistStatusWaiting   = "WAITING"
	WaitlistStatusInvited   = "INVITED"
	WaitlistStatusClaimed   = "CLAIMED"
	WaitlistStatusExpired   = "EXPIRED"
	WaitlistStatusCancelled = "CANCELLED"
)

// Package types sold to advertisers.  Each maps to the number of screens
// the advertiser needs before they can be admitted.
const (
	PackageSingle = "SINGLE"
	PackageTriple = "TRIPLE"
	PackageTen    = "TEN"
	PackageCustom = "CUSTOM"
)

// RequiredScreens maps a package type to the number of sellable locations
// with space the advertiser needs.  Unknown package types return 0 so
// callers can reject them as invalid input.
func RequiredScreens(packageType string) int {
	switch packageType {
	case PackageSingle, PackageCustom:
		return 1
	case PackageTriple:
		return 3
	case PackageTen:
		return 10
	default:
		return 0
	}
}

// waitlistTransitions enumerates every legal edge of the request state
// machine.  Anything not listed here is rejected.
var waitlistTransitions = map[string][]string{
	WaitlistStatusWaiting:   {WaitlistStatusInvited, WaitlistStatusCancelled},
	WaitlistStatusInvited:   {WaitlistStatusClaimed, WaitlistStatusExpired, WaitlistStatusCancelled, WaitlistStatusWaiting},
	WaitlistStatusExpired:   {WaitlistStatusWaiting},
	WaitlistStatusCancelled: {WaitlistStatusWaiting},
}

// CanTransitionWaitlist reports whether moving a request from one status to
// another is a legal edge.  INVITED → WAITING covers a claim that lost the
// capacity race; EXPIRED/CANCELLED → WAITING is the admin reset.
func CanTransitionWaitlist(from, to string) bool {
	for _, allowed := range waitlistTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// WaitlistRequest is an advertiser waiting for capacity.  The claim token is
// generated at creation and becomes usable once the request is invited; the
// captured form data lives server-side so the onboarding hand-off never
// trusts client-held state.
//
// Fields:
//  ID                – primary key identifier.
//  PackageType       – SINGLE, TRIPLE, TEN or CUSTOM.
//  RequiredCount     – number of locations with space this package needs.
//  TargetRegionCodes – optional region filter; empty means anywhere.
//  CompanyName       – advertiser company name from the signup form.
//  ContactEmail      – address the claim invite is sent to.
//  FormData          – raw JSON blob of the captured signup form.
//  ClaimToken        – opaque random token for the claim link.
//  Status            – current state machine status.
//  InviteSentAt      – when the claim invite was dispatched.
//  InviteExpiresAt   – claim deadline (invite time + claim window).
//  ClaimedAt         – when the claim was confirmed.
type WaitlistRequest struct {
	ID                uint64     // waitlist_requests.id
	PackageType       string     // waitlist_requests.package_type
	RequiredCount     int        // waitlist_requests.required_count
	TargetRegionCodes []string   // waitlist_requests.target_region_codes (CSV in DB)
	CompanyName       string     // waitlist_requests.company_name
	ContactEmail      string     // waitlist_requests.contact_email
	FormData          string     // waitlist_requests.form_data (JSON blob)
	ClaimToken        string     // waitlist_requests.claim_token
	Status            string     // waitlist_requests.status
	InviteSentAt      *time.Time // waitlist_requests.invite_sent_at
	InviteExpiresAt   *time.Time // waitlist_requests.invite_expires_at
	ClaimedAt         *time.Time // waitlist_requests.claimed_at
	CreatedAt         time.Time  // waitlist_requests.created_at
	UpdatedAt         time.Time  // waitlist_requests.updated_at
}

// InviteExpired reports whether an outstanding invite has passed its claim
// deadline at the given instant.
func (w WaitlistRequest) InviteExpired(now time.Time) bool {
	return w.InviteExpiresAt != nil && !now.Before(*w.InviteExpiresAt)
}

// SlotReservation is a hold on capacity attached to a waitlisted request.
// At invite time it is a soft reservation counted during waitlist sweeps so
// competing invites do not overcommit the same freed slots.  When the claim
// is confirmed it becomes a claimed hold (slot_reservations.claimed = 1)
// that keeps consuming capacity until the onboarding flow creates the
// placement, so the next confirm inside the same window already sees the
// slot as taken.  A lost or expired claim releases the row.
type SlotReservation struct {
	ID                uint64    // slot_reservations.id
	WaitlistRequestID uint64    // slot_reservations.waitlist_request_id
	RegionCodes       []string  // slot_reservations.region_codes (CSV in DB)
	ReservedCount     int       // slot_reservations.reserved_count
	ExpiresAt         time.Time // slot_reservations.expires_at
	CreatedAt         time.Time // slot_reservations.created_at
}
