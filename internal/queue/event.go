// Package queue defines message payloads exchanged over the message broker.
package queue

// ClaimInviteEvent is published when a waitlisted request is invited to
// claim freed capacity.  It contains enough information for the email
// dispatcher to build the claim link and deadline without querying the
// primary database.
type ClaimInviteEvent struct {
	RequestID       uint64   `json:"request_id"`
	CompanyName     string   `json:"company_name"`
	ContactEmail    string   `json:"contact_email"`
	PackageType     string   `json:"package_type"`
	RegionCodes     []string `json:"region_codes,omitempty"`
	ClaimToken      string   `json:"claim_token"`
	InviteSentAt    string   `json:"invite_sent_at"`
	InviteExpiresAt string   `json:"invite_expires_at"`
}
