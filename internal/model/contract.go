package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract statuses as stored in contracts.status.
const (
	ContractStatusDraft     = "draft"
	ContractStatusSigned    = "signed"
	ContractStatusActive    = "active"
	ContractStatusCancelled = "cancelled"
)

// Contract represents an advertiser's paid agreement.  The monthly price is
// ex VAT; invoicing applies the proration rule for contracts that start or
// end mid-period.
//
// Fields:
//  ID                – primary key identifier.
//  AdvertiserID      – advertiser who owns the contract.
//  MonthlyPriceExVat – agreed monthly price excluding VAT.
//  Status            – draft, signed, active or cancelled.
//  SignedAt          – when the contract was signed (nil for drafts).
//  StartDate         – first day the contract is effective.
//  EndDate           – last effective day; nil for open-ended contracts.
type Contract struct {
	ID                uint64          // contracts.id
	AdvertiserID      uint64          // contracts.advertiser_id
	MonthlyPriceExVat decimal.Decimal // contracts.monthly_price_ex_vat
	Status            string          // contracts.status
	SignedAt          *time.Time      // contracts.signed_at (nullable)
	StartDate         time.Time       // contracts.start_date
	EndDate           *time.Time      // contracts.end_date (nullable)
	CreatedAt         time.Time       // contracts.created_at
	UpdatedAt         time.Time       // contracts.updated_at
}

// Billable reports whether the contract backs live placements and invoices.
func (c Contract) Billable() bool {
	return c.Status == ContractStatusSigned || c.Status == ContractStatusActive
}

// Placement assigns a contract to a specific screen for a date range.  A
// placement is LIVE when it is active, today falls inside its window and the
// backing contract is signed or active; only LIVE placements consume
// capacity.
type Placement struct {
	ID         uint64     // placements.id
	ContractID uint64     // placements.contract_id
	ScreenID   uint64     // placements.screen_id
	StartDate  time.Time  // placements.start_date
	EndDate    *time.Time // placements.end_date (nullable = open ended)
	IsActive   bool       // placements.is_active
	CreatedAt  time.Time  // placements.created_at
}

// LiveOn reports whether the placement occupies a slot on the given day,
// assuming the backing contract is billable.  The contract check lives in
// SQL for ledger queries; this helper mirrors it for frozen snapshot data.
func (p Placement) LiveOn(day time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.StartDate.After(day) {
		return false
	}
	if p.EndDate != nil && p.EndDate.Before(day) {
		return false
	}
	return true
}
