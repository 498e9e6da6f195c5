package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses.  This core only creates invoices; sending and payment
// tracking belong to the accounting collaborator.
const (
	InvoiceStatusOpen = "open"
)

// Payout statuses.  A payout below the disbursement threshold stays pending
// with CarriedOver set; its amount rolls into the next period's base.
const (
	PayoutStatusPending = "pending"
	PayoutStatusPayable = "payable"
)

// MinimumPayoutAmount is the disbursement threshold in euros.  Computed
// payouts below it are not paid out; the amount carries over instead.
var MinimumPayoutAmount = decimal.NewFromInt(25)

// Invoice bills one advertiser for one frozen period.  Amounts derive from
// the frozen contract prices through the calendar-day proration rule.
type Invoice struct {
	ID           uint64          // invoices.id
	SnapshotID   uint64          // invoices.snapshot_id
	AdvertiserID uint64          // invoices.advertiser_id
	PeriodStart  time.Time       // invoices.period_start
	PeriodEnd    time.Time       // invoices.period_end
	AmountExVat  decimal.Decimal // invoices.amount_ex_vat
	Status       string          // invoices.status
	CreatedAt    time.Time       // invoices.created_at
}

// RevenueAllocation attributes a slice of a period's revenue to one screen.
// Rows for a location sum to that location's total allocated revenue, which
// supports drill-down reporting per screen.
type RevenueAllocation struct {
	ID               uint64          // revenue_allocations.id
	SnapshotID       uint64          // revenue_allocations.snapshot_id
	ScreenID         uint64          // revenue_allocations.screen_id
	LocationID       uint64          // revenue_allocations.location_id
	AllocationScore  decimal.Decimal // revenue_allocations.allocation_score
	AllocatedRevenue decimal.Decimal // revenue_allocations.allocated_revenue
	CreatedAt        time.Time       // revenue_allocations.created_at
}

// LocationPayout is what a partner location earns for a frozen period:
// allocated revenue times the location's share percent, plus any carried-in
// balance from earlier under-threshold periods.
type LocationPayout struct {
	ID           uint64          // location_payouts.id
	SnapshotID   uint64          // location_payouts.snapshot_id
	LocationID   uint64          // location_payouts.location_id
	PayoutAmount decimal.Decimal // location_payouts.payout_amount
	Status       string          // location_payouts.status
	CarriedOver  bool            // location_payouts.carried_over
	CreatedAt    time.Time       // location_payouts.created_at
}

// PayoutCarryOver is one ledger entry of an undisbursed amount rolled
// forward.  An entry stays open until a later period's payout consumes it;
// the full ledger remains queryable for audit.
type PayoutCarryOver struct {
	ID                   uint64          // payout_carry_overs.id
	LocationID           uint64          // payout_carry_overs.location_id
	SnapshotID           uint64          // payout_carry_overs.snapshot_id (period that produced it)
	Amount               decimal.Decimal // payout_carry_overs.amount
	ConsumedBySnapshotID *uint64         // payout_carry_overs.consumed_by_snapshot_id (nil = still open)
	CreatedAt            time.Time       // payout_carry_overs.created_at
}
