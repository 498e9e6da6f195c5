package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/jdkroon/adslot-backend/internal/model"
)

// SettlementRepo provides data access to invoices, revenue allocations,
// location payouts and the carry-over ledger.  All writes happen inside
// the settlement transactions; uniqueness constraints on (snapshot_id,
// advertiser_id) and (snapshot_id, location_id) make retries safe.
type SettlementRepo struct {
	db *sql.DB
}

// NewSettlementRepo returns a new SettlementRepo bound to the provided database.
func NewSettlementRepo(db *sql.DB) *SettlementRepo { return &SettlementRepo{db: db} }

// CountInvoicesTx returns how many invoices already exist for a snapshot.
// A non-zero count turns regeneration into a warned no-op.
func (r *SettlementRepo) CountInvoicesTx(ctx context.Context, tx *sql.Tx, snapshotID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices WHERE snapshot_id = ?`, snapshotID).Scan(&n)
	return n, err
}

// InsertInvoicesTx inserts all invoices for a snapshot in one statement.
func (r *SettlementRepo) InsertInvoicesTx(ctx context.Context, tx *sql.Tx, invoices []model.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	query := `INSERT INTO invoices (snapshot_id, advertiser_id, period_start, period_end, amount_ex_vat, status) VALUES `
	args := make([]interface{}, 0, len(invoices)*6)
	for i, inv := range invoices {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, inv.SnapshotID, inv.AdvertiserID, inv.PeriodStart.UTC(), inv.PeriodEnd.UTC(),
			inv.AmountExVat, inv.Status)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ListInvoices returns a snapshot's invoices ordered by advertiser.
func (r *SettlementRepo) ListInvoices(ctx context.Context, snapshotID uint64) ([]model.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, snapshot_id, advertiser_id, period_start, period_end, amount_ex_vat, status, created_at
		 FROM invoices WHERE snapshot_id = ? ORDER BY advertiser_id`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Invoice
	for rows.Next() {
		var inv model.Invoice
		if err := rows.Scan(&inv.ID, &inv.SnapshotID, &inv.AdvertiserID, &inv.PeriodStart, &inv.PeriodEnd,
			&inv.AmountExVat, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CountPayoutsTx returns how many payouts already exist for a snapshot.
func (r *SettlementRepo) CountPayoutsTx(ctx context.Context, tx *sql.Tx, snapshotID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM location_payouts WHERE snapshot_id = ?`, snapshotID).Scan(&n)
	return n, err
}

// InsertAllocationsTx inserts the per-screen revenue allocation rows.
func (r *SettlementRepo) InsertAllocationsTx(ctx context.Context, tx *sql.Tx, allocs []model.RevenueAllocation) error {
	if len(allocs) == 0 {
		return nil
	}
	query := `INSERT INTO revenue_allocations (snapshot_id, screen_id, location_id, allocation_score, allocated_revenue) VALUES `
	args := make([]interface{}, 0, len(allocs)*5)
	for i, a := range allocs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, a.SnapshotID, a.ScreenID, a.LocationID, a.AllocationScore, a.AllocatedRevenue)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ListAllocations returns a snapshot's allocation rows for drill-down
// reporting.
func (r *SettlementRepo) ListAllocations(ctx context.Context, snapshotID uint64) ([]model.RevenueAllocation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, snapshot_id, screen_id, location_id, allocation_score, allocated_revenue, created_at
		 FROM revenue_allocations WHERE snapshot_id = ? ORDER BY location_id, screen_id`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RevenueAllocation
	for rows.Next() {
		var a model.RevenueAllocation
		if err := rows.Scan(&a.ID, &a.SnapshotID, &a.ScreenID, &a.LocationID,
			&a.AllocationScore, &a.AllocatedRevenue, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertPayoutsTx inserts the per-location payout rows.
func (r *SettlementRepo) InsertPayoutsTx(ctx context.Context, tx *sql.Tx, payouts []model.LocationPayout) error {
	if len(payouts) == 0 {
		return nil
	}
	query := `INSERT INTO location_payouts (snapshot_id, location_id, payout_amount, status, carried_over) VALUES `
	args := make([]interface{}, 0, len(payouts)*5)
	for i, p := range payouts {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, p.SnapshotID, p.LocationID, p.PayoutAmount, p.Status, p.CarriedOver)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ListPayouts returns a snapshot's payout rows.
func (r *SettlementRepo) ListPayouts(ctx context.Context, snapshotID uint64) ([]model.LocationPayout, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, snapshot_id, location_id, payout_amount, status, carried_over, created_at
		 FROM location_payouts WHERE snapshot_id = ? ORDER BY location_id`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LocationPayout
	for rows.Next() {
		var p model.LocationPayout
		if err := rows.Scan(&p.ID, &p.SnapshotID, &p.LocationID, &p.PayoutAmount,
			&p.Status, &p.CarriedOver, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OpenCarryOversTx returns the open (unconsumed) carried amounts summed per
// location.  These amounts join the current period's base so no money is
// silently lost.
func (r *SettlementRepo) OpenCarryOversTx(ctx context.Context, tx *sql.Tx) (map[uint64]decimal.Decimal, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT location_id, amount FROM payout_carry_overs WHERE consumed_by_snapshot_id IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64]decimal.Decimal)
	for rows.Next() {
		var locationID uint64
		var amount decimal.Decimal
		if err := rows.Scan(&locationID, &amount); err != nil {
			return nil, err
		}
		out[locationID] = out[locationID].Add(amount)
	}
	return out, rows.Err()
}

// ConsumeCarryOversTx marks a location's open carry entries as consumed by
// the given snapshot.  Consumption happens whether the combined amount is
// disbursed or rolled forward again; a re-roll writes a fresh entry.
func (r *SettlementRepo) ConsumeCarryOversTx(ctx context.Context, tx *sql.Tx, locationID, snapshotID uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payout_carry_overs SET consumed_by_snapshot_id = ? WHERE location_id = ? AND consumed_by_snapshot_id IS NULL`,
		snapshotID, locationID)
	return err
}

// InsertCarryOverTx writes one new carry ledger entry.
func (r *SettlementRepo) InsertCarryOverTx(ctx context.Context, tx *sql.Tx, entry model.PayoutCarryOver) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payout_carry_overs (location_id, snapshot_id, amount) VALUES (?, ?, ?)`,
		entry.LocationID, entry.SnapshotID, entry.Amount)
	return err
}

// ListCarryOvers returns the full carry ledger for audit, newest first.
func (r *SettlementRepo) ListCarryOvers(ctx context.Context) ([]model.PayoutCarryOver, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, location_id, snapshot_id, amount, consumed_by_snapshot_id, created_at
		 FROM payout_carry_overs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PayoutCarryOver
	for rows.Next() {
		var e model.PayoutCarryOver
		if err := rows.Scan(&e.ID, &e.LocationID, &e.SnapshotID, &e.Amount,
			&e.ConsumedBySnapshotID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
