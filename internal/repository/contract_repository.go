package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jdkroon/adslot-backend/internal/model"
)

// ContractRepo provides data access to contracts and placements.  The
// provider-sync collaborators deliver "contract signed" and "contract
// cancelled" facts; both are capacity-changing commits and the service
// layer invalidates the availability cache after they succeed.
type ContractRepo struct {
	db *sql.DB
}

// NewContractRepo returns a new ContractRepo bound to the provided database.
func NewContractRepo(db *sql.DB) *ContractRepo { return &ContractRepo{db: db} }

const contractColumns = `id, advertiser_id, monthly_price_ex_vat, status, signed_at, start_date, end_date, created_at, updated_at`

// GetByID fetches a single contract or ErrNotFound.
func (r *ContractRepo) GetByID(ctx context.Context, id uint64) (*model.Contract, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	var c model.Contract
	err := row.Scan(&c.ID, &c.AdvertiserID, &c.MonthlyPriceExVat, &c.Status, &c.SignedAt,
		&c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkSigned transitions draft → signed and stamps signed_at.  Zero rows
// affected means the contract was not in draft and the fact is rejected.
func (r *ContractRepo) MarkSigned(ctx context.Context, id uint64, signedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contracts SET status = ?, signed_at = ? WHERE id = ? AND status = ?`,
		model.ContractStatusSigned, signedAt.UTC(), id, model.ContractStatusDraft)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

// MarkCancelled transitions signed/active → cancelled, freeing the slots
// the contract's placements occupied.
func (r *ContractRepo) MarkCancelled(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contracts SET status = ? WHERE id = ? AND status IN (?, ?)`,
		model.ContractStatusCancelled, id, model.ContractStatusSigned, model.ContractStatusActive)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

// ListEffectiveInPeriod returns the billable contracts effective in the
// given period: start before or at the period end, and end after or at the
// period start (or open ended).  The snapshot freeze captures exactly this
// set.
func (r *ContractRepo) ListEffectiveInPeriod(ctx context.Context, periodStart, periodEnd time.Time) ([]model.Contract, error) {
	const q = `SELECT ` + contractColumns + ` FROM contracts
		WHERE status IN (?, ?)
		AND start_date <= ?
		AND (end_date IS NULL OR end_date >= ?)
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q,
		model.ContractStatusSigned, model.ContractStatusActive,
		periodEnd.UTC(), periodStart.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Contract
	for rows.Next() {
		var c model.Contract
		if err := rows.Scan(&c.ID, &c.AdvertiserID, &c.MonthlyPriceExVat, &c.Status, &c.SignedAt,
			&c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListPlacementsByContracts returns the placements for the given contract
// ids, together with each placement's location (via its screen), keyed by
// contract id.  Used by the snapshot freeze.
func (r *ContractRepo) ListPlacementsByContracts(ctx context.Context, contractIDs []uint64) (map[uint64][]model.FrozenPlacement, error) {
	out := make(map[uint64][]model.FrozenPlacement)
	if len(contractIDs) == 0 {
		return out, nil
	}
	query := `SELECT p.id, p.contract_id, p.screen_id, s.location_id, p.start_date, p.end_date, p.is_active
		FROM placements p
		JOIN screens s ON s.id = p.screen_id
		WHERE p.contract_id IN (` + placeholders(len(contractIDs)) + `)
		ORDER BY p.id`
	args := make([]interface{}, 0, len(contractIDs))
	for _, id := range contractIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var contractID uint64
		var fp model.FrozenPlacement
		if err := rows.Scan(&fp.PlacementID, &contractID, &fp.ScreenID, &fp.LocationID,
			&fp.StartDate, &fp.EndDate, &fp.IsActive); err != nil {
			return nil, err
		}
		out[contractID] = append(out[contractID], fp)
	}
	return out, rows.Err()
}
