package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jdkroon/adslot-backend/internal/model"
)

// SnapshotRepo provides data access to monthly_snapshots.  A uniqueness
// constraint on (year, month) makes snapshot creation idempotent: retries
// find the existing row instead of duplicating the period.
type SnapshotRepo struct {
	db *sql.DB
}

// NewSnapshotRepo returns a new SnapshotRepo bound to the provided database.
func NewSnapshotRepo(db *sql.DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span multiple repositories.
func (r *SnapshotRepo) DB() *sql.DB { return r.db }

const snapshotColumns = `id, year, month, status, payload, locked_at, created_at`

// GetByID fetches a snapshot or ErrNotFound.
func (r *SnapshotRepo) GetByID(ctx context.Context, id uint64) (*model.MonthlySnapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM monthly_snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// GetByIDForUpdateTx fetches a snapshot with a row lock.  Every settlement
// step starts with this read so generate/lock operations on the same period
// serialize.
func (r *SnapshotRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.MonthlySnapshot, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM monthly_snapshots WHERE id = ? FOR UPDATE`, id)
	return scanSnapshot(row)
}

// GetByPeriodTx fetches the snapshot for a period inside a transaction,
// locking it so concurrent createSnapshot calls serialize.
func (r *SnapshotRepo) GetByPeriodTx(ctx context.Context, tx *sql.Tx, year, month int) (*model.MonthlySnapshot, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM monthly_snapshots WHERE year = ? AND month = ? FOR UPDATE`, year, month)
	return scanSnapshot(row)
}

// CreateTx inserts a new open snapshot with its frozen payload and
// populates the generated ID.  The (year, month) unique key backstops the
// idempotency check done by the caller.
func (r *SnapshotRepo) CreateTx(ctx context.Context, tx *sql.Tx, snap *model.MonthlySnapshot) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO monthly_snapshots (year, month, status, payload) VALUES (?, ?, ?, ?)`,
		snap.Year, snap.Month, snap.Status, snap.Payload)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	snap.ID = uint64(id)
	return nil
}

// AdvanceStatusTx moves a snapshot one step along its lifecycle.  The WHERE
// clause on the expected current status turns a concurrent advance into a
// clean ErrSnapshotState instead of a double transition.
func (r *SnapshotRepo) AdvanceStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE monthly_snapshots SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSnapshotState
	}
	return nil
}

// LockTx finalizes a snapshot: payouts_generated → locked with a lockedAt
// stamp.  After this no settlement step for the period can run again.
func (r *SnapshotRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64, lockedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE monthly_snapshots SET status = ?, locked_at = ? WHERE id = ? AND status = ?`,
		model.SnapshotStatusLocked, lockedAt.UTC(), id, model.SnapshotStatusPayoutsGenerated)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSnapshotState
	}
	return nil
}

// ListLocked returns all locked snapshots.  The contract-edit guard uses
// this to refuse changes touching a finalized period; the list stays small
// (one row per closed month).
func (r *SnapshotRepo) ListLocked(ctx context.Context) ([]model.MonthlySnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM monthly_snapshots WHERE status = ? ORDER BY year, month`,
		model.SnapshotStatusLocked)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.MonthlySnapshot
	for rows.Next() {
		var s model.MonthlySnapshot
		if err := rows.Scan(&s.ID, &s.Year, &s.Month, &s.Status, &s.Payload, &s.LockedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSnapshot(row *sql.Row) (*model.MonthlySnapshot, error) {
	var s model.MonthlySnapshot
	err := row.Scan(&s.ID, &s.Year, &s.Month, &s.Status, &s.Payload, &s.LockedAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
