package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jdkroon/adslot-backend/internal/model"
)

// WaitlistRepo provides data access to waitlist_requests and the soft
// slot_reservations created at invite time.  Status transitions are
// guarded in SQL with a WHERE clause on the expected current status, so a
// concurrent transition loses cleanly (zero rows affected) instead of
// overwriting state.
type WaitlistRepo struct {
	db *sql.DB
}

// NewWaitlistRepo returns a new WaitlistRepo bound to the provided database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span multiple repositories.
func (r *WaitlistRepo) DB() *sql.DB { return r.db }

const waitlistColumns = `id, package_type, required_count, target_region_codes, company_name,
	contact_email, form_data, claim_token, status, invite_sent_at, invite_expires_at,
	claimed_at, created_at, updated_at`

// Create inserts a new WAITING request and populates the generated ID.
func (r *WaitlistRepo) Create(ctx context.Context, req *model.WaitlistRequest) error {
	const q = `INSERT INTO waitlist_requests
		(package_type, required_count, target_region_codes, company_name, contact_email, form_data, claim_token, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		req.PackageType, req.RequiredCount, joinRegions(req.TargetRegionCodes),
		req.CompanyName, req.ContactEmail, req.FormData, req.ClaimToken, req.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = uint64(id)
	return nil
}

// GetByID fetches one request or ErrNotFound.
func (r *WaitlistRepo) GetByID(ctx context.Context, id uint64) (*model.WaitlistRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+waitlistColumns+` FROM waitlist_requests WHERE id = ?`, id)
	return scanWaitlistRow(row)
}

// GetByClaimToken fetches the request behind a claim link.  A missing token
// maps to ErrTokenInvalid so handlers can answer 404 without leaking which
// tokens exist.
func (r *WaitlistRepo) GetByClaimToken(ctx context.Context, token string) (*model.WaitlistRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+waitlistColumns+` FROM waitlist_requests WHERE claim_token = ?`, token)
	req, err := scanWaitlistRow(row)
	if err == ErrNotFound {
		return nil, ErrTokenInvalid
	}
	return req, err
}

// GetByClaimTokenTx is GetByClaimToken inside an existing transaction with
// a row lock, used by claim confirmation so two confirms of the same token
// serialize.
func (r *WaitlistRepo) GetByClaimTokenTx(ctx context.Context, tx *sql.Tx, token string) (*model.WaitlistRequest, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+waitlistColumns+` FROM waitlist_requests WHERE claim_token = ? FOR UPDATE`, token)
	req, err := scanWaitlistRow(row)
	if err == ErrNotFound {
		return nil, ErrTokenInvalid
	}
	return req, err
}

// ListWaiting returns all WAITING requests oldest first, the order in which
// the sweep offers freed capacity.
func (r *WaitlistRepo) ListWaiting(ctx context.Context) ([]model.WaitlistRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_requests WHERE status = ? ORDER BY created_at ASC, id ASC`,
		model.WaitlistStatusWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WaitlistRequest
	for rows.Next() {
		req, err := scanWaitlistRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// ListInvitedExpired returns INVITED requests whose claim window has passed
// at the given instant; the sweep moves them to EXPIRED.
func (r *WaitlistRepo) ListInvitedExpired(ctx context.Context, now time.Time) ([]model.WaitlistRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_requests WHERE status = ? AND invite_expires_at IS NOT NULL AND invite_expires_at <= ?`,
		model.WaitlistStatusInvited, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WaitlistRequest
	for rows.Next() {
		req, err := scanWaitlistRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// MarkInvited transitions WAITING → INVITED and stamps the invite window.
// Zero rows affected means the request was no longer WAITING and the
// transition is rejected.
func (r *WaitlistRepo) MarkInvited(ctx context.Context, id uint64, sentAt, expiresAt time.Time) error {
	return r.guardedTransition(ctx, nil,
		`UPDATE waitlist_requests SET status = ?, invite_sent_at = ?, invite_expires_at = ? WHERE id = ? AND status = ?`,
		model.WaitlistStatusInvited, sentAt.UTC(), expiresAt.UTC(), id, model.WaitlistStatusWaiting)
}

// MarkClaimedTx transitions INVITED → CLAIMED inside the claim transaction.
func (r *WaitlistRepo) MarkClaimedTx(ctx context.Context, tx *sql.Tx, id uint64, claimedAt time.Time) error {
	return r.guardedTransition(ctx, tx,
		`UPDATE waitlist_requests SET status = ?, claimed_at = ? WHERE id = ? AND status = ?`,
		model.WaitlistStatusClaimed, claimedAt.UTC(), id, model.WaitlistStatusInvited)
}

// RevertToWaitingTx moves a request that lost the capacity race back to
// WAITING, clearing its invite window so the next sweep can try again.
func (r *WaitlistRepo) RevertToWaitingTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	return r.guardedTransition(ctx, tx,
		`UPDATE waitlist_requests SET status = ?, invite_sent_at = NULL, invite_expires_at = NULL WHERE id = ? AND status = ?`,
		model.WaitlistStatusWaiting, id, model.WaitlistStatusInvited)
}

// MarkExpired transitions INVITED → EXPIRED once the claim window passed.
func (r *WaitlistRepo) MarkExpired(ctx context.Context, id uint64) error {
	return r.guardedTransition(ctx, nil,
		`UPDATE waitlist_requests SET status = ? WHERE id = ? AND status = ?`,
		model.WaitlistStatusExpired, id, model.WaitlistStatusInvited)
}

// Cancel transitions WAITING or INVITED → CANCELLED (admin action).
func (r *WaitlistRepo) Cancel(ctx context.Context, id uint64) error {
	return r.guardedTransition(ctx, nil,
		`UPDATE waitlist_requests SET status = ?, invite_sent_at = NULL, invite_expires_at = NULL WHERE id = ? AND status IN (?, ?)`,
		model.WaitlistStatusCancelled, id, model.WaitlistStatusWaiting, model.WaitlistStatusInvited)
}

// Reset is the explicit admin edge EXPIRED/CANCELLED → WAITING.  It is the
// only way back from a terminal state.
func (r *WaitlistRepo) Reset(ctx context.Context, id uint64) error {
	return r.guardedTransition(ctx, nil,
		`UPDATE waitlist_requests SET status = ?, invite_sent_at = NULL, invite_expires_at = NULL, claimed_at = NULL WHERE id = ? AND status IN (?, ?)`,
		model.WaitlistStatusWaiting, id, model.WaitlistStatusExpired, model.WaitlistStatusCancelled)
}

// guardedTransition runs a status UPDATE and distinguishes "row missing"
// from "row in the wrong state" for the caller.
func (r *WaitlistRepo) guardedTransition(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) error {
	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, args...)
	} else {
		res, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Figure out whether the row exists at all; the id is always the
		// first arg after the SET values, so re-check cheaply by id when
		// possible is not worth the round trip here.  Callers treat both
		// cases as a rejected transition.
		return ErrInvalidTransition
	}
	return nil
}

// CreateReservation inserts the soft capacity reservation attached to an
// invite.  One reservation per request (unique key on waitlist_request_id).
func (r *WaitlistRepo) CreateReservation(ctx context.Context, res *model.SlotReservation) error {
	const q = `INSERT INTO slot_reservations (waitlist_request_id, region_codes, reserved_count, expires_at)
		VALUES (?, ?, ?, ?)`
	out, err := r.db.ExecContext(ctx, q, res.WaitlistRequestID, joinRegions(res.RegionCodes), res.ReservedCount, res.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// DeleteReservationByRequestTx releases the reservation of a request that
// lost the capacity race inside the claim transaction.
func (r *WaitlistRepo) DeleteReservationByRequestTx(ctx context.Context, tx *sql.Tx, requestID uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM slot_reservations WHERE waitlist_request_id = ?`, requestID)
	return err
}

// MarkReservationClaimedTx converts the winner's soft reservation into a
// claimed hold inside the claim transaction.  The hold keeps consuming
// capacity until onboarding creates the placement or holdUntil passes.  An
// upsert covers the rare case where the reservation row was already purged;
// the claim must still leave a capacity-visible hold behind.
func (r *WaitlistRepo) MarkReservationClaimedTx(ctx context.Context, tx *sql.Tx, res *model.SlotReservation, holdUntil time.Time) error {
	const q = `INSERT INTO slot_reservations (waitlist_request_id, region_codes, reserved_count, expires_at, claimed)
		VALUES (?, ?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE claimed = 1, expires_at = VALUES(expires_at)`
	_, err := tx.ExecContext(ctx, q, res.WaitlistRequestID, joinRegions(res.RegionCodes), res.ReservedCount, holdUntil.UTC())
	return err
}

// ClaimedReservationsTx returns the claimed holds of other requests that are
// still inside their onboarding window.  Claim confirmation subtracts these
// from hard capacity, so a winner that has not yet materialized as a
// placement still blocks the slot it took.
func (r *WaitlistRepo) ClaimedReservationsTx(ctx context.Context, tx *sql.Tx, excludeRequestID uint64, now time.Time) ([]model.SlotReservation, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, waitlist_request_id, region_codes, reserved_count, expires_at, created_at
		 FROM slot_reservations WHERE claimed = 1 AND expires_at > ? AND waitlist_request_id <> ?`,
		now.UTC(), excludeRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservationRows(rows)
}

// DeleteReservationByRequest is the non-transactional variant used by the
// sweep when it expires an invite.
func (r *WaitlistRepo) DeleteReservationByRequest(ctx context.Context, requestID uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM slot_reservations WHERE waitlist_request_id = ?`, requestID)
	return err
}

// ActiveReservations returns all unexpired reservations, claimed holds
// included.  The sweep computes region overlap in Go; the table stays small
// (at most one row per outstanding invite or onboarding).
func (r *WaitlistRepo) ActiveReservations(ctx context.Context) ([]model.SlotReservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, waitlist_request_id, region_codes, reserved_count, expires_at, created_at
		 FROM slot_reservations WHERE expires_at > ?`, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservationRows(rows)
}

// scanReservationRows drains a slot_reservations cursor.
func scanReservationRows(rows *sql.Rows) ([]model.SlotReservation, error) {
	var out []model.SlotReservation
	for rows.Next() {
		var res model.SlotReservation
		var regions string
		if err := rows.Scan(&res.ID, &res.WaitlistRequestID, &regions, &res.ReservedCount, &res.ExpiresAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		res.RegionCodes = splitRegions(regions)
		out = append(out, res)
	}
	return out, rows.Err()
}

// PurgeExpiredReservations deletes reservations past their window so they
// stop counting against availability.
func (r *WaitlistRepo) PurgeExpiredReservations(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM slot_reservations WHERE expires_at <= ?`, time.Now().UTC())
	return err
}

// scanWaitlistRow scans a single QueryRow result.
func scanWaitlistRow(row *sql.Row) (*model.WaitlistRequest, error) {
	var req model.WaitlistRequest
	var regions string
	err := row.Scan(&req.ID, &req.PackageType, &req.RequiredCount, &regions, &req.CompanyName,
		&req.ContactEmail, &req.FormData, &req.ClaimToken, &req.Status,
		&req.InviteSentAt, &req.InviteExpiresAt, &req.ClaimedAt, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	req.TargetRegionCodes = splitRegions(regions)
	return &req, nil
}

// scanWaitlistRows scans the current row of a Rows cursor.
func scanWaitlistRows(rows *sql.Rows) (*model.WaitlistRequest, error) {
	var req model.WaitlistRequest
	var regions string
	err := rows.Scan(&req.ID, &req.PackageType, &req.RequiredCount, &regions, &req.CompanyName,
		&req.ContactEmail, &req.FormData, &req.ClaimToken, &req.Status,
		&req.InviteSentAt, &req.InviteExpiresAt, &req.ClaimedAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.TargetRegionCodes = splitRegions(regions)
	return &req, nil
}

// joinRegions stores region code lists as a comma separated string.
func joinRegions(codes []string) string {
	return strings.Join(codes, ",")
}

// splitRegions parses the stored representation back into a slice; an
// empty column means "no region filter".
func splitRegions(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
