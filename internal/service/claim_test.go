package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdkroon/adslot-backend/internal/model"
	"github.com/jdkroon/adslot-backend/internal/repository"
)

const testToken = "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"

func newClaimService(t *testing.T) (*ClaimService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	wlRepo := repository.NewWaitlistRepo(db)
	capRepo := repository.NewCapacityRepo(db)
	capacity := NewCapacityService(capRepo, wlRepo, noopStore{})
	svc := NewClaimService(wlRepo, capacity, "test-secret", 15)
	return svc, mock, func() { db.Close() }
}

// invitedRequestRow builds the waitlist row an open invite produces.
func invitedRequestRow(now time.Time, id uint64, token string) *sqlmock.Rows {
	sentAt := now.Add(-time.Hour)
	expiresAt := now.Add(47 * time.Hour)
	return sqlmock.NewRows([]string{
		"id", "package_type", "required_count", "target_region_codes", "company_name",
		"contact_email", "form_data", "claim_token", "status", "invite_sent_at",
		"invite_expires_at", "claimed_at", "created_at", "updated_at",
	}).AddRow(
		id, model.PackageSingle, 1, "ut", "Bakkerij Jansen",
		"info@bakkerijjansen.nl", `{"kvk":"12345678"}`, token, model.WaitlistStatusInvited, sentAt,
		expiresAt, nil, now.Add(-72*time.Hour), sentAt,
	)
}

func claimedHoldColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "waitlist_request_id", "region_codes", "reserved_count", "expires_at", "created_at",
	})
}

// expectClaimRecheck queues the in-transaction capacity re-check: location
// row locks, the placement aggregate and the claimed holds of competitors.
func expectClaimRecheck(mock sqlmock.Sqlmock, activeCount int, holds *sqlmock.Rows) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM locations WHERE status = 'active' AND ready_for_ads = 1 AND region_code IN (?) ORDER BY id FOR UPDATE`)).
		WithArgs("ut").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(p.id) AS active_count`)).
		WithArgs("ut").
		WillReturnRows(sqlmock.NewRows([]string{"id", "city", "region_code", "active_count"}).
			AddRow(1, "Utrecht", "ut", activeCount))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM slot_reservations WHERE claimed = 1 AND expires_at > ? AND waitlist_request_id <> ?`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(holds)
}

func expectClaimedHoldUpsert(mock sqlmock.Sqlmock, requestID uint64) {
	mock.ExpectExec(regexp.QuoteMeta(`ON DUPLICATE KEY UPDATE claimed = 1`)).
		WithArgs(requestID, "ut", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestConfirmClaimsWhenCapacityHolds(t *testing.T) {
	svc, mock, cleanup := newClaimService(t)
	defer cleanup()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ? FOR UPDATE`)).
		WithArgs(testToken).
		WillReturnRows(invitedRequestRow(now, 42, testToken))
	expectClaimRecheck(mock, 12, claimedHoldColumns())
	expectClaimedHoldUpsert(mock, uint64(42))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE waitlist_requests SET status = ?, claimed_at = ? WHERE id = ? AND status = ?`)).
		WithArgs(model.WaitlistStatusClaimed, sqlmock.AnyArg(), uint64(42), model.WaitlistStatusInvited).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.Confirm(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusClaimed, res.Request.Status)
	assert.NotEmpty(t, res.Grant.Token, "a successful claim issues an onboarding grant")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmRevertsToWaitingOnRaceLoss(t *testing.T) {
	svc, mock, cleanup := newClaimService(t)
	defer cleanup()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ? FOR UPDATE`)).
		WithArgs(testToken).
		WillReturnRows(invitedRequestRow(now, 42, testToken))
	// the single location is full: another claim won the race
	expectClaimRecheck(mock, 20, claimedHoldColumns())
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM slot_reservations WHERE waitlist_request_id = ?`)).
		WithArgs(uint64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE waitlist_requests SET status = ?, invite_sent_at = NULL, invite_expires_at = NULL WHERE id = ? AND status = ?`)).
		WithArgs(model.WaitlistStatusWaiting, uint64(42), model.WaitlistStatusInvited).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// losing the race is a committed revert, not a rollback
	mock.ExpectCommit()

	_, err := svc.Confirm(context.Background(), testToken)
	assert.ErrorIs(t, err, repository.ErrCapacityLost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Two invited requests compete for the last free slot.  The first confirm
// wins and leaves a claimed hold behind; the second sees the identical
// placement count but the hold pushes available capacity to zero, so it
// reverts to WAITING instead of overselling the slot.
func TestConfirmSecondClaimCannotTakeSameSlot(t *testing.T) {
	svc, mock, cleanup := newClaimService(t)
	defer cleanup()
	now := time.Now().UTC()
	const secondToken = "f6e5d4c3b2a1f6e5d4c3b2a1f6e5d4c3"

	// first confirm: one slot free (19 of 20), no competing holds
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ? FOR UPDATE`)).
		WithArgs(testToken).
		WillReturnRows(invitedRequestRow(now, 42, testToken))
	expectClaimRecheck(mock, 19, claimedHoldColumns())
	expectClaimedHoldUpsert(mock, uint64(42))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE waitlist_requests SET status = ?, claimed_at = ? WHERE id = ? AND status = ?`)).
		WithArgs(model.WaitlistStatusClaimed, sqlmock.AnyArg(), uint64(42), model.WaitlistStatusInvited).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// second confirm: the placement count is unchanged, but the winner's
	// hold is now visible inside the transaction
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ? FOR UPDATE`)).
		WithArgs(secondToken).
		WillReturnRows(invitedRequestRow(now, 43, secondToken))
	expectClaimRecheck(mock, 19,
		claimedHoldColumns().AddRow(7, 42, "ut", 1, now.Add(onboardingHold), now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM slot_reservations WHERE waitlist_request_id = ?`)).
		WithArgs(uint64(43)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE waitlist_requests SET status = ?, invite_sent_at = NULL, invite_expires_at = NULL WHERE id = ? AND status = ?`)).
		WithArgs(model.WaitlistStatusWaiting, uint64(43), model.WaitlistStatusInvited).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.Confirm(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusClaimed, res.Request.Status)

	_, err = svc.Confirm(context.Background(), secondToken)
	assert.ErrorIs(t, err, repository.ErrCapacityLost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmRejectsExpiredInvite(t *testing.T) {
	svc, mock, cleanup := newClaimService(t)
	defer cleanup()
	now := time.Now().UTC()

	sentAt := now.Add(-72 * time.Hour)
	expiresAt := now.Add(-time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "package_type", "required_count", "target_region_codes", "company_name",
		"contact_email", "form_data", "claim_token", "status", "invite_sent_at",
		"invite_expires_at", "claimed_at", "created_at", "updated_at",
	}).AddRow(
		42, model.PackageSingle, 1, "ut", "Bakkerij Jansen",
		"info@bakkerijjansen.nl", "{}", testToken, model.WaitlistStatusInvited, sentAt,
		expiresAt, nil, sentAt, sentAt,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ? FOR UPDATE`)).
		WithArgs(testToken).
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := svc.Confirm(context.Background(), testToken)
	assert.ErrorIs(t, err, repository.ErrTokenExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmUnknownToken(t *testing.T) {
	svc, mock, cleanup := newClaimService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ? FOR UPDATE`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.Confirm(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrTokenInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
