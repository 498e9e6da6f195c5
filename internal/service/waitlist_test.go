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
	"github.com/jdkroon/adslot-backend/internal/queue"
	"github.com/jdkroon/adslot-backend/internal/repository"
)

// recordingNotifier captures published invites instead of talking to AMQP.
type recordingNotifier struct {
	events []queue.ClaimInviteEvent
}

func (n *recordingNotifier) PublishClaimInvite(_ context.Context, ev queue.ClaimInviteEvent) error {
	n.events = append(n.events, ev)
	return nil
}

func newWaitlistService(t *testing.T) (*WaitlistService, *recordingNotifier, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	wlRepo := repository.NewWaitlistRepo(db)
	capacity := NewCapacityService(repository.NewCapacityRepo(db), wlRepo, noopStore{})
	notifier := &recordingNotifier{}
	svc := NewWaitlistService(wlRepo, capacity, notifier, nil, 48*time.Hour)
	return svc, notifier, mock, func() { db.Close() }
}

func TestRequestAdmissionAdmitsImmediately(t *testing.T) {
	svc, _, mock, cleanup := newWaitlistService(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(p.id) AS active_count`)).
		WillReturnRows(capacityRows([4]interface{}{1, "Utrecht", "ut", 3}))

	check, entry, err := svc.RequestAdmission(context.Background(), AdmissionInput{
		PackageType:  model.PackageSingle,
		CompanyName:  "Bakkerij Jansen",
		ContactEmail: "info@bakkerijjansen.nl",
	})
	require.NoError(t, err)
	assert.True(t, check.IsAvailable)
	assert.Nil(t, entry, "an admitted advertiser never lands on the waitlist")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestAdmissionQueuesWhenFull(t *testing.T) {
	svc, _, mock, cleanup := newWaitlistService(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(p.id) AS active_count`)).
		WithArgs("ut").
		WillReturnRows(capacityRows([4]interface{}{1, "Utrecht", "ut", 20}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO waitlist_requests`)).
		WillReturnResult(sqlmock.NewResult(42, 1))

	check, entry, err := svc.RequestAdmission(context.Background(), AdmissionInput{
		PackageType:       model.PackageSingle,
		TargetRegionCodes: []string{"ut"},
		CompanyName:       "Bakkerij Jansen",
		ContactEmail:      "info@bakkerijjansen.nl",
		FormData:          `{"kvk":"12345678"}`,
	})
	require.NoError(t, err)
	assert.False(t, check.IsAvailable)
	require.NotNil(t, entry)
	assert.Equal(t, uint64(42), entry.ID)
	assert.Equal(t, model.WaitlistStatusWaiting, entry.Status)
	assert.Len(t, entry.ClaimToken, 96, "the claim token is generated up front")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestAdmissionRejectsUnknownPackage(t *testing.T) {
	svc, _, _, cleanup := newWaitlistService(t)
	defer cleanup()

	_, _, err := svc.RequestAdmission(context.Background(), AdmissionInput{PackageType: "MEGA"})
	assert.ErrorIs(t, err, ErrInvalidPackage)
}

func TestSweepInvitesOldestWaiting(t *testing.T) {
	svc, notifier, mock, cleanup := newWaitlistService(t)
	defer cleanup()
	now := time.Now().UTC()

	waitlistCols := []string{
		"id", "package_type", "required_count", "target_region_codes", "company_name",
		"contact_email", "form_data", "claim_token", "status", "invite_sent_at",
		"invite_expires_at", "claimed_at", "created_at", "updated_at",
	}

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM slot_reservations WHERE expires_at <= ?`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`invite_expires_at IS NOT NULL AND invite_expires_at <= ?`)).
		WillReturnRows(sqlmock.NewRows(waitlistCols))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE status = ? ORDER BY created_at ASC`)).
		WithArgs(model.WaitlistStatusWaiting).
		WillReturnRows(sqlmock.NewRows(waitlistCols).AddRow(
			7, model.PackageSingle, 1, "ut", "Bakkerij Jansen",
			"info@bakkerijjansen.nl", "{}", "tok", model.WaitlistStatusWaiting, nil,
			nil, nil, now.Add(-time.Hour), now.Add(-time.Hour)))

	// capacity check with reservations counted
	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(p.id) AS active_count`)).
		WithArgs("ut").
		WillReturnRows(capacityRows([4]interface{}{1, "Utrecht", "ut", 4}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM slot_reservations WHERE expires_at > ?`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "waitlist_request_id", "region_codes", "reserved_count", "expires_at", "created_at"}))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE waitlist_requests SET status = ?, invite_sent_at = ?, invite_expires_at = ? WHERE id = ? AND status = ?`)).
		WithArgs(model.WaitlistStatusInvited, sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(7), model.WaitlistStatusWaiting).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO slot_reservations`)).
		WithArgs(uint64(7), "ut", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, svc.Sweep(context.Background()))
	require.Len(t, notifier.events, 1)
	assert.Equal(t, uint64(7), notifier.events[0].RequestID)
	assert.Equal(t, "tok", notifier.events[0].ClaimToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiresOverdueInvites(t *testing.T) {
	svc, notifier, mock, cleanup := newWaitlistService(t)
	defer cleanup()
	now := time.Now().UTC()

	waitlistCols := []string{
		"id", "package_type", "required_count", "target_region_codes", "company_name",
		"contact_email", "form_data", "claim_token", "status", "invite_sent_at",
		"invite_expires_at", "claimed_at", "created_at", "updated_at",
	}

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM slot_reservations WHERE expires_at <= ?`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`invite_expires_at IS NOT NULL AND invite_expires_at <= ?`)).
		WillReturnRows(sqlmock.NewRows(waitlistCols).AddRow(
			5, model.PackageSingle, 1, "", "Slagerij Pieters",
			"post@slagerijpieters.nl", "{}", "tok5", model.WaitlistStatusInvited, now.Add(-50*time.Hour),
			now.Add(-2*time.Hour), nil, now.Add(-80*time.Hour), now.Add(-50*time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE waitlist_requests SET status = ? WHERE id = ? AND status = ?`)).
		WithArgs(model.WaitlistStatusExpired, uint64(5), model.WaitlistStatusInvited).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM slot_reservations WHERE waitlist_request_id = ?`)).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE status = ? ORDER BY created_at ASC`)).
		WithArgs(model.WaitlistStatusWaiting).
		WillReturnRows(sqlmock.NewRows(waitlistCols))

	require.NoError(t, svc.Sweep(context.Background()))
	assert.Empty(t, notifier.events, "expiry never re-invites by itself")
	assert.NoError(t, mock.ExpectationsWereMet())
}
