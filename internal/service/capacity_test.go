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

// noopStore is an AvailabilityStore that caches nothing.
type noopStore struct{}

func (noopStore) Get(context.Context) ([]model.CityAvailability, bool) { return nil, false }
func (noopStore) Set(context.Context, []model.CityAvailability)        {}
func (noopStore) Invalidate(context.Context) error                     { return nil }

func newCapacityService(t *testing.T) (*CapacityService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	svc := NewCapacityService(repository.NewCapacityRepo(db), repository.NewWaitlistRepo(db), noopStore{})
	return svc, mock, func() { db.Close() }
}

func anyTime() time.Time { return time.Now().UTC().Add(time.Hour) }

func capacityRows(rows ...[4]interface{}) *sqlmock.Rows {
	out := sqlmock.NewRows([]string{"id", "city", "region_code", "active_count"})
	for _, r := range rows {
		out.AddRow(r[0], r[1], r[2], r[3])
	}
	return out
}

func TestCheckAdmitsWhenEnoughLocationsHaveSpace(t *testing.T) {
	svc, mock, cleanup := newCapacityService(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(p.id) AS active_count`)).
		WillReturnRows(capacityRows(
			[4]interface{}{1, "Utrecht", "ut", 5},
			[4]interface{}{2, "Utrecht", "ut", 19},
			[4]interface{}{3, "Zwolle", "ov", 20}, // full, does not count
		))

	res, err := svc.Check(context.Background(), model.PackageTriple, nil, false)
	require.NoError(t, err)
	assert.False(t, res.IsAvailable, "two locations with space cannot carry a TRIPLE")
	assert.Equal(t, 2, res.AvailableScreens)
	assert.Equal(t, 3, res.RequiredScreens)
	assert.Contains(t, res.TopReasons, ReasonInsufficientTotal)
}

func TestCheckRegionFilter(t *testing.T) {
	svc, mock, cleanup := newCapacityService(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(p.id) AS active_count`)).
		WithArgs("ut").
		WillReturnRows(capacityRows())

	res, err := svc.Check(context.Background(), model.PackageSingle, []string{"ut"}, false)
	require.NoError(t, err)
	assert.False(t, res.IsAvailable)
	assert.Contains(t, res.TopReasons, ReasonNoSellableInRegion)
}

func TestCheckSubtractsActiveReservations(t *testing.T) {
	svc, mock, cleanup := newCapacityService(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(p.id) AS active_count`)).
		WillReturnRows(capacityRows(
			[4]interface{}{1, "Utrecht", "ut", 0},
			[4]interface{}{2, "Zwolle", "ov", 0},
		))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM slot_reservations WHERE expires_at > ?`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "waitlist_request_id", "region_codes", "reserved_count", "expires_at", "created_at"}).
			AddRow(1, 9, "", 1, anyTime(), anyTime()))

	res, err := svc.Check(context.Background(), model.PackageTriple, nil, true)
	require.NoError(t, err)
	assert.False(t, res.IsAvailable)
	assert.Equal(t, 1, res.AvailableScreens, "one of the two free locations is softly reserved")
	assert.Contains(t, res.TopReasons, ReasonInsufficientTotal)
}

func TestCheckReportsReservedCapacity(t *testing.T) {
	svc, mock, cleanup := newCapacityService(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(p.id) AS active_count`)).
		WillReturnRows(capacityRows([4]interface{}{1, "Utrecht", "ut", 0}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM slot_reservations WHERE expires_at > ?`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "waitlist_request_id", "region_codes", "reserved_count", "expires_at", "created_at"}).
			AddRow(1, 9, "", 1, anyTime(), anyTime()))

	res, err := svc.Check(context.Background(), model.PackageSingle, nil, true)
	require.NoError(t, err)
	assert.False(t, res.IsAvailable)
	assert.Equal(t, 0, res.AvailableScreens)
	assert.Contains(t, res.TopReasons, ReasonReservedForInvites,
		"when the hard capacity would suffice, the reservation is named as the reason")
}

func TestRegionsOverlap(t *testing.T) {
	assert.True(t, regionsOverlap(nil, []string{"ut"}), "an unscoped reservation competes everywhere")
	assert.True(t, regionsOverlap([]string{"ut"}, nil), "an unscoped check competes with everything")
	assert.True(t, regionsOverlap([]string{"ut", "ov"}, []string{"ov"}))
	assert.False(t, regionsOverlap([]string{"ut"}, []string{"ov"}))
}
