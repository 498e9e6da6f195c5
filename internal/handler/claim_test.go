package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdkroon/adslot-backend/internal/model"
	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/service"
)

// nopStore disables availability caching in handler tests.
type nopStore struct{}

func (nopStore) Get(context.Context) ([]model.CityAvailability, bool) { return nil, false }
func (nopStore) Set(context.Context, []model.CityAvailability)        {}
func (nopStore) Invalidate(context.Context) error                     { return nil }

func newClaimHandler(t *testing.T) (*ClaimHandler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	wlRepo := repository.NewWaitlistRepo(db)
	capacity := service.NewCapacityService(repository.NewCapacityRepo(db), wlRepo, nopStore{})
	h := NewClaimHandler(service.NewClaimService(wlRepo, capacity, "secret", 15))
	return h, mock, func() { db.Close() }
}

func claimRequestRow(status string, expiresAt *time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "package_type", "required_count", "target_region_codes", "company_name",
		"contact_email", "form_data", "claim_token", "status", "invite_sent_at",
		"invite_expires_at", "claimed_at", "created_at", "updated_at",
	}).AddRow(
		42, model.PackageSingle, 1, "ut", "Bakkerij Jansen",
		"info@bakkerijjansen.nl", "{}", "tok", status, now.Add(-time.Hour),
		expiresAt, nil, now.Add(-time.Hour), now.Add(-time.Hour))
}

func getClaim(t *testing.T, h *ClaimHandler, token string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/claim/"+token, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/claim/:token")
	c.SetParamNames("token")
	c.SetParamValues(token)
	require.NoError(t, h.Validate(c))
	return rec
}

func TestValidateOpenInvite(t *testing.T) {
	h, mock, cleanup := newClaimHandler(t)
	defer cleanup()

	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ?`)).
		WithArgs("tok").
		WillReturnRows(claimRequestRow(model.WaitlistStatusInvited, &expiresAt))

	rec := getClaim(t, h, "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bakkerij Jansen")
}

func TestValidateUnknownTokenIsNotFound(t *testing.T) {
	h, mock, cleanup := newClaimHandler(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ?`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := getClaim(t, h, "nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "niet (meer) geldig")
}

func TestValidateExpiredInviteIsGone(t *testing.T) {
	h, mock, cleanup := newClaimHandler(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ?`)).
		WithArgs("tok").
		WillReturnRows(claimRequestRow(model.WaitlistStatusExpired, nil))

	rec := getClaim(t, h, "tok")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "verlopen")
}

func TestValidateClaimedInviteConflicts(t *testing.T) {
	h, mock, cleanup := newClaimHandler(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM waitlist_requests WHERE claim_token = ?`)).
		WithArgs("tok").
		WillReturnRows(claimRequestRow(model.WaitlistStatusClaimed, nil))

	rec := getClaim(t, h, "tok")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "al bevestigd")
}
