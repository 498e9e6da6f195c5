package handler

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/service"
)

func newSettlementHandler(t *testing.T) (*SettlementHandler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	settle := repository.NewSettlementRepo(db)
	svc := service.NewSettlementService(
		repository.NewSnapshotRepo(db),
		repository.NewContractRepo(db),
		repository.NewLocationRepo(db),
		settle)
	return NewSettlementHandler(svc, settle), mock, func() { db.Close() }
}

func getSnapshotSub(t *testing.T, h echo.HandlerFunc, id, sub string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/snapshots/"+id+"/"+sub, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/admin/snapshots/:id/" + sub)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, h(c))
	return rec
}

func TestAllocationsListsSnapshotRows(t *testing.T) {
	h, mock, cleanup := newSettlementHandler(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM revenue_allocations WHERE snapshot_id = ?`)).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "snapshot_id", "screen_id", "location_id", "allocation_score", "allocated_revenue", "created_at",
		}).
			AddRow(1, 3, 11, 5, "43200", "33.33", now).
			AddRow(2, 3, 12, 5, "43200", "33.34", now))

	rec := getSnapshotSub(t, h.Allocations, "3", "allocations")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "33.34")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationsRejectsBadID(t *testing.T) {
	h, _, cleanup := newSettlementHandler(t)
	defer cleanup()

	rec := getSnapshotSub(t, h.Allocations, "zero", "allocations")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
