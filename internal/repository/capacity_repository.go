package repository // repository for the derived capacity ledger

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jdkroon/adslot-backend/internal/model"
)

// CapacityRepo computes the live-slot ledger.  There is no persisted
// counter: every read recomputes the pooled per-location count from the
// placements table, which trades a join-aggregate query for immunity to
// counter drift.  A placement occupies a slot when it is active, today
// falls inside its window and the backing contract is signed or active.
type CapacityRepo struct {
	db *sql.DB
}

// NewCapacityRepo returns a new CapacityRepo bound to the provided database.
func NewCapacityRepo(db *sql.DB) *CapacityRepo { return &CapacityRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span multiple repositories.
func (r *CapacityRepo) DB() *sql.DB { return r.db }

// capacityQuery aggregates LIVE placements per sellable location.  Capacity
// is pooled per location across all of its screens, so the aggregation
// groups by location, not by screen.
const capacityQuery = `
SELECT l.id, l.city, l.region_code, COUNT(p.id) AS active_count
FROM locations l
LEFT JOIN screens s ON s.location_id = l.id
LEFT JOIN placements p ON p.screen_id = s.id
    AND p.is_active = 1
    AND p.start_date <= UTC_DATE()
    AND (p.end_date IS NULL OR p.end_date >= UTC_DATE())
    AND EXISTS (
        SELECT 1 FROM contracts c
        WHERE c.id = p.contract_id AND c.status IN ('signed','active')
    )
WHERE l.status = 'active' AND l.ready_for_ads = 1`

// CapacityByRegion returns the live capacity row for every sellable
// location, optionally restricted to the given region codes.  An empty
// filter means all regions.
func (r *CapacityRepo) CapacityByRegion(ctx context.Context, regionCodes []string) ([]model.LocationCapacity, error) {
	query, args := capacityRegionQuery(regionCodes)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCapacityRows(rows)
}

// CapacityByRegionTx is CapacityByRegion inside an existing transaction.
// Combined with LockSellableLocationsTx it gives a consistent read of the
// contended capacity during claim confirmation.
func (r *CapacityRepo) CapacityByRegionTx(ctx context.Context, tx *sql.Tx, regionCodes []string) ([]model.LocationCapacity, error) {
	query, args := capacityRegionQuery(regionCodes)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCapacityRows(rows)
}

// LockSellableLocationsTx takes row locks on the sellable location rows in
// the given regions (or all regions when the filter is empty).  MySQL does
// not allow FOR UPDATE on the grouped aggregate itself, so claim
// confirmation first locks the plain location rows and then runs the
// aggregate inside the same transaction.  Concurrent confirmations against
// the same locations serialize on these locks.
func (r *CapacityRepo) LockSellableLocationsTx(ctx context.Context, tx *sql.Tx, regionCodes []string) error {
	query := `SELECT id FROM locations WHERE status = 'active' AND ready_for_ads = 1`
	args := make([]interface{}, 0, len(regionCodes))
	if len(regionCodes) > 0 {
		query += ` AND region_code IN (` + placeholders(len(regionCodes)) + `)`
		for _, rc := range regionCodes {
			args = append(args, rc)
		}
	}
	query += ` ORDER BY id FOR UPDATE`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CityAvailability aggregates the capacity ledger per city.  Each sellable
// location counts once: with space when its pooled live count is below the
// ceiling, full otherwise.
func (r *CapacityRepo) CityAvailability(ctx context.Context) ([]model.CityAvailability, error) {
	caps, err := r.CapacityByRegion(ctx, nil)
	if err != nil {
		return nil, err
	}
	byCity := make(map[string]*model.CityAvailability)
	order := make([]string, 0)
	for _, c := range caps {
		agg, ok := byCity[c.City]
		if !ok {
			agg = &model.CityAvailability{City: c.City}
			byCity[c.City] = agg
			order = append(order, c.City)
		}
		agg.ScreensTotal++
		if c.HasSpace() {
			agg.ScreensWithSpace++
		} else {
			agg.ScreensFull++
		}
	}
	out := make([]model.CityAvailability, 0, len(order))
	for _, city := range order {
		out = append(out, *byCity[city])
	}
	return out, nil
}

// capacityRegionQuery assembles the ledger query with an optional region
// filter appended before the GROUP BY.
func capacityRegionQuery(regionCodes []string) (string, []interface{}) {
	query := capacityQuery
	args := make([]interface{}, 0, len(regionCodes))
	if len(regionCodes) > 0 {
		query += ` AND l.region_code IN (` + placeholders(len(regionCodes)) + `)`
		for _, rc := range regionCodes {
			args = append(args, rc)
		}
	}
	query += ` GROUP BY l.id, l.city, l.region_code ORDER BY l.id`
	return query, args
}

func scanCapacityRows(rows *sql.Rows) ([]model.LocationCapacity, error) {
	var out []model.LocationCapacity
	for rows.Next() {
		var c model.LocationCapacity
		if err := rows.Scan(&c.LocationID, &c.City, &c.RegionCode, &c.ActiveCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// placeholders returns n comma separated "?" markers for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
