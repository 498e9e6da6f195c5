package repository

import (
	"context"
	"database/sql"

	"github.com/jdkroon/adslot-backend/internal/model"
)

// LocationRepo provides data access to locations and their screens.
// Capacity-relevant mutations (status and ready_for_ads changes) are
// exposed as guarded updates; the service layer is responsible for
// invalidating the availability cache after any of them commits.
type LocationRepo struct {
	db *sql.DB
}

// NewLocationRepo returns a new LocationRepo bound to the provided database.
func NewLocationRepo(db *sql.DB) *LocationRepo { return &LocationRepo{db: db} }

const locationColumns = `id, name, city, region_code, status, ready_for_ads, revenue_share_percent, created_at, updated_at`

// GetByID fetches a single location or ErrNotFound.
func (r *LocationRepo) GetByID(ctx context.Context, id uint64) (*model.Location, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)
	var l model.Location
	err := row.Scan(&l.ID, &l.Name, &l.City, &l.RegionCode, &l.Status, &l.ReadyForAds,
		&l.RevenueSharePercent, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// SetStatus updates locations.status.  Returns ErrNotFound when the id does
// not exist.
func (r *LocationRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE locations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

// SetReadyForAds toggles the ready_for_ads flag.
func (r *LocationRepo) SetReadyForAds(ctx context.Context, id uint64, ready bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE locations SET ready_for_ads = ? WHERE id = ?`, ready, id)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

// ListWithScreens returns every location together with its screens, used by
// the snapshot freeze.  Two queries instead of a join keeps the scanning
// straightforward.
func (r *LocationRepo) ListWithScreens(ctx context.Context) ([]model.Location, map[uint64][]model.Screen, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	var locations []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.City, &l.RegionCode, &l.Status, &l.ReadyForAds,
			&l.RevenueSharePercent, &l.CreatedAt, &l.UpdatedAt); err != nil {
			rows.Close()
			return nil, nil, err
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}

	screenRows, err := r.db.QueryContext(ctx,
		`SELECT id, location_id, device_ref, status, loop_slot_seconds, plays_per_hour, created_at, updated_at
		 FROM screens ORDER BY location_id, id`)
	if err != nil {
		return nil, nil, err
	}
	defer screenRows.Close()
	screens := make(map[uint64][]model.Screen)
	for screenRows.Next() {
		var s model.Screen
		if err := screenRows.Scan(&s.ID, &s.LocationID, &s.DeviceRef, &s.Status,
			&s.LoopSlotSeconds, &s.PlaysPerHour, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, nil, err
		}
		screens[s.LocationID] = append(screens[s.LocationID], s)
	}
	if err := screenRows.Err(); err != nil {
		return nil, nil, err
	}
	return locations, screens, nil
}

// oneRowOrNotFound maps a zero-row update to ErrNotFound.
func oneRowOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
