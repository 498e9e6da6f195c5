package repository

import (
	"context"
	"database/sql"

	"github.com/jdkroon/adslot-backend/internal/model"
)

// AdminRepo provides data access to the admins table used for operator
// authentication.
type AdminRepo struct {
	db *sql.DB
}

// NewAdminRepo returns a new AdminRepo bound to the provided database.
func NewAdminRepo(db *sql.DB) *AdminRepo { return &AdminRepo{db: db} }

// Create inserts a new admin account.
func (r *AdminRepo) Create(ctx context.Context, a *model.Admin) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO admins (email, password_hash) VALUES (?, ?)`, a.Email, a.PasswordHash)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// GetByEmail fetches an admin by email or ErrNotFound.
func (r *AdminRepo) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM admins WHERE email = ?`, email)
	var a model.Admin
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
