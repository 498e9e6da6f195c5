package model

import "time"

// Admin is an operations user allowed to manage the waitlist and run the
// month-close settlement steps.  Passwords are stored as bcrypt hashes.
type Admin struct {
	ID           uint64    // admins.id
	Email        string    // admins.email
	PasswordHash string    // admins.password_hash
	CreatedAt    time.Time // admins.created_at
}
