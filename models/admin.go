package models

import "time"

// AdminUser holds a single admin credential. Passwords are stored as
// bcrypt hashes, never in clear.
type AdminUser struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	PasswordHash       string    `json:"-"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
}
