package models

import "time"

// User represents an account stored in the users table.
//
// Email is globally unique and normalized to lowercase before storage,
// including the local part; major providers treat it case-insensitively and
// this project follows suit. The verification_* columns form a single-slot
// email verification token embedded on the row: issuing a new token
// overwrites the previous one.
type User struct {
	ID           string   `db:"id" json:"id"`
	Email        string   `db:"email" json:"email"`
	PasswordHash string   `db:"password_hash" json:"-"`
	Name         *string  `db:"name" json:"name,omitempty"`
	Budget       *float64 `db:"budget" json:"budget,omitempty"`
	IsVerified   bool     `db:"is_verified" json:"is_verified"`

	VerificationTokenHash        *string    `db:"verification_token_hash" json:"-"`
	VerificationTokenFingerprint *string    `db:"verification_token_fingerprint" json:"-"`
	VerificationTokenExpiresAt   *time.Time `db:"verification_token_expires_at" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName returns the user's name or, when unset, the email address.
func (u *User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}

// UserProfile is the /users/me projection with computed budget fields.
type UserProfile struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Name       *string  `json:"name"`
	IsVerified bool     `json:"is_verified"`
	Budget     *float64 `json:"budget"`
	Spent      float64  `json:"spent"`
	Remaining  *float64 `json:"remaining"`
}
