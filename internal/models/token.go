package models

import "time"

// RefreshToken is a renewable session credential. Only the argon2 hash and
// the SHA-256 fingerprint of the raw token are persisted; the raw token is
// handed out exactly once at issuance.
//
// RevokedAt and ReplacedByID are write-once, set together when the row is
// rotated; bulk invalidation (logout, reuse detection, password reset)
// deletes rows instead. Re-presentation of a rotated token is treated as
// theft and tears down every session of the owning user.
type RefreshToken struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	TokenHash        string     `db:"token_hash" json:"-"`
	TokenFingerprint string     `db:"token_fingerprint" json:"-"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ReplacedByID     *string    `db:"replaced_by_id" json:"replaced_by_id,omitempty"`
}

// Revoked reports whether the token reached a terminal state.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// PasswordResetToken is a single-use recovery credential. UsedAt is set
// exactly once on redemption and never cleared.
type PasswordResetToken struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	TokenHash        string     `db:"token_hash" json:"-"`
	TokenFingerprint string     `db:"token_fingerprint" json:"-"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UsedAt           *time.Time `db:"used_at" json:"used_at,omitempty"`
}
