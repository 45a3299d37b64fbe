package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lmasson/giftwise-api/internal/models"
)

const refreshTokenColumns = `id, user_id, token_hash, token_fingerprint, expires_at, created_at, revoked_at, replaced_by_id`

// RefreshTokenRepository provides database access for refresh token rows.
// It is the only writer of the revocation fields.
type RefreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository creates a new instance of RefreshTokenRepository.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create persists a new active refresh token row.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token_hash, token_fingerprint, expires_at, created_at) VALUES (:id, :user_id, :token_hash, :token_fingerprint, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByFingerprint returns a refresh token row by its lookup fingerprint.
func (r *RefreshTokenRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_fingerprint = $1 LIMIT 1`
	var token models.RefreshToken
	if err := r.db.GetContext(ctx, &token, query, fingerprint); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &token, nil
}

// MarkRotated revokes the parent row and links its replacement, guarded so
// that only one of two racing rotations can win: the update applies only
// while revoked_at is still null, and the caller must check the returned
// flag. Revocation fields are never unset afterwards.
func (r *RefreshTokenRepository) MarkRotated(ctx context.Context, id, replacedByID string, revokedAt time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2, replaced_by_id = $3 WHERE id = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, revokedAt, replacedByID)
	if err != nil {
		return false, fmt.Errorf("mark refresh token rotated: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark refresh token rotated: %w", err)
	}
	return affected == 1, nil
}

// Delete removes a single row. Used to discard the child of a rotation
// that lost the race on its parent.
func (r *RefreshTokenRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM refresh_tokens WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every refresh token row of a user. Used by
// logout, reuse detection and password reset.
func (r *RefreshTokenRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("delete refresh tokens for user: %w", err)
	}
	return nil
}
