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

const resetTokenColumns = `id, user_id, token_hash, token_fingerprint, expires_at, created_at, used_at`

// ResetTokenRepository provides database access for password reset tokens.
type ResetTokenRepository struct {
	db *sqlx.DB
}

// NewResetTokenRepository creates a new instance of ResetTokenRepository.
func NewResetTokenRepository(db *sqlx.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create persists a new reset token row. Repeated reset requests create
// independent rows; there is no cap on outstanding tokens per user.
func (r *ResetTokenRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO password_reset_tokens (id, user_id, token_hash, token_fingerprint, expires_at, created_at) VALUES (:id, :user_id, :token_hash, :token_fingerprint, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}
	return nil
}

// FindByFingerprint returns a reset token row by its lookup fingerprint.
func (r *ResetTokenRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*models.PasswordResetToken, error) {
	query := `SELECT ` + resetTokenColumns + ` FROM password_reset_tokens WHERE token_fingerprint = $1 LIMIT 1`
	var token models.PasswordResetToken
	if err := r.db.GetContext(ctx, &token, query, fingerprint); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find reset token: %w", err)
	}
	return &token, nil
}

// MarkUsed stamps the single-use marker, guarded against double redemption.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	const query = `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, usedAt)
	if err != nil {
		return false, fmt.Errorf("mark reset token used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark reset token used: %w", err)
	}
	return affected == 1, nil
}
