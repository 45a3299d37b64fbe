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

const userColumns = `id, email, password_hash, name, budget, is_verified, verification_token_hash, verification_token_fingerprint, verification_token_expires_at, created_at, updated_at`

// UserRepository provides database access for user accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by normalized email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, email, password_hash, name, budget, is_verified, created_at, updated_at) VALUES (:id, :email, :password_hash, :name, :budget, :is_verified, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetBudget updates the user's gift budget; nil clears it.
func (r *UserRepository) SetBudget(ctx context.Context, id string, budget *float64) error {
	const query = `UPDATE users SET budget = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, budget, time.Now().UTC()); err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	return nil
}

// SpentAmount sums the price of the user's gifts that moved past the idea
// stage. Gift CRUD lives elsewhere; only this aggregate is read here.
func (r *UserRepository) SpentAmount(ctx context.Context, id string) (float64, error) {
	const query = `SELECT COALESCE(SUM(price * quantity), 0) FROM gifts WHERE user_id = $1 AND status <> 'idee' AND price IS NOT NULL`
	var spent float64
	if err := r.db.GetContext(ctx, &spent, query, id); err != nil {
		return 0, fmt.Errorf("sum spent amount: %w", err)
	}
	return spent, nil
}

// SetVerification stores the single-slot verification token on the user
// row, overwriting any previous one.
func (r *UserRepository) SetVerification(ctx context.Context, id, tokenHash, fingerprint string, expiresAt time.Time) error {
	const query = `UPDATE users SET verification_token_hash = $2, verification_token_fingerprint = $3, verification_token_expires_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, tokenHash, fingerprint, expiresAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

// FindByVerificationFingerprint returns the unverified user holding the
// given verification token fingerprint.
func (r *UserRepository) FindByVerificationFingerprint(ctx context.Context, fingerprint string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE verification_token_fingerprint = $1 AND is_verified = FALSE LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, fingerprint); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by verification fingerprint: %w", err)
	}
	return &user, nil
}

// MarkVerified flips the verified flag and clears the verification slot.
func (r *UserRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `UPDATE users SET is_verified = TRUE, verification_token_hash = NULL, verification_token_fingerprint = NULL, verification_token_expires_at = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	return nil
}
