package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmasson/giftwise-api/internal/models"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
	"github.com/lmasson/giftwise-api/pkg/hashing"
)

type resetUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type resetTokenRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
}

// TokenChallenge carries a freshly minted raw token and the recipient it
// must be delivered to. It only ever lives in memory on its way to the
// mailer.
type TokenChallenge struct {
	UserEmail string
	UserName  string
	Token     string
}

// PasswordResetService implements the forgot/reset password flow with
// single-use, short-lived tokens.
type PasswordResetService struct {
	users     resetUserRepository
	resets    resetTokenRepository
	tokens    *TokenService
	hasher    secretHasher
	validator *validator.Validate
	logger    *zap.Logger
	resetTTL  time.Duration
}

// NewPasswordResetService constructs a PasswordResetService instance.
func NewPasswordResetService(users resetUserRepository, resets resetTokenRepository, tokens *TokenService, hasher secretHasher, validate *validator.Validate, logger *zap.Logger, resetTTL time.Duration) *PasswordResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PasswordResetService{
		users:     users,
		resets:    resets,
		tokens:    tokens,
		hasher:    hasher,
		validator: validate,
		logger:    logger,
		resetTTL:  resetTTL,
	}
}

// Request mints a reset token for the account behind the email. Unknown
// addresses yield a nil challenge and no error, so the endpoint answers
// identically either way.
func (s *PasswordResetService) Request(ctx context.Context, email string) (*TokenChallenge, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	raw, err := generateTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate reset token")
	}

	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash reset token")
	}

	now := time.Now().UTC()
	token := &models.PasswordResetToken{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		TokenHash:        hash,
		TokenFingerprint: hashing.Fingerprint(raw),
		ExpiresAt:        now.Add(s.resetTTL),
		CreatedAt:        now,
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist reset token")
	}

	s.logger.Info("password reset requested", zap.String("user_id", user.ID))
	return &TokenChallenge{UserEmail: user.Email, UserName: user.DisplayName(), Token: raw}, nil
}

// Redeem consumes a reset token and installs the new password. Redemption
// also clears every open session of the account, since the old password
// can no longer vouch for them.
func (s *PasswordResetService) Redeem(ctx context.Context, raw string, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}

	stored, err := s.resets.FindByFingerprint(ctx, hashing.Fingerprint(raw))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch reset token")
	}

	if stored.UsedAt != nil {
		return appErrors.Clone(appErrors.ErrInvalidToken, "")
	}
	if time.Now().UTC().After(stored.ExpiresAt) {
		return appErrors.Clone(appErrors.ErrExpiredToken, "")
	}

	match, err := s.hasher.Verify(raw, stored.TokenHash)
	if err != nil || !match {
		return appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	// The new hash is computed before the token is claimed so a hashing
	// failure does not burn the token.
	newHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	// Claim the token before writing the password so concurrent
	// redemptions cannot both win.
	used, err := s.resets.MarkUsed(ctx, stored.ID, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume reset token")
	}
	if !used {
		return appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, newHash, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions after password reset", zap.Error(err))
	}

	s.logger.Info("password reset completed", zap.String("user_id", user.ID))
	return nil
}
