package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lmasson/giftwise-api/internal/models"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
	"github.com/lmasson/giftwise-api/pkg/hashing"
)

type verificationUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	SetVerification(ctx context.Context, id, tokenHash, fingerprint string, expiresAt time.Time) error
	FindByVerificationFingerprint(ctx context.Context, fingerprint string) (*models.User, error)
	MarkVerified(ctx context.Context, id string) error
}

// VerificationService implements email ownership verification. Each user
// has one verification slot on their row; issuing a new challenge
// invalidates the previous one.
type VerificationService struct {
	users           verificationUserRepository
	hasher          secretHasher
	logger          *zap.Logger
	verificationTTL time.Duration
}

// NewVerificationService constructs a VerificationService instance.
func NewVerificationService(users verificationUserRepository, hasher secretHasher, logger *zap.Logger, verificationTTL time.Duration) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{users: users, hasher: hasher, logger: logger, verificationTTL: verificationTTL}
}

// Issue mints a verification challenge for the user, overwriting any
// outstanding one.
func (s *VerificationService) Issue(ctx context.Context, user *models.User) (*TokenChallenge, error) {
	raw, err := generateTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification token")
	}

	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash verification token")
	}

	expiresAt := time.Now().UTC().Add(s.verificationTTL)
	if err := s.users.SetVerification(ctx, user.ID, hash, hashing.Fingerprint(raw), expiresAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification token")
	}

	return &TokenChallenge{UserEmail: user.Email, UserName: user.DisplayName(), Token: raw}, nil
}

// Resend mints a fresh challenge for an unverified account. Unknown or
// already verified addresses yield a nil challenge and no error, keeping
// the endpoint response uniform.
func (s *VerificationService) Resend(ctx context.Context, email string) (*TokenChallenge, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.IsVerified {
		return nil, nil
	}
	return s.Issue(ctx, user)
}

// Redeem consumes a verification token and marks the account verified.
// Expired or unknown tokens fail the same way; a fresh challenge can
// always be requested.
func (s *VerificationService) Redeem(ctx context.Context, raw string) error {
	user, err := s.users.FindByVerificationFingerprint(ctx, hashing.Fingerprint(raw))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up verification token")
	}

	if user.VerificationTokenHash == nil || user.VerificationTokenExpiresAt == nil {
		return appErrors.Clone(appErrors.ErrInvalidToken, "")
	}
	if time.Now().UTC().After(*user.VerificationTokenExpiresAt) {
		return appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	match, err := s.hasher.Verify(raw, *user.VerificationTokenHash)
	if err != nil || !match {
		return appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark user verified")
	}

	s.logger.Info("email verified", zap.String("user_id", user.ID))
	return nil
}
