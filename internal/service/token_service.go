package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmasson/giftwise-api/internal/models"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
	"github.com/lmasson/giftwise-api/pkg/hashing"
)

type refreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.RefreshToken, error)
	MarkRotated(ctx context.Context, id, replacedByID string, revokedAt time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

type secretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// TokenService owns the refresh token lifecycle: issuance, rotation with
// reuse detection, and revocation. Raw tokens exist only in transit; the
// store keeps an argon2 hash for verification plus a SHA-256 fingerprint
// for indexed lookup.
type TokenService struct {
	repo       refreshTokenRepository
	hasher     secretHasher
	logger     *zap.Logger
	refreshTTL time.Duration
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(repo refreshTokenRepository, hasher secretHasher, logger *zap.Logger, refreshTTL time.Duration) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{repo: repo, hasher: hasher, logger: logger, refreshTTL: refreshTTL}
}

// Issue mints a fresh refresh token for the user and persists its digests.
// The raw value is returned exactly once and never stored.
func (s *TokenService) Issue(ctx context.Context, userID string) (string, *models.RefreshToken, error) {
	raw, err := generateTokenString()
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate refresh token")
	}

	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash refresh token")
	}

	now := time.Now().UTC()
	token := &models.RefreshToken{
		ID:               uuid.NewString(),
		UserID:           userID,
		TokenHash:        hash,
		TokenFingerprint: hashing.Fingerprint(raw),
		ExpiresAt:        now.Add(s.refreshTTL),
		CreatedAt:        now,
	}

	if err := s.repo.Create(ctx, token); err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return raw, token, nil
}

// Rotate exchanges a presented refresh token for a new one. The parent is
// revoked and linked to its replacement; presenting an already rotated
// token is treated as credential theft and clears every session the owner
// has. An expired token fails plainly and never triggers the breach
// response.
func (s *TokenService) Rotate(ctx context.Context, raw string) (string, *models.RefreshToken, error) {
	stored, err := s.repo.FindByFingerprint(ctx, hashing.Fingerprint(raw))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, appErrors.Clone(appErrors.ErrInvalidRefresh, "")
		}
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	now := time.Now().UTC()
	if now.After(stored.ExpiresAt) {
		return "", nil, appErrors.Clone(appErrors.ErrInvalidRefresh, "")
	}

	if stored.Revoked() {
		s.logger.Warn("rotated refresh token presented again, revoking all sessions",
			zap.String("user_id", stored.UserID),
			zap.String("token_id", stored.ID))
		if err := s.repo.DeleteAllForUser(ctx, stored.UserID); err != nil {
			return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke user sessions")
		}
		return "", nil, appErrors.Clone(appErrors.ErrRefreshReuse, "")
	}

	match, err := s.hasher.Verify(raw, stored.TokenHash)
	if err != nil || !match {
		return "", nil, appErrors.Clone(appErrors.ErrInvalidRefresh, "")
	}

	newRaw, child, err := s.Issue(ctx, stored.UserID)
	if err != nil {
		return "", nil, err
	}

	rotated, err := s.repo.MarkRotated(ctx, stored.ID, child.ID, now)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrRotationFailed.Code, appErrors.ErrRotationFailed.Status, appErrors.ErrRotationFailed.Message)
	}
	if !rotated {
		// Lost the race on the parent; discard our child so the winner's
		// chain stays the only live one.
		if err := s.repo.Delete(ctx, child.ID); err != nil {
			s.logger.Warn("failed to discard refresh token after lost rotation race", zap.Error(err))
		}
		return "", nil, appErrors.Clone(appErrors.ErrInvalidRefresh, "")
	}

	return newRaw, child, nil
}

// GlobalLogout ends every session of the token's owner. Unknown or
// tampered tokens are ignored so logout stays idempotent and leaks
// nothing about stored state.
func (s *TokenService) GlobalLogout(ctx context.Context, raw string) error {
	stored, err := s.repo.FindByFingerprint(ctx, hashing.Fingerprint(raw))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	match, err := s.hasher.Verify(raw, stored.TokenHash)
	if err != nil || !match {
		return nil
	}

	return s.RevokeAll(ctx, stored.UserID)
}

// RevokeAll removes every refresh token of the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	if err := s.repo.DeleteAllForUser(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke user sessions")
	}
	return nil
}

func generateTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
