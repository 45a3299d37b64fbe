package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmasson/giftwise-api/internal/models"
	"github.com/lmasson/giftwise-api/internal/validation"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
	"github.com/lmasson/giftwise-api/pkg/hashing"
)

func (r *memoryUserRepo) UpdatePassword(_ context.Context, id, passwordHash string, updatedAt time.Time) error {
	user, ok := r.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = updatedAt
	return nil
}

type memoryResetTokenRepo struct {
	tokens map[string]*models.PasswordResetToken
}

func newMemoryResetTokenRepo() *memoryResetTokenRepo {
	return &memoryResetTokenRepo{tokens: make(map[string]*models.PasswordResetToken)}
}

func (r *memoryResetTokenRepo) Create(_ context.Context, token *models.PasswordResetToken) error {
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *memoryResetTokenRepo) FindByFingerprint(_ context.Context, fingerprint string) (*models.PasswordResetToken, error) {
	for _, token := range r.tokens {
		if token.TokenFingerprint == fingerprint {
			copied := *token
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memoryResetTokenRepo) MarkUsed(_ context.Context, id string, usedAt time.Time) (bool, error) {
	token, ok := r.tokens[id]
	if !ok || token.UsedAt != nil {
		return false, nil
	}
	token.UsedAt = &usedAt
	return true, nil
}

type resetFixture struct {
	users   *memoryUserRepo
	resets  *memoryResetTokenRepo
	refresh *memoryRefreshTokenRepo
	auth    *AuthService
	service *PasswordResetService
}

func newResetFixture() *resetFixture {
	users := newMemoryUserRepo()
	resets := newMemoryResetTokenRepo()
	refresh := newMemoryRefreshTokenRepo()
	hasher := testHasher()
	tokenService := NewTokenService(refresh, hasher, nil, time.Hour)
	validate := validation.New()
	return &resetFixture{
		users:   users,
		resets:  resets,
		refresh: refresh,
		auth:    NewAuthService(users, tokenService, hasher, validate, nil, testJWTConfig()),
		service: NewPasswordResetService(users, resets, tokenService, hasher, validate, nil, 30*time.Minute),
	}
}

func resetRequest(password string) models.ResetPasswordRequest {
	return models.ResetPasswordRequest{Password: password, ConfirmedPassword: password}
}

func TestPasswordResetRequestUnknownEmail(t *testing.T) {
	f := newResetFixture()

	challenge, err := f.service.Request(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, challenge)
	assert.Empty(t, f.resets.tokens)
}

func TestPasswordResetRoundTrip(t *testing.T) {
	f := newResetFixture()
	user := registerVerifiedUser(t, f.auth, f.users, "alice@example.com", "Secure123!")

	_, firstRefresh, err := f.auth.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Secure123!",
	})
	require.NoError(t, err)

	challenge, err := f.service.Request(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.Equal(t, "alice@example.com", challenge.UserEmail)

	require.NoError(t, f.service.Redeem(context.Background(), challenge.Token, resetRequest("NewSecret9?")))

	// Old password dead, new one live, old sessions gone.
	_, _, err = f.auth.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Secure123!",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	_, _, err = f.auth.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "NewSecret9?",
	})
	require.NoError(t, err)

	_, _, err = f.auth.Refresh(context.Background(), firstRefresh)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidRefresh))
	assert.Equal(t, 1, f.refresh.countForUser(user.ID))
}

func TestPasswordResetTokenIsSingleUse(t *testing.T) {
	f := newResetFixture()
	registerVerifiedUser(t, f.auth, f.users, "alice@example.com", "Secure123!")

	challenge, err := f.service.Request(context.Background(), "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, f.service.Redeem(context.Background(), challenge.Token, resetRequest("NewSecret9?")))

	err = f.service.Redeem(context.Background(), challenge.Token, resetRequest("OtherSecret1!"))
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))
}

func TestPasswordResetExpiredToken(t *testing.T) {
	f := newResetFixture()
	registerVerifiedUser(t, f.auth, f.users, "alice@example.com", "Secure123!")

	challenge, err := f.service.Request(context.Background(), "alice@example.com")
	require.NoError(t, err)

	for _, token := range f.resets.tokens {
		token.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}

	err = f.service.Redeem(context.Background(), challenge.Token, resetRequest("NewSecret9?"))
	assert.True(t, appErrors.Is(err, appErrors.ErrExpiredToken))
}

func TestPasswordResetUnknownToken(t *testing.T) {
	f := newResetFixture()

	err := f.service.Redeem(context.Background(), "never-issued", resetRequest("NewSecret9?"))
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))
}

func TestPasswordResetWeakPassword(t *testing.T) {
	f := newResetFixture()
	registerVerifiedUser(t, f.auth, f.users, "alice@example.com", "Secure123!")

	challenge, err := f.service.Request(context.Background(), "alice@example.com")
	require.NoError(t, err)

	err = f.service.Redeem(context.Background(), challenge.Token, resetRequest("weakpassword"))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	// The failed attempt must not burn the token.
	require.NoError(t, f.service.Redeem(context.Background(), challenge.Token, resetRequest("NewSecret9?")))
}

// failingHashHasher verifies normally but cannot produce new hashes.
type failingHashHasher struct {
	*hashing.Argon2Hasher
}

func (h failingHashHasher) Hash(string) (string, error) {
	return "", errors.New("argon2 parameters rejected")
}

func TestPasswordResetHashFailureKeepsToken(t *testing.T) {
	f := newResetFixture()
	registerVerifiedUser(t, f.auth, f.users, "alice@example.com", "Secure123!")

	challenge, err := f.service.Request(context.Background(), "alice@example.com")
	require.NoError(t, err)

	broken := NewPasswordResetService(f.users, f.resets, NewTokenService(f.refresh, testHasher(), nil, time.Hour),
		failingHashHasher{testHasher()}, validation.New(), nil, 30*time.Minute)
	err = broken.Redeem(context.Background(), challenge.Token, resetRequest("NewSecret9?"))
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))

	// The hashing failure struck before the token was claimed; the same
	// link still works once hashing recovers.
	require.NoError(t, f.service.Redeem(context.Background(), challenge.Token, resetRequest("NewSecret9?")))
}

func TestPasswordResetRepeatedRequestsCoexist(t *testing.T) {
	f := newResetFixture()
	registerVerifiedUser(t, f.auth, f.users, "alice@example.com", "Secure123!")

	first, err := f.service.Request(context.Background(), "alice@example.com")
	require.NoError(t, err)
	second, err := f.service.Request(context.Background(), "alice@example.com")
	require.NoError(t, err)

	// The earlier token stays redeemable until it expires or is used.
	require.NoError(t, f.service.Redeem(context.Background(), first.Token, resetRequest("NewSecret9?")))
	require.NoError(t, f.service.Redeem(context.Background(), second.Token, resetRequest("OtherSecret1!")))
}
