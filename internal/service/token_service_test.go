package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmasson/giftwise-api/internal/models"
	"github.com/lmasson/giftwise-api/pkg/config"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
	"github.com/lmasson/giftwise-api/pkg/hashing"
)

type memoryRefreshTokenRepo struct {
	tokens map[string]*models.RefreshToken
}

func newMemoryRefreshTokenRepo() *memoryRefreshTokenRepo {
	return &memoryRefreshTokenRepo{tokens: make(map[string]*models.RefreshToken)}
}

func (r *memoryRefreshTokenRepo) Create(_ context.Context, token *models.RefreshToken) error {
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *memoryRefreshTokenRepo) FindByFingerprint(_ context.Context, fingerprint string) (*models.RefreshToken, error) {
	for _, token := range r.tokens {
		if token.TokenFingerprint == fingerprint {
			copied := *token
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memoryRefreshTokenRepo) MarkRotated(_ context.Context, id, replacedByID string, revokedAt time.Time) (bool, error) {
	token, ok := r.tokens[id]
	if !ok || token.RevokedAt != nil {
		return false, nil
	}
	token.RevokedAt = &revokedAt
	token.ReplacedByID = &replacedByID
	return true, nil
}

func (r *memoryRefreshTokenRepo) Delete(_ context.Context, id string) error {
	delete(r.tokens, id)
	return nil
}

func (r *memoryRefreshTokenRepo) DeleteAllForUser(_ context.Context, userID string) error {
	for id, token := range r.tokens {
		if token.UserID == userID {
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *memoryRefreshTokenRepo) countForUser(userID string) int {
	count := 0
	for _, token := range r.tokens {
		if token.UserID == userID {
			count++
		}
	}
	return count
}

func testHasher() *hashing.Argon2Hasher {
	return hashing.NewArgon2Hasher(config.HashingConfig{Memory: 8, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16})
}

func newTestTokenService(repo *memoryRefreshTokenRepo) *TokenService {
	return NewTokenService(repo, testHasher(), nil, time.Hour)
}

func TestTokenServiceIssueStoresDigestsOnly(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := newTestTokenService(repo)

	raw, token, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	stored := repo.tokens[token.ID]
	require.NotNil(t, stored)
	assert.NotEqual(t, raw, stored.TokenHash)
	assert.Equal(t, hashing.Fingerprint(raw), stored.TokenFingerprint)
	assert.Nil(t, stored.RevokedAt)
	assert.Nil(t, stored.ReplacedByID)
}

func TestTokenServiceRotate(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := newTestTokenService(repo)

	raw, parent, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	newRaw, child, err := svc.Rotate(context.Background(), raw)
	require.NoError(t, err)
	assert.NotEqual(t, raw, newRaw)
	assert.Equal(t, "u1", child.UserID)

	rotated := repo.tokens[parent.ID]
	require.NotNil(t, rotated.RevokedAt)
	require.NotNil(t, rotated.ReplacedByID)
	assert.Equal(t, child.ID, *rotated.ReplacedByID)

	assert.Nil(t, repo.tokens[child.ID].RevokedAt)
}

func TestTokenServiceRotationChain(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := newTestTokenService(repo)

	raw, _, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		raw, _, err = svc.Rotate(context.Background(), raw)
		require.NoError(t, err)
	}

	active := 0
	for _, token := range repo.tokens {
		if token.RevokedAt == nil {
			active++
		} else {
			assert.NotNil(t, token.ReplacedByID)
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, 5, len(repo.tokens))
}

func TestTokenServiceReuseRevokesAllSessions(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := newTestTokenService(repo)

	raw, _, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	// A second device holds its own session.
	_, _, err = svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	_, _, err = svc.Rotate(context.Background(), raw)
	require.NoError(t, err)

	_, _, err = svc.Rotate(context.Background(), raw)
	assert.True(t, appErrors.Is(err, appErrors.ErrRefreshReuse))
	assert.Equal(t, 0, repo.countForUser("u1"))
}

func TestTokenServiceRotateExpired(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := newTestTokenService(repo)

	raw, token, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	expired := time.Now().UTC().Add(-time.Minute)
	repo.tokens[token.ID].ExpiresAt = expired

	_, _, err = svc.Rotate(context.Background(), raw)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidRefresh))
	// Expiry is not theft; other sessions survive.
	assert.Equal(t, 1, repo.countForUser("u1"))
}

func TestTokenServiceRotateExpiredRotatedToken(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := newTestTokenService(repo)

	raw, parent, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	_, _, err = svc.Rotate(context.Background(), raw)
	require.NoError(t, err)

	repo.tokens[parent.ID].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	_, _, err = svc.Rotate(context.Background(), raw)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidRefresh))
	assert.Equal(t, 2, len(repo.tokens))
}

func TestTokenServiceRotateUnknown(t *testing.T) {
	svc := newTestTokenService(newMemoryRefreshTokenRepo())

	_, _, err := svc.Rotate(context.Background(), "never-issued")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidRefresh))
}

// rotationRaceRepo simulates losing the optimistic guard on a parent that
// another rotation revoked between lookup and update.
type rotationRaceRepo struct {
	*memoryRefreshTokenRepo
}

func (r *rotationRaceRepo) MarkRotated(_ context.Context, _, _ string, _ time.Time) (bool, error) {
	return false, nil
}

func TestTokenServiceRotateLostRaceDiscardsChild(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := NewTokenService(&rotationRaceRepo{repo}, testHasher(), nil, time.Hour)

	raw, parent, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	_, _, err = svc.Rotate(context.Background(), raw)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidRefresh))
	assert.False(t, appErrors.Is(err, appErrors.ErrRefreshReuse))

	// The orphaned child is gone; only the parent row remains.
	assert.Equal(t, 1, len(repo.tokens))
	require.NotNil(t, repo.tokens[parent.ID])
}

func TestTokenServiceGlobalLogoutClearsAllSessions(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := newTestTokenService(repo)

	raw, _, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	// A second device holds its own session.
	otherRaw, _, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	_, stranger, err := svc.Issue(context.Background(), "u2")
	require.NoError(t, err)

	require.NoError(t, svc.GlobalLogout(context.Background(), raw))
	assert.Equal(t, 0, repo.countForUser("u1"))
	assert.NotNil(t, repo.tokens[stranger.ID])

	// The other device cannot rotate its way back in.
	_, _, err = svc.Rotate(context.Background(), otherRaw)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidRefresh))
}

func TestTokenServiceGlobalLogoutIdempotent(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := newTestTokenService(repo)

	raw, _, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	// An unknown token never touches live sessions.
	require.NoError(t, svc.GlobalLogout(context.Background(), "unknown-token"))
	assert.Equal(t, 1, repo.countForUser("u1"))

	require.NoError(t, svc.GlobalLogout(context.Background(), raw))
	require.NoError(t, svc.GlobalLogout(context.Background(), raw))
	assert.Equal(t, 0, repo.countForUser("u1"))
}

func TestTokenServiceRevokeAll(t *testing.T) {
	repo := newMemoryRefreshTokenRepo()
	svc := newTestTokenService(repo)

	for i := 0; i < 3; i++ {
		_, _, err := svc.Issue(context.Background(), "u1")
		require.NoError(t, err)
	}
	_, other, err := svc.Issue(context.Background(), "u2")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(context.Background(), "u1"))
	assert.Equal(t, 0, repo.countForUser("u1"))
	assert.NotNil(t, repo.tokens[other.ID])
}
