package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmasson/giftwise-api/internal/models"
)

func TestRefreshTokenCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{UserID: "u1", TokenHash: "hash", TokenFingerprint: "fp", ExpiresAt: time.Now().Add(time.Hour)}
	err := repo.Create(context.Background(), token)
	require.NoError(t, err)
	assert.NotEmpty(t, token.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenFindByFingerprint(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "token_fingerprint", "expires_at", "created_at", "revoked_at", "replaced_by_id"}).
		AddRow("rt1", "u1", "hash", "fp", now.Add(time.Hour), now, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token_hash, token_fingerprint, expires_at, created_at, revoked_at, replaced_by_id FROM refresh_tokens WHERE token_fingerprint = $1 LIMIT 1")).
		WithArgs("fp").
		WillReturnRows(rows)

	token, err := repo.FindByFingerprint(context.Background(), "fp")
	require.NoError(t, err)
	assert.Equal(t, "rt1", token.ID)
	assert.False(t, token.Revoked())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenMarkRotatedWinsGuard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	revokedAt := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2, replaced_by_id = $3 WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("rt1", revokedAt, "rt2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rotated, err := repo.MarkRotated(context.Background(), "rt1", "rt2", revokedAt)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenMarkRotatedLosesGuard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	revokedAt := time.Now()
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs("rt1", revokedAt, "rt2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rotated, err := repo.MarkRotated(context.Background(), "rt1", "rt2", revokedAt)
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenDeleteAllForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.DeleteAllForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
