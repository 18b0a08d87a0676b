// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transer/vortice/internal/auth"
)

func newRefreshToken(t *testing.T) *auth.RefreshToken {
	t.Helper()
	token, err := auth.NewRefreshToken(ulid.Make(), "deadbeef", time.Now().Add(time.Hour))
	require.NoError(t, err)
	return token
}

func TestRefreshTokenRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	token := newRefreshToken(t)
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(token.ID.String(), token.UserID.String(), token.TokenHash,
			token.ExpiresAt, token.Revoked, token.RevokedAt, token.ReplacedBy, token.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewRefreshTokenRepository(mock)
	require.NoError(t, repo.Create(context.Background(), token))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetByTokenHash_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewRefreshTokenRepository(mock)
	_, err = repo.GetByTokenHash(context.Background(), "missing")
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetByTokenHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := ulid.Make()
	userID := ulid.Make()
	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "token_hash", "expires_at", "revoked", "revoked_at",
		"replaced_by_token", "created_at",
	}).AddRow(id.String(), userID.String(), "cafe", now.Add(time.Hour), false,
		(*time.Time)(nil), (*string)(nil), now)

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens").
		WithArgs("cafe").
		WillReturnRows(rows)

	repo := NewRefreshTokenRepository(mock)
	token, err := repo.GetByTokenHash(context.Background(), "cafe")
	require.NoError(t, err)
	assert.Equal(t, id, token.ID)
	assert.Equal(t, userID, token.UserID)
	assert.False(t, token.Revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	successor := newRefreshToken(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("oldhash", now, successor.TokenHash).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(successor.ID.String(), successor.UserID.String(), successor.TokenHash,
			successor.ExpiresAt, successor.Revoked, successor.RevokedAt,
			successor.ReplacedBy, successor.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := NewRefreshTokenRepository(mock)
	require.NoError(t, repo.Rotate(context.Background(), "oldhash", successor, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate_AlreadyRevoked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	successor := newRefreshToken(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("oldhash", now, successor.TokenHash).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("oldhash").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	repo := NewRefreshTokenRepository(mock)
	err = repo.Rotate(context.Background(), "oldhash", successor, now)
	require.ErrorIs(t, err, auth.ErrTokenRevoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	successor := newRefreshToken(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("unknown", now, successor.TokenHash).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	repo := NewRefreshTokenRepository(mock)
	err = repo.Rotate(context.Background(), "unknown", successor, now)
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Revoke_AlreadyRevokedIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("revokedhash", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("revokedhash").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewRefreshTokenRepository(mock)
	require.NoError(t, repo.Revoke(context.Background(), "revokedhash", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Revoke_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("unknown", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	repo := NewRefreshTokenRepository(mock)
	err = repo.Revoke(context.Background(), "unknown", now)
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RevokeAllByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := ulid.Make()
	now := time.Now()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(userID.String(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	repo := NewRefreshTokenRepository(mock)
	count, err := repo.RevokeAllByUser(context.Background(), userID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	repo := NewRefreshTokenRepository(mock)
	count, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
