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

func newPasswordReset(t *testing.T) *auth.PasswordReset {
	t.Helper()
	reset, err := auth.NewPasswordReset(ulid.Make(), "feedface", time.Now().Add(time.Hour))
	require.NoError(t, err)
	return reset
}

func TestPasswordResetRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	reset := newPasswordReset(t)
	mock.ExpectExec("INSERT INTO password_reset_tokens").
		WithArgs(reset.ID.String(), reset.UserID.String(), reset.TokenHash,
			reset.ExpiresAt, reset.UsedAt, reset.Valid, reset.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPasswordResetRepository(mock)
	require.NoError(t, repo.Create(context.Background(), reset))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_GetByTokenHash_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM password_reset_tokens").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewPasswordResetRepository(mock)
	_, err = repo.GetByTokenHash(context.Background(), "missing")
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_GetByTokenHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := ulid.Make()
	userID := ulid.Make()
	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "token_hash", "expires_at", "used_at", "is_valid", "created_at",
	}).AddRow(id.String(), userID.String(), "feedface", now.Add(time.Hour),
		(*time.Time)(nil), true, now)

	mock.ExpectQuery("SELECT .+ FROM password_reset_tokens").
		WithArgs("feedface").
		WillReturnRows(rows)

	repo := NewPasswordResetRepository(mock)
	reset, err := repo.GetByTokenHash(context.Background(), "feedface")
	require.NoError(t, err)
	assert.Equal(t, id, reset.ID)
	assert.Equal(t, userID, reset.UserID)
	assert.True(t, reset.Valid)
	assert.Nil(t, reset.UsedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_InvalidateAllByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := ulid.Make()
	mock.ExpectExec("UPDATE password_reset_tokens").
		WithArgs(userID.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	repo := NewPasswordResetRepository(mock)
	count, err := repo.InvalidateAllByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_Consume(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	reset := newPasswordReset(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE password_reset_tokens").
		WithArgs(reset.ID.String(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(reset.UserID.String(), "newhash", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := NewPasswordResetRepository(mock)
	require.NoError(t, repo.Consume(context.Background(), reset, "newhash", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_Consume_AlreadyUsed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	reset := newPasswordReset(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE password_reset_tokens").
		WithArgs(reset.ID.String(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	repo := NewPasswordResetRepository(mock)
	err = repo.Consume(context.Background(), reset, "newhash", now)
	require.ErrorIs(t, err, auth.ErrTokenUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_Consume_UserGone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	reset := newPasswordReset(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE password_reset_tokens").
		WithArgs(reset.ID.String(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(reset.UserID.String(), "newhash", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	repo := NewPasswordResetRepository(mock)
	err = repo.Consume(context.Background(), reset, "newhash", now)
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_DeleteExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectExec("DELETE FROM password_reset_tokens").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	repo := NewPasswordResetRepository(mock)
	count, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
