// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/transer/vortice/internal/auth"
)

// PasswordResetRepository implements auth.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	pool poolIface
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(pool poolIface) *PasswordResetRepository {
	return &PasswordResetRepository{pool: pool}
}

const resetColumns = `id, user_id, token_hash, expires_at, used_at, is_valid, created_at`

// Create stores a new password reset token.
func (r *PasswordResetRepository) Create(ctx context.Context, reset *auth.PasswordReset) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at,
			used_at, is_valid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		reset.ID.String(),
		reset.UserID.String(),
		reset.TokenHash,
		reset.ExpiresAt,
		reset.UsedAt,
		reset.Valid,
		reset.CreatedAt,
	)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert reset token").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a reset token by its hash.
func (r *PasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+resetColumns+`
		FROM password_reset_tokens
		WHERE token_hash = $1
	`, tokenHash)

	reset, err := scanPasswordReset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_GET_BY_HASH_FAILED").
			With("operation", "get reset token by hash").
			Wrap(err)
	}
	return reset, nil
}

// InvalidateAllByUser clears the valid flag on every reset token for the user.
func (r *PasswordResetRepository) InvalidateAllByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE password_reset_tokens
		SET is_valid = FALSE
		WHERE user_id = $1 AND is_valid = TRUE
	`, userID.String())
	if err != nil {
		return 0, oops.Code("RESET_INVALIDATE_FAILED").
			With("operation", "invalidate reset tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Consume marks the reset token used and commits the user's new password in
// one transaction. The token update is conditional on the token being still
// valid and unused, so a double consume fails rather than silently
// succeeding. The user update also clears the lock and the failure counter:
// a completed reset is proof of ownership and supersedes any lockout.
func (r *PasswordResetRepository) Consume(ctx context.Context, reset *auth.PasswordReset, passwordHash string, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck // no-op after commit

	result, err := tx.Exec(ctx, `
		UPDATE password_reset_tokens
		SET used_at = $2, is_valid = FALSE
		WHERE id = $1 AND is_valid = TRUE AND used_at IS NULL
	`, reset.ID.String(), now)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "mark reset token used").
			With("token_id", reset.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RESET_TOKEN_USED").
			With("token_id", reset.ID.String()).
			Wrap(auth.ErrTokenUsed)
	}

	result, err = tx.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, password_changed_at = $3, is_locked = FALSE,
			failed_login_attempts = 0, updated_at = $3
		WHERE id = $1
	`, reset.UserID.String(), passwordHash, now)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "commit new password").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("user_id", reset.UserID.String()).
			Wrap(auth.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes all reset tokens expired at the given time.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired reset tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanPasswordReset scans a single row into a PasswordReset.
// Callers are responsible for handling pgx.ErrNoRows.
func scanPasswordReset(row pgx.Row) (*auth.PasswordReset, error) {
	var (
		idStr     string
		userIDStr string
		tokenHash string
		expiresAt time.Time
		usedAt    *time.Time
		valid     bool
		createdAt time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &tokenHash, &expiresAt, &usedAt, &valid, &createdAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("RESET_SCAN_FAILED").
			With("operation", "scan reset token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").
			With("operation", "parse reset token id").
			With("id", idStr).
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.PasswordReset{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		UsedAt:    usedAt,
		Valid:     valid,
		CreatedAt: createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
