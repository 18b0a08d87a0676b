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

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	pool poolIface
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(pool poolIface) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

const refreshColumns = `id, user_id, token_hash, expires_at, revoked, revoked_at,
	replaced_by_token, created_at`

// Create stores a new refresh token.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked,
			revoked_at, replaced_by_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		token.ExpiresAt,
		token.Revoked,
		token.RevokedAt,
		token.ReplacedBy,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert refresh token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a token by its hash.
func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_BY_HASH_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return token, nil
}

// GetByUser retrieves all tokens for a user, newest first.
func (r *RefreshTokenRepository) GetByUser(ctx context.Context, userID ulid.ULID) ([]*auth.RefreshToken, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("TOKEN_GET_BY_USER_FAILED").
			With("operation", "get refresh tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var tokens []*auth.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, oops.Code("TOKEN_SCAN_FAILED").
				With("operation", "scan refresh token row").
				Wrap(err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("TOKEN_ROWS_ERROR").
			With("operation", "iterate refresh token rows").
			Wrap(err)
	}

	return tokens, nil
}

// Rotate atomically revokes the token with oldHash and inserts successor.
// The revocation is a conditional update on revoked = FALSE, which makes
// concurrent rotations of the same token deterministic: the loser's update
// affects zero rows and the whole transaction rolls back with ErrTokenRevoked.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, successor *auth.RefreshToken, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck // no-op after commit

	result, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2, replaced_by_token = $3
		WHERE token_hash = $1 AND revoked = FALSE
	`, oldHash, now, successor.TokenHash)
	if err != nil {
		return oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "revoke old token").
			Wrap(err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE token_hash = $1)
		`, oldHash).Scan(&exists); err != nil {
			return oops.Code("TOKEN_ROTATE_FAILED").
				With("operation", "check old token").
				Wrap(err)
		}
		if !exists {
			return oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		return oops.Code("TOKEN_REVOKED").Wrap(auth.ErrTokenRevoked)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked,
			revoked_at, replaced_by_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		successor.ID.String(),
		successor.UserID.String(),
		successor.TokenHash,
		successor.ExpiresAt,
		successor.Revoked,
		successor.RevokedAt,
		successor.ReplacedBy,
		successor.CreatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "insert successor token").
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}
	return nil
}

// Revoke marks a single token revoked. Revoking an already-revoked token is
// not an error; revoking a missing token returns ErrNotFound.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash, now)
	if err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE token_hash = $1)
		`, tokenHash).Scan(&exists); err != nil {
			return oops.Code("TOKEN_REVOKE_FAILED").
				With("operation", "check refresh token").
				Wrap(err)
		}
		if !exists {
			return oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
	}
	return nil
}

// RevokeAllByUser marks every non-revoked token for the user revoked.
func (r *RefreshTokenRepository) RevokeAllByUser(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND revoked = FALSE
	`, userID.String(), now)
	if err != nil {
		return 0, oops.Code("TOKEN_REVOKE_ALL_FAILED").
			With("operation", "revoke refresh tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Delete removes a token.
func (r *RefreshTokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("TOKEN_DELETE_FAILED").
			With("operation", "delete refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes all tokens expired at the given time.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanRefreshToken scans a single row into a RefreshToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		idStr      string
		userIDStr  string
		tokenHash  string
		expiresAt  time.Time
		revoked    bool
		revokedAt  *time.Time
		replacedBy *string
		createdAt  time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &tokenHash, &expiresAt, &revoked, &revokedAt, &replacedBy, &createdAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "scan refresh token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").
			With("operation", "parse token id").
			With("id", idStr).
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.RefreshToken{
		ID:         id,
		UserID:     userID,
		TokenHash:  tokenHash,
		ExpiresAt:  expiresAt,
		Revoked:    revoked,
		RevokedAt:  revokedAt,
		ReplacedBy: replacedBy,
		CreatedAt:  createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
