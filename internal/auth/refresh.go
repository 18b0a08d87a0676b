// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultRefreshTokenTTL is the refresh token lifetime unless configured.
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// RefreshToken is a long-lived opaque credential exchanged for fresh access
// tokens. Rotation links tokens into a revocation chain through ReplacedBy.
type RefreshToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	// ReplacedBy holds the hash of the successor token set at rotation time.
	ReplacedBy *string
	CreatedAt  time.Time
}

// NewRefreshToken creates a validated RefreshToken instance.
func NewRefreshToken(userID ulid.ULID, tokenHash string, expiresAt time.Time) (*RefreshToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &RefreshToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpired returns true if the token has expired.
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsExpiredAt returns true if the token would be expired at the given time.
// Useful for testing with deterministic time values.
func (t *RefreshToken) IsExpiredAt(at time.Time) bool {
	return at.After(t.ExpiresAt)
}

// Usable reports whether the token can still be presented.
func (t *RefreshToken) Usable() bool {
	return !t.Revoked && !t.IsExpired()
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// Create stores a new refresh token.
	Create(ctx context.Context, token *RefreshToken) error

	// GetByTokenHash retrieves a token by its hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// GetByUser retrieves all tokens for a user, newest first.
	GetByUser(ctx context.Context, userID ulid.ULID) ([]*RefreshToken, error)

	// Rotate atomically revokes the token with oldHash, records successor's
	// hash as its replacement, and inserts successor. The revocation is
	// conditional on the old token being unrevoked; if a concurrent
	// rotation already won, Rotate returns ErrTokenRevoked and inserts
	// nothing. Returns ErrNotFound if no token has oldHash.
	Rotate(ctx context.Context, oldHash string, successor *RefreshToken, now time.Time) error

	// Revoke marks a single token revoked.
	// Returns ErrNotFound if no token has the hash.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeAllByUser marks every non-revoked token for the user revoked
	// and returns the number of tokens affected.
	RevokeAllByUser(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error)

	// Delete removes a token.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteExpired removes all tokens expired at the given time and
	// returns the count of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
