// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultResetTokenTTL is the password reset token lifetime unless configured.
const DefaultResetTokenTTL = time.Hour

// PasswordReset is a single-use, short-lived credential authorizing a
// password change without the old password. At most one usable reset exists
// per user at any time: requesting a new one invalidates all prior ones.
type PasswordReset struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	Valid     bool
	CreatedAt time.Time
}

// NewPasswordReset creates a validated PasswordReset instance.
func NewPasswordReset(userID ulid.ULID, tokenHash string, expiresAt time.Time) (*PasswordReset, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &PasswordReset{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		Valid:     true,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpired returns true if the reset token has expired.
func (r *PasswordReset) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// IsUsed returns true if the reset token was already consumed.
func (r *PasswordReset) IsUsed() bool {
	return r.UsedAt != nil
}

// CanBeUsed reports whether the token is still usable.
func (r *PasswordReset) CanBeUsed() bool {
	return r.Valid && !r.IsUsed() && !r.IsExpired()
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	// Create stores a new password reset token.
	Create(ctx context.Context, reset *PasswordReset) error

	// GetByTokenHash retrieves a reset token by its hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// InvalidateAllByUser clears the valid flag on every reset token for
	// the user and returns the number of tokens affected.
	InvalidateAllByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// Consume marks the reset token used and commits the user's new
	// password hash (clearing the lock and failure counter) in a single
	// transaction, so a crash cannot leave a committed password change
	// with a live reset token.
	Consume(ctx context.Context, reset *PasswordReset, passwordHash string, now time.Time) error

	// DeleteExpired removes all reset tokens expired at the given time and
	// returns the count of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
