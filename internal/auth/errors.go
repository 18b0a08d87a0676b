// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package auth

import "errors"

// Sentinel errors for the authentication domain. Services wrap these with
// oops codes at the raise site; callers match with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned for an unknown login or a wrong
	// password. The two causes are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled is returned when the account is deactivated.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrAccountLocked is returned when the account is locked after too
	// many failed login attempts.
	ErrAccountLocked = errors.New("account locked")

	// ErrTokenRevoked is returned when a refresh token has been revoked,
	// including by a previous rotation.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenUsed is returned when a reset token was already consumed.
	ErrTokenUsed = errors.New("token already used")

	// ErrTokenInvalidated is returned when a reset token was superseded by
	// a newer one.
	ErrTokenInvalidated = errors.New("token invalidated")

	// ErrValidation is returned for malformed request input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a username or email is already taken.
	ErrConflict = errors.New("already exists")
)
