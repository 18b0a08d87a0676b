// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

// Package auth implements the credential and token lifecycle for Vortice.
//
// # Domain Types
//
// Domain types (User, RefreshToken, PasswordReset) should be created using
// their respective constructors:
//   - NewRefreshToken - creates a RefreshToken with validated owner and expiry
//   - NewPasswordReset - creates a PasswordReset with validated owner and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - login, registration, refresh, logout, password reset use cases
//   - RefreshTokenService - refresh token issue, validation, rotation, revocation
//   - PasswordResetService - reset token issue, verification, consumption
//
// Token values are opaque 32-byte random strings; only their SHA256 hashes
// are stored. Refresh tokens rotate on every use, forming a revocation chain
// through ReplacedBy that makes replay of a rotated token detectable.
package auth
