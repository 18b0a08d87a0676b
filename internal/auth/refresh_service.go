// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshTokenService issues, validates, rotates, and revokes refresh tokens.
type RefreshTokenService struct {
	repo    RefreshTokenRepository
	ttl     time.Duration
	metrics *Metrics
	logger  *slog.Logger
}

// NewRefreshTokenService creates a new RefreshTokenService.
// A zero ttl falls back to DefaultRefreshTokenTTL.
func NewRefreshTokenService(repo RefreshTokenRepository, ttl time.Duration, metrics *Metrics, logger *slog.Logger) *RefreshTokenService {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshTokenService{
		repo:    repo,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// TTL returns the configured refresh token lifetime.
func (s *RefreshTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates and persists a fresh refresh token for the user.
// Returns the plaintext value (handed to the client exactly once) and the
// stored token.
func (s *RefreshTokenService) Issue(ctx context.Context, userID ulid.ULID) (string, *RefreshToken, error) {
	plaintext, hash, err := GenerateOpaqueToken()
	if err != nil {
		return "", nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "generate refresh token").
			Wrap(err)
	}

	token, err := NewRefreshToken(userID, hash, time.Now().Add(s.ttl))
	if err != nil {
		return "", nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "build refresh token").
			Wrap(err)
	}

	if err := s.repo.Create(ctx, token); err != nil {
		return "", nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "persist refresh token").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.logger.Debug("refresh token issued", "user_id", userID.String(), "expires_at", token.ExpiresAt)
	return plaintext, token, nil
}

// Find looks up a refresh token by its plaintext value.
func (s *RefreshTokenService) Find(ctx context.Context, value string) (*RefreshToken, error) {
	if value == "" {
		return nil, oops.Code("TOKEN_EMPTY").Wrap(ErrNotFound)
	}

	token, err := s.repo.GetByTokenHash(ctx, HashOpaqueToken(value))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(ErrNotFound)
		}
		return nil, oops.Code("TOKEN_FIND_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return token, nil
}

// Validate checks that a token is usable. Revoked tokens are reported but
// retained so the rotation chain stays inspectable; expired tokens are
// deleted before the error is returned, so a second presentation reports
// ErrNotFound rather than ErrTokenExpired.
func (s *RefreshTokenService) Validate(ctx context.Context, token *RefreshToken) (*RefreshToken, error) {
	if token.Revoked {
		s.logger.Warn("revoked refresh token presented",
			"token_id", token.ID.String(),
			"user_id", token.UserID.String(),
		)
		return nil, oops.Code("TOKEN_REVOKED").
			With("token_id", token.ID.String()).
			Wrap(ErrTokenRevoked)
	}

	if token.IsExpired() {
		if err := s.repo.Delete(ctx, token.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("TOKEN_DELETE_FAILED").
				With("operation", "delete expired refresh token").
				With("token_id", token.ID.String()).
				Wrap(err)
		}
		return nil, oops.Code("TOKEN_EXPIRED").
			With("token_id", token.ID.String()).
			Wrap(ErrTokenExpired)
	}

	return token, nil
}

// Rotate issues a successor token and revokes old in one atomic step. The
// conditional revoke makes concurrent rotations on the same token
// deterministic: exactly one caller wins, the loser sees ErrTokenRevoked.
func (s *RefreshTokenService) Rotate(ctx context.Context, old *RefreshToken) (string, *RefreshToken, error) {
	plaintext, hash, err := GenerateOpaqueToken()
	if err != nil {
		return "", nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "generate successor token").
			Wrap(err)
	}

	successor, err := NewRefreshToken(old.UserID, hash, time.Now().Add(s.ttl))
	if err != nil {
		return "", nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "build successor token").
			Wrap(err)
	}

	if err := s.repo.Rotate(ctx, old.TokenHash, successor, time.Now()); err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			s.logger.Warn("lost refresh token rotation race",
				"token_id", old.ID.String(),
				"user_id", old.UserID.String(),
			)
			return "", nil, oops.Code("TOKEN_REVOKED").
				With("token_id", old.ID.String()).
				Wrap(ErrTokenRevoked)
		}
		return "", nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "rotate refresh token").
			With("token_id", old.ID.String()).
			Wrap(err)
	}

	if s.metrics != nil {
		s.metrics.Rotations.Inc()
		s.metrics.Revocations.WithLabelValues(RevokeCauseRotation).Inc()
	}
	s.logger.Debug("refresh token rotated",
		"user_id", old.UserID.String(),
		"old_token_id", old.ID.String(),
		"new_token_id", successor.ID.String(),
	)
	return plaintext, successor, nil
}

// Revoke marks the token with the given plaintext value revoked. Revoking a
// token that does not exist is a no-op: logout is idempotent.
func (s *RefreshTokenService) Revoke(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}

	err := s.repo.Revoke(ctx, HashOpaqueToken(value), time.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}

	if s.metrics != nil {
		s.metrics.Revocations.WithLabelValues(RevokeCauseLogout).Inc()
	}
	return nil
}

// RevokeAll revokes every outstanding token for the user and returns the
// count. Used on password change and administrative force-logout.
func (s *RefreshTokenService) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	count, err := s.repo.RevokeAllByUser(ctx, userID, time.Now())
	if err != nil {
		return 0, oops.Code("TOKEN_REVOKE_ALL_FAILED").
			With("operation", "revoke all refresh tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if s.metrics != nil {
		s.metrics.Revocations.WithLabelValues(RevokeCausePasswordReset).Add(float64(count))
	}
	s.logger.Info("revoked all refresh tokens", "user_id", userID.String(), "count", count)
	return count, nil
}

// SweepExpired deletes every token expired at now and returns the count.
// Run periodically as a maintenance task independent of request paths; it
// cannot race live rotations because it only touches already-expired rows.
func (s *RefreshTokenService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, oops.Code("TOKEN_SWEEP_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}

	if s.metrics != nil {
		s.metrics.SweptTokens.WithLabelValues(TokenKindRefresh).Add(float64(count))
	}
	s.logger.Info("swept expired refresh tokens", "count", count)
	return count, nil
}
