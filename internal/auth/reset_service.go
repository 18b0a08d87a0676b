// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// PasswordResetService issues, verifies, and consumes password reset tokens.
type PasswordResetService struct {
	repo    PasswordResetRepository
	ttl     time.Duration
	metrics *Metrics
	logger  *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService.
// A zero ttl falls back to DefaultResetTokenTTL.
func NewPasswordResetService(repo PasswordResetRepository, ttl time.Duration, metrics *Metrics, logger *slog.Logger) *PasswordResetService {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordResetService{
		repo:    repo,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// Request invalidates every outstanding reset token for the user and creates
// one fresh token. Returns the plaintext value; delivering it to the user
// (email) is the caller's collaborator's job, not this service's.
func (s *PasswordResetService) Request(ctx context.Context, user *User) (string, *PasswordReset, error) {
	invalidated, err := s.repo.InvalidateAllByUser(ctx, user.ID)
	if err != nil {
		return "", nil, oops.Code("RESET_REQUEST_FAILED").
			With("operation", "invalidate prior reset tokens").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	plaintext, hash, err := GenerateOpaqueToken()
	if err != nil {
		return "", nil, oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	reset, err := NewPasswordReset(user.ID, hash, time.Now().Add(s.ttl))
	if err != nil {
		return "", nil, oops.Code("RESET_REQUEST_FAILED").
			With("operation", "build reset token").
			Wrap(err)
	}

	if err := s.repo.Create(ctx, reset); err != nil {
		return "", nil, oops.Code("RESET_REQUEST_FAILED").
			With("operation", "persist reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.Info("password reset token created",
		"user_id", user.ID.String(),
		"invalidated", invalidated,
		"expires_at", reset.ExpiresAt,
	)
	return plaintext, reset, nil
}

// Verify looks up a reset token by its plaintext value and checks it is
// usable. The failure kinds stay distinct internally (not found,
// invalidated, used, expired); collapsing them for presentation is the
// transport layer's concern.
func (s *PasswordResetService) Verify(ctx context.Context, value string) (*PasswordReset, error) {
	if value == "" {
		return nil, oops.Code("RESET_TOKEN_EMPTY").Wrap(ErrNotFound)
	}

	reset, err := s.repo.GetByTokenHash(ctx, HashOpaqueToken(value))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("RESET_TOKEN_NOT_FOUND").Wrap(ErrNotFound)
		}
		return nil, oops.Code("RESET_VERIFY_FAILED").
			With("operation", "get reset token by hash").
			Wrap(err)
	}

	if !reset.Valid {
		return nil, oops.Code("RESET_TOKEN_INVALIDATED").
			With("token_id", reset.ID.String()).
			Wrap(ErrTokenInvalidated)
	}
	if reset.IsUsed() {
		return nil, oops.Code("RESET_TOKEN_USED").
			With("token_id", reset.ID.String()).
			Wrap(ErrTokenUsed)
	}
	if reset.IsExpired() {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").
			With("token_id", reset.ID.String()).
			Wrap(ErrTokenExpired)
	}

	return reset, nil
}

// Consume marks the token used and commits the new password hash in one unit
// of work. Must be called exactly once per successful reset, after the new
// hash has been computed.
func (s *PasswordResetService) Consume(ctx context.Context, reset *PasswordReset, passwordHash string) error {
	if err := s.repo.Consume(ctx, reset, passwordHash, time.Now()); err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume reset token").
			With("token_id", reset.ID.String()).
			Wrap(err)
	}

	s.logger.Info("password reset token consumed",
		"token_id", reset.ID.String(),
		"user_id", reset.UserID.String(),
	)
	return nil
}

// SweepExpired deletes every reset token expired at now and returns the count.
func (s *PasswordResetService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, oops.Code("RESET_SWEEP_FAILED").
			With("operation", "delete expired reset tokens").
			Wrap(err)
	}

	if s.metrics != nil {
		s.metrics.SweptTokens.WithLabelValues(TokenKindReset).Add(float64(count))
	}
	s.logger.Info("swept expired reset tokens", "count", count)
	return count, nil
}
