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

// DefaultRoleName is the role assigned to newly registered users.
const DefaultRoleName = "USER"

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service composes the credential store, password hasher, token services, and
// access token issuer into the login, registration, refresh, logout, and
// password reset use cases.
type Service struct {
	users   UserRepository
	roles   RoleRepository
	hasher  PasswordHasher
	refresh *RefreshTokenService
	resets  *PasswordResetService
	issuer  AccessTokenIssuer

	// lockoutThreshold is the failed-login count that locks an account.
	lockoutThreshold int

	metrics *Metrics
	logger  *slog.Logger
}

// NewService creates a new authentication Service.
// A non-positive lockoutThreshold falls back to DefaultLockoutThreshold.
func NewService(
	users UserRepository,
	roles RoleRepository,
	hasher PasswordHasher,
	refresh *RefreshTokenService,
	resets *PasswordResetService,
	issuer AccessTokenIssuer,
	lockoutThreshold int,
	metrics *Metrics,
	logger *slog.Logger,
) *Service {
	if lockoutThreshold < 1 {
		lockoutThreshold = DefaultLockoutThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:            users,
		roles:            roles,
		hasher:           hasher,
		refresh:          refresh,
		resets:           resets,
		issuer:           issuer,
		lockoutThreshold: lockoutThreshold,
		metrics:          metrics,
		logger:           logger,
	}
}

// AuthResult is the success payload of login, registration, and refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	User         *User
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Login authenticates a user by username or email and issues an access token
// and a refresh token.
//
// Unknown logins and wrong passwords produce the same ErrInvalidCredentials;
// unknown users still pay for one password verification so response time does
// not reveal account existence. A wrong password for an existing account
// increments the failure counter before the error is returned, locking the
// account at the threshold. Account-state refusals (disabled, locked) are
// checked before the password and never touch the counter.
func (s *Service) Login(ctx context.Context, login, password string) (*AuthResult, error) {
	user, lookupErr := s.users.GetByLogin(ctx, login)
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by login").
				Wrap(lookupErr)
		}

		// Burn a verification against the dummy hash so missing accounts
		// cost the same as wrong passwords.
		_, _ = s.hasher.Verify(password, dummyPasswordHash) //nolint:errcheck // timing equalization only
		s.countLogin(LoginOutcomeInvalidCredentials)
		s.logger.Warn("login failed: unknown account", "login", login)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if !user.Active {
		s.countLogin(LoginOutcomeDisabled)
		s.logger.Warn("login refused: account disabled", "user_id", user.ID.String())
		return nil, oops.Code("AUTH_ACCOUNT_DISABLED").
			With("user_id", user.ID.String()).
			Wrap(ErrAccountDisabled)
	}
	if user.Locked {
		s.countLogin(LoginOutcomeLocked)
		s.logger.Warn("login refused: account locked", "user_id", user.ID.String())
		return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("user_id", user.ID.String()).
			Wrap(ErrAccountLocked)
	}

	valid, verifyErr := s.hasher.Verify(password, user.PasswordHash)
	if verifyErr != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !valid {
		user.RecordFailure(s.lockoutThreshold)
		if err := s.users.Update(ctx, user); err != nil {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "persist failed attempt").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		if user.Locked {
			if s.metrics != nil {
				s.metrics.Lockouts.Inc()
			}
			s.logger.Warn("account locked after repeated failures",
				"user_id", user.ID.String(),
				"failed_attempts", user.FailedAttempts,
			)
		}
		s.countLogin(LoginOutcomeInvalidCredentials)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	user.RecordSuccess()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "persist successful login").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.countLogin(LoginOutcomeSuccess)
	s.logger.Info("login succeeded", "user_id", user.ID.String(), "username", user.Username)
	return result, nil
}

// Register creates a new account with the default role and logs it in.
// Returns ErrConflict if the username or email is already taken.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if err := ValidateUsername(input.Username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	if input.Password == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD").Wrap(ErrValidation)
	}
	if input.FirstName == "" || input.LastName == "" {
		return nil, oops.Code("AUTH_INVALID_NAME").Wrap(ErrValidation)
	}

	if taken, err := s.users.ExistsByUsername(ctx, input.Username); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check username").
			Wrap(err)
	} else if taken {
		return nil, oops.Code("AUTH_USERNAME_TAKEN").Wrap(ErrConflict)
	}

	if taken, err := s.users.ExistsByEmail(ctx, input.Email); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check email").
			Wrap(err)
	} else if taken {
		return nil, oops.Code("AUTH_EMAIL_TAKEN").Wrap(ErrConflict)
	}

	role, err := s.defaultRole(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := time.Now()
	user := &User{
		ID:                ulid.Make(),
		Username:          input.Username,
		Email:             input.Email,
		PasswordHash:      hash,
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		Active:            true,
		PasswordChangedAt: &now,
		Roles:             []Role{*role},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// The repository maps unique violations to ErrConflict, closing the
		// race between the existence checks and the insert.
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code("AUTH_ACCOUNT_TAKEN").Wrap(ErrConflict)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "persist user").
			Wrap(err)
	}

	s.logger.Info("user registered", "user_id", user.ID.String(), "username", user.Username)
	return s.issueTokens(ctx, user)
}

// Refresh exchanges a usable refresh token for a fresh access token,
// rotating the refresh token unconditionally. Presenting an already-rotated
// token fails with ErrTokenRevoked; that is the replay signal.
func (s *Service) Refresh(ctx context.Context, refreshTokenValue string) (*AuthResult, error) {
	token, err := s.refresh.Find(ctx, refreshTokenValue)
	if err != nil {
		return nil, err
	}

	if _, err := s.refresh.Validate(ctx, token); err != nil {
		return nil, err
	}

	// The account may have been disabled or locked after the token was issued.
	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get token owner").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	if !user.Active {
		return nil, oops.Code("AUTH_ACCOUNT_DISABLED").
			With("user_id", user.ID.String()).
			Wrap(ErrAccountDisabled)
	}
	if user.Locked {
		return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("user_id", user.ID.String()).
			Wrap(ErrAccountLocked)
	}

	plaintext, _, err := s.refresh.Rotate(ctx, token)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.issuer.Sign(user)
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "sign access token").
			Wrap(err)
	}

	s.logger.Info("access token refreshed", "user_id", user.ID.String())
	return s.buildResult(accessToken, plaintext, user), nil
}

// Logout revokes the presented refresh token. Logging out with an unknown or
// already-revoked token is a no-op.
func (s *Service) Logout(ctx context.Context, refreshTokenValue string) error {
	if err := s.refresh.Revoke(ctx, refreshTokenValue); err != nil {
		return err
	}
	s.logger.Info("logout processed")
	return nil
}

// ForgotPassword starts a password reset for the account behind the email.
// Returns the plaintext reset token for delivery by the mailer.
//
// The error for an unregistered email does not confirm or deny registration;
// the precise cause is only logged.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("password reset requested for unregistered email")
			return "", oops.Code("AUTH_RESET_UNAVAILABLE").
				Wrap(ErrNotFound)
		}
		return "", oops.Code("AUTH_RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if !user.Active {
		s.logger.Warn("password reset requested for disabled account", "user_id", user.ID.String())
		return "", oops.Code("AUTH_ACCOUNT_DISABLED").
			With("user_id", user.ID.String()).
			Wrap(ErrAccountDisabled)
	}

	plaintext, _, err := s.resets.Request(ctx, user)
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

// ResetPassword completes a password reset: verifies the token, commits the
// new password and the token consumption in one unit of work (unlocking the
// account and zeroing the failure counter - a successful reset is proof of
// ownership), then revokes every outstanding refresh token for the user.
func (s *Service) ResetPassword(ctx context.Context, tokenValue, newPassword, confirmPassword string) error {
	if newPassword == "" {
		return oops.Code("AUTH_INVALID_PASSWORD").Wrap(ErrValidation)
	}
	if newPassword != confirmPassword {
		return oops.Code("AUTH_PASSWORD_MISMATCH").Wrap(ErrValidation)
	}

	reset, err := s.resets.Verify(ctx, tokenValue)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	if err := s.resets.Consume(ctx, reset, hash); err != nil {
		return err
	}

	revoked, err := s.refresh.RevokeAll(ctx, reset.UserID)
	if err != nil {
		return err
	}

	s.logger.Info("password reset completed",
		"user_id", reset.UserID.String(),
		"sessions_revoked", revoked,
	)
	return nil
}

// issueTokens creates the refresh token and signs the access token for a
// freshly authenticated user.
func (s *Service) issueTokens(ctx context.Context, user *User) (*AuthResult, error) {
	refreshPlain, _, err := s.refresh.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.issuer.Sign(user)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "sign access token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return s.buildResult(accessToken, refreshPlain, user), nil
}

func (s *Service) buildResult(accessToken, refreshToken string, user *User) *AuthResult {
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.issuer.TTL().Seconds()),
		User:         user,
	}
}

// defaultRole fetches the default role, creating it on first use.
func (s *Service) defaultRole(ctx context.Context) (*Role, error) {
	role, err := s.roles.GetByName(ctx, DefaultRoleName)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get default role").
			Wrap(err)
	}

	role = &Role{
		ID:          ulid.Make(),
		Name:        DefaultRoleName,
		Description: "Standard user",
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create default role").
			Wrap(err)
	}
	return role, nil
}

func (s *Service) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(outcome).Inc()
	}
}
