// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package auth

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultLockoutThreshold is the number of consecutive failed logins that
// locks an account when no threshold is configured. The lock is sticky: only
// a completed password reset (or an administrative action) clears it.
const DefaultLockoutThreshold = 5

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, underscores, and dots
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.]*$`)

// emailRegex is a light shape check; deliverability is the mailer's problem.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User represents a user account.
type User struct {
	ID                ulid.ULID
	Username          string
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	Active            bool
	Locked            bool
	FailedAttempts    int
	LastLoginAt       *time.Time
	PasswordChangedAt *time.Time
	Roles             []Role
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Role groups permissions and is assigned to users. Read-only for this
// subsystem; role management lives elsewhere.
type Role struct {
	ID          ulid.ULID
	Name        string
	Description string
	System      bool
	Permissions []Permission
}

// Permission names an action on a resource, e.g. WORK_ORDER:CREATE.
type Permission struct {
	ID          ulid.ULID
	Name        string
	Resource    string
	Action      string
	Description string
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// CanAuthenticate reports whether login is permitted for this account.
func (u *User) CanAuthenticate() bool {
	return u.Active && !u.Locked
}

// RecordFailure increments the failure counter and locks the account once the
// threshold is reached. Failures past the threshold keep the account locked
// without further side effects. A non-positive threshold falls back to
// DefaultLockoutThreshold.
func (u *User) RecordFailure(threshold int) {
	if threshold < 1 {
		threshold = DefaultLockoutThreshold
	}
	u.FailedAttempts++
	if u.FailedAttempts >= threshold {
		u.Locked = true
	}
	u.UpdatedAt = time.Now()
}

// RecordSuccess resets the failure counter and stamps the login time.
func (u *User) RecordSuccess() {
	u.FailedAttempts = 0
	u.LastLoginAt = ptrTime(time.Now())
	u.UpdatedAt = time.Now()
}

// HasRole reports whether the user carries the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Authorities expands a role set into a flat, sorted, deduplicated authority
// list: one ROLE_-prefixed entry per role plus the name of every permission
// the roles carry. Pure data transformation; the access token issuer embeds
// the result as claims.
func Authorities(roles []Role) []string {
	seen := make(map[string]struct{})
	for _, role := range roles {
		seen["ROLE_"+role.Name] = struct{}{}
		for _, perm := range role.Permissions {
			seen[perm.Name] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ValidateUsername validates a username against account rules.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Wrap(ErrValidation)
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Wrap(ErrValidation)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Wrap(ErrValidation)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").Wrap(ErrValidation)
	}
	return nil
}

// ValidateEmail validates the shape of an email address.
func ValidateEmail(email string) error {
	if email == "" || len(email) > 100 || !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Wrap(ErrValidation)
	}
	return nil
}

func ptrTime(t time.Time) *time.Time { return &t }

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user and its role assignments.
	// Returns ErrConflict if the username or email is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByLogin retrieves a user matching the value against either the
	// username or the email (case-insensitive).
	GetByLogin(ctx context.Context, login string) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// ExistsByUsername reports whether a user with the username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByEmail reports whether a user with the email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Update updates an existing user's account fields (not roles).
	Update(ctx context.Context, user *User) error
}

// RoleRepository manages role lookups for account creation.
type RoleRepository interface {
	// GetByName retrieves a role with its permissions.
	GetByName(ctx context.Context, name string) (*Role, error)

	// Create stores a new role.
	Create(ctx context.Context, role *Role) error
}
