// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

// Package postgres implements the auth repositories using PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/transer/vortice/internal/auth"
)

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, email, password_hash, first_name, last_name,
	is_active, is_locked, failed_login_attempts, last_login_at, password_changed_at,
	created_at, updated_at`

// Create stores a new user and its role assignments.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name,
			is_active, is_locked, failed_login_attempts, last_login_at, password_changed_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Active,
		user.Locked,
		user.FailedAttempts,
		user.LastLoginAt,
		user.PasswordChangedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_ALREADY_EXISTS").
				With("username", user.Username).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}

	for _, role := range user.Roles {
		_, err = tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		`, user.ID.String(), role.ID.String())
		if err != nil {
			return oops.Code("USER_CREATE_FAILED").
				With("operation", "insert user role").
				With("role", role.Name).
				Wrap(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}

	if err := r.loadRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByLogin retrieves a user matching the value against either the username
// or the email (case-insensitive).
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
	`, login)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_LOGIN_FAILED").
			With("operation", "get user by login").
			Wrap(err)
	}

	if err := r.loadRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if err := r.loadRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ExistsByUsername reports whether a user with the username exists.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))
	`, username).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EXISTS_FAILED").
			With("operation", "check username exists").
			Wrap(err)
	}
	return exists, nil
}

// ExistsByEmail reports whether a user with the email exists.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))
	`, email).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EXISTS_FAILED").
			With("operation", "check email exists").
			Wrap(err)
	}
	return exists, nil
}

// Update updates an existing user's account fields (not roles).
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, first_name = $4, last_name = $5,
			is_active = $6, is_locked = $7, failed_login_attempts = $8,
			last_login_at = $9, password_changed_at = $10, updated_at = $11
		WHERE id = $1
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Active,
		user.Locked,
		user.FailedAttempts,
		user.LastLoginAt,
		user.PasswordChangedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_ALREADY_EXISTS").Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// loadRoles attaches the user's roles and their permissions.
func (r *UserRepository) loadRoles(ctx context.Context, user *auth.User) error {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.is_system_role
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, user.ID.String())
	if err != nil {
		return oops.Code("USER_LOAD_ROLES_FAILED").
			With("operation", "query user roles").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return oops.Code("USER_LOAD_ROLES_FAILED").
			With("operation", "iterate role rows").
			Wrap(err)
	}

	for i := range roles {
		perms, err := loadPermissions(ctx, r.pool, roles[i].ID)
		if err != nil {
			return err
		}
		roles[i].Permissions = perms
	}

	user.Roles = roles
	return nil
}

// scanUser scans a single row into a User. Roles are loaded separately.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *UserRepository) scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr             string
		username          string
		email             string
		passwordHash      string
		firstName         string
		lastName          string
		active            bool
		locked            bool
		failedAttempts    int
		lastLoginAt       *time.Time
		passwordChangedAt *time.Time
		createdAt         time.Time
		updatedAt         time.Time
	)

	err := row.Scan(&idStr, &username, &email, &passwordHash, &firstName, &lastName,
		&active, &locked, &failedAttempts, &lastLoginAt, &passwordChangedAt,
		&createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:                id,
		Username:          username,
		Email:             email,
		PasswordHash:      passwordHash,
		FirstName:         firstName,
		LastName:          lastName,
		Active:            active,
		Locked:            locked,
		FailedAttempts:    failedAttempts,
		LastLoginAt:       lastLoginAt,
		PasswordChangedAt: passwordChangedAt,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}

// isUniqueViolation reports whether err is a postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
