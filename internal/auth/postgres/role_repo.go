// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/transer/vortice/internal/auth"
)

// RoleRepository implements auth.RoleRepository using PostgreSQL.
type RoleRepository struct {
	pool poolIface
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(pool poolIface) *RoleRepository {
	return &RoleRepository{pool: pool}
}

// GetByName retrieves a role with its permissions.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*auth.Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, is_system_role
		FROM roles
		WHERE name = $1
	`, name)

	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ROLE_NOT_FOUND").
			With("name", name).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ROLE_GET_FAILED").
			With("operation", "get role by name").
			With("name", name).
			Wrap(err)
	}

	perms, err := loadPermissions(ctx, r.pool, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms

	return role, nil
}

// Create stores a new role.
func (r *RoleRepository) Create(ctx context.Context, role *auth.Role) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO roles (id, name, description, is_system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`,
		role.ID.String(),
		role.Name,
		role.Description,
		role.System,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("ROLE_ALREADY_EXISTS").
				With("name", role.Name).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("ROLE_CREATE_FAILED").
			With("operation", "insert role").
			With("name", role.Name).
			Wrap(err)
	}
	return nil
}

// scanRole scans a single row into a Role without its permissions.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRole(row pgx.Row) (*auth.Role, error) {
	var (
		idStr       string
		name        string
		description string
		system      bool
	)

	err := row.Scan(&idStr, &name, &description, &system)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ROLE_SCAN_FAILED").
			With("operation", "scan role").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ROLE_INVALID_ID").
			With("operation", "parse role id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.Role{
		ID:          id,
		Name:        name,
		Description: description,
		System:      system,
	}, nil
}

// loadPermissions fetches the permission set of a role.
func loadPermissions(ctx context.Context, pool poolIface, roleID ulid.ULID) ([]auth.Permission, error) {
	rows, err := pool.Query(ctx, `
		SELECT p.id, p.name, p.resource, p.action, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`, roleID.String())
	if err != nil {
		return nil, oops.Code("ROLE_LOAD_PERMISSIONS_FAILED").
			With("operation", "query role permissions").
			With("role_id", roleID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var (
			idStr       string
			name        string
			resource    string
			action      string
			description string
		)
		if err := rows.Scan(&idStr, &name, &resource, &action, &description); err != nil {
			return nil, oops.Code("PERMISSION_SCAN_FAILED").
				With("operation", "scan permission row").
				Wrap(err)
		}

		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("PERMISSION_INVALID_ID").
				With("operation", "parse permission id").
				With("id", idStr).
				Wrap(err)
		}

		perms = append(perms, auth.Permission{
			ID:          id,
			Name:        name,
			Resource:    resource,
			Action:      action,
			Description: description,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ROLE_LOAD_PERMISSIONS_FAILED").
			With("operation", "iterate permission rows").
			Wrap(err)
	}

	return perms, nil
}

// Compile-time interface check.
var _ auth.RoleRepository = (*RoleRepository)(nil)
