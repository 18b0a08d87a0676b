// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package auth

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// The fakes below back the service tests with real cross-call state: a
// counter incremented by one Login call must be visible to the next, and a
// rotation must actually revoke the old token. Returned entities are copies,
// so mutations only persist through Update, mirroring the repository
// contract.

type memUserRepo struct {
	users map[string]*User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*User)}
}

func cloneUser(u *User) *User {
	c := *u
	c.Roles = append([]Role(nil), u.Roles...)
	return &c
}

func (r *memUserRepo) Create(_ context.Context, user *User) error {
	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, user.Username) ||
			strings.EqualFold(existing.Email, user.Email) {
			return ErrConflict
		}
	}
	r.users[user.ID.String()] = cloneUser(user)
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id ulid.ULID) (*User, error) {
	u, ok := r.users[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *memUserRepo) GetByLogin(_ context.Context, login string) (*User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Username, login) || strings.EqualFold(u.Email, login) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUserRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUserRepo) Update(_ context.Context, user *User) error {
	if _, ok := r.users[user.ID.String()]; !ok {
		return ErrNotFound
	}
	r.users[user.ID.String()] = cloneUser(user)
	return nil
}

type memRoleRepo struct {
	roles map[string]*Role
}

func newMemRoleRepo() *memRoleRepo {
	return &memRoleRepo{roles: make(map[string]*Role)}
}

func (r *memRoleRepo) GetByName(_ context.Context, name string) (*Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return nil, ErrNotFound
	}
	c := *role
	return &c, nil
}

func (r *memRoleRepo) Create(_ context.Context, role *Role) error {
	if _, ok := r.roles[role.Name]; ok {
		return ErrConflict
	}
	c := *role
	r.roles[role.Name] = &c
	return nil
}

type memRefreshRepo struct {
	tokens map[string]*RefreshToken // keyed by token hash
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{tokens: make(map[string]*RefreshToken)}
}

func cloneRefreshToken(t *RefreshToken) *RefreshToken {
	c := *t
	return &c
}

func (r *memRefreshRepo) Create(_ context.Context, token *RefreshToken) error {
	r.tokens[token.TokenHash] = cloneRefreshToken(token)
	return nil
}

func (r *memRefreshRepo) GetByTokenHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	t, ok := r.tokens[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRefreshToken(t), nil
}

func (r *memRefreshRepo) GetByUser(_ context.Context, userID ulid.ULID) ([]*RefreshToken, error) {
	var out []*RefreshToken
	for _, t := range r.tokens {
		if t.UserID == userID {
			out = append(out, cloneRefreshToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRefreshRepo) Rotate(_ context.Context, oldHash string, successor *RefreshToken, now time.Time) error {
	old, ok := r.tokens[oldHash]
	if !ok {
		return ErrNotFound
	}
	if old.Revoked {
		return ErrTokenRevoked
	}
	old.Revoked = true
	old.RevokedAt = &now
	replacement := successor.TokenHash
	old.ReplacedBy = &replacement
	r.tokens[successor.TokenHash] = cloneRefreshToken(successor)
	return nil
}

func (r *memRefreshRepo) Revoke(_ context.Context, tokenHash string, now time.Time) error {
	t, ok := r.tokens[tokenHash]
	if !ok {
		return ErrNotFound
	}
	if !t.Revoked {
		t.Revoked = true
		t.RevokedAt = &now
	}
	return nil
}

func (r *memRefreshRepo) RevokeAllByUser(_ context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	var count int64
	for _, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &now
			count++
		}
	}
	return count, nil
}

func (r *memRefreshRepo) Delete(_ context.Context, id ulid.ULID) error {
	for hash, t := range r.tokens {
		if t.ID == id {
			delete(r.tokens, hash)
			return nil
		}
	}
	return ErrNotFound
}

func (r *memRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var count int64
	for hash, t := range r.tokens {
		if now.After(t.ExpiresAt) {
			delete(r.tokens, hash)
			count++
		}
	}
	return count, nil
}

// memResetRepo holds a reference to the user repo because Consume commits the
// password change and the token consumption as one unit.
type memResetRepo struct {
	resets map[string]*PasswordReset // keyed by token hash
	users  *memUserRepo
}

func newMemResetRepo(users *memUserRepo) *memResetRepo {
	return &memResetRepo{resets: make(map[string]*PasswordReset), users: users}
}

func clonePasswordReset(p *PasswordReset) *PasswordReset {
	c := *p
	return &c
}

func (r *memResetRepo) Create(_ context.Context, reset *PasswordReset) error {
	r.resets[reset.TokenHash] = clonePasswordReset(reset)
	return nil
}

func (r *memResetRepo) GetByTokenHash(_ context.Context, tokenHash string) (*PasswordReset, error) {
	p, ok := r.resets[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePasswordReset(p), nil
}

func (r *memResetRepo) InvalidateAllByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	var count int64
	for _, p := range r.resets {
		if p.UserID == userID && p.Valid {
			p.Valid = false
			count++
		}
	}
	return count, nil
}

func (r *memResetRepo) Consume(_ context.Context, reset *PasswordReset, passwordHash string, now time.Time) error {
	stored, ok := r.resets[reset.TokenHash]
	if !ok || !stored.Valid || stored.UsedAt != nil {
		return ErrTokenUsed
	}
	user, ok := r.users.users[reset.UserID.String()]
	if !ok {
		return ErrNotFound
	}
	stored.UsedAt = &now
	stored.Valid = false
	user.PasswordHash = passwordHash
	user.PasswordChangedAt = &now
	user.Locked = false
	user.FailedAttempts = 0
	user.UpdatedAt = now
	return nil
}

func (r *memResetRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var count int64
	for hash, p := range r.resets {
		if now.After(p.ExpiresAt) {
			delete(r.resets, hash)
			count++
		}
	}
	return count, nil
}

// fakeHasher trades argon2 for a transparent encoding so tests stay fast,
// and counts Verify calls so the timing-equalization path is observable.
type fakeHasher struct {
	verifyCalls int
}

func (h *fakeHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	return "fake:" + password, nil
}

func (h *fakeHasher) Verify(password, hash string) (bool, error) {
	h.verifyCalls++
	return hash == "fake:"+password, nil
}

var (
	_ UserRepository          = (*memUserRepo)(nil)
	_ RoleRepository          = (*memRoleRepo)(nil)
	_ RefreshTokenRepository  = (*memRefreshRepo)(nil)
	_ PasswordResetRepository = (*memResetRepo)(nil)
	_ PasswordHasher          = (*fakeHasher)(nil)
)
