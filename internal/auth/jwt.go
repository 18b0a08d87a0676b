// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultAccessTokenTTL is the access token lifetime unless configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// AccessTokenIssuer signs a verified identity and its role set into a
// short-lived, self-contained bearer token.
type AccessTokenIssuer interface {
	// Sign produces the access token for a user.
	Sign(user *User) (string, error)

	// TTL returns the access token lifetime.
	TTL() time.Duration
}

// AccessClaims are the claims embedded in an access token.
type AccessClaims struct {
	UserID      string   `json:"uid"`
	Authorities []string `json:"-"`
	// Roles is the comma-joined authority list as carried on the wire.
	Roles string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTIssuer implements AccessTokenIssuer with HS256-signed JWTs.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTIssuer creates a JWTIssuer. A zero ttl falls back to
// DefaultAccessTokenTTL.
func NewJWTIssuer(secret string, ttl time.Duration) (*JWTIssuer, error) {
	if secret == "" {
		return nil, oops.Code("JWT_SECRET_EMPTY").Errorf("signing secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &JWTIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the access token lifetime.
func (i *JWTIssuer) TTL() time.Duration {
	return i.ttl
}

// Sign produces a signed access token embedding the username, user ID, and
// the expanded authority set.
func (i *JWTIssuer) Sign(user *User) (string, error) {
	now := time.Now()
	claims := &AccessClaims{
		UserID: user.ID.String(),
		Roles:  strings.Join(Authorities(user.Roles), ","),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", oops.Code("JWT_SIGN_FAILED").
			With("operation", "sign access token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return signed, nil
}

// Parse validates a signed access token and returns its claims.
func (i *JWTIssuer) Parse(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, oops.Code("JWT_BAD_ALG").Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, oops.Code("JWT_PARSE_FAILED").Wrap(err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, oops.Code("JWT_INVALID").Errorf("invalid access token")
	}
	if claims.Roles != "" {
		claims.Authorities = strings.Split(claims.Roles, ",")
	}
	return claims, nil
}

// Compile-time interface check.
var _ AccessTokenIssuer = (*JWTIssuer)(nil)
