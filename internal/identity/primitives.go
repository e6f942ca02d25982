// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package identity

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"quillpress/internal/models"
)

// Hasher turns passwords into one-way hashes and checks them.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// TokenSigner issues and verifies session tokens.
type TokenSigner interface {
	Issue(c Claims) (string, error)
	Parse(token string) (*Claims, error)
}

// Revoker records tokens that were invalidated before their expiry.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Clock returns the current time.
type Clock func() time.Time

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 12

// bcryptMaxInput is the longest input bcrypt accepts.
const bcryptMaxInput = 72

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	Cost int
}

// bcryptInput maps passwords longer than bcrypt's input limit to a fixed
// length digest so every byte of the password counts.
func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// Hash returns the bcrypt hash of password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify returns nil if password matches hash.
func (h BcryptHasher) Verify(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password))
}

// Claims defines the JWT claims carried by a session token. Subject holds
// the user ID and ID the token ID used for revocation.
type Claims struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// JWTSigner signs tokens with HMAC-SHA256.
type JWTSigner struct {
	secret []byte
	now    Clock
}

// NewJWTSigner returns a signer using secret as the HMAC key.
func NewJWTSigner(secret []byte) *JWTSigner {
	return &JWTSigner{secret: secret, now: time.Now}
}

// WithClock returns a copy of the signer validating expiry against now.
func (s *JWTSigner) WithClock(now Clock) *JWTSigner {
	return &JWTSigner{secret: s.secret, now: now}
}

// Issue signs the claims.
func (s *JWTSigner) Issue(c Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims. Tokens signed with any
// other algorithm, or without an expiry, are rejected.
func (s *JWTSigner) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// NopRevoker never revokes anything. It is used when no Valkey is wired.
type NopRevoker struct{}

func (NopRevoker) Revoke(context.Context, string, time.Time) error { return nil }

func (NopRevoker) IsRevoked(context.Context, string) (bool, error) { return false, nil }
