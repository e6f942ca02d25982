// Package session provides the Valkey-backed token revocation list. A
// revoked token's ID is stored under a key that expires together with the
// token, so the list never outgrows the set of still-valid tokens.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// keyPrefix namespaces revocation keys in Valkey to avoid collisions.
	keyPrefix = "revoked:"
)

// Store manages revoked token IDs in Valkey.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

// NewStore creates a revocation store backed by the given Valkey client.
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		now:    time.Now,
	}
}

// Revoke marks the token ID as revoked until expiresAt. Tokens that have
// already expired need no entry.
func (s *Store) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, keyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("session revoke: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token ID has been revoked.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("session lookup: %w", err)
	}
	return n > 0, nil
}
