// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go provides a Valkey-backed cache of the nested category tree.
// Building the tree reads every category and its post counts, so the
// result is stored as JSON and dropped whenever categories or post
// placement change.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"quillpress/internal/models"
)

const (
	// treeKey is the Valkey key holding the serialized tree.
	treeKey = "taxonomy:tree"

	// DefaultTreeTTL bounds how stale a cached tree can get when an
	// invalidation is missed.
	DefaultTreeTTL = 5 * time.Minute
)

// TreeCache stores the category tree in Valkey. Cache failures are logged
// and treated as misses.
type TreeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTreeCache creates a tree cache backed by the given Valkey client.
func NewTreeCache(client *redis.Client, ttl time.Duration) *TreeCache {
	if ttl == 0 {
		ttl = DefaultTreeTTL
	}
	return &TreeCache{client: client, ttl: ttl}
}

// Get returns the cached tree, if any.
func (tc *TreeCache) Get(ctx context.Context) ([]models.Category, bool) {
	val, err := tc.client.Get(ctx, treeKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("tree cache get error", "error", err)
		return nil, false
	}

	var tree []models.Category
	if err := json.Unmarshal(val, &tree); err != nil {
		slog.Warn("tree cache decode error", "error", err)
		return nil, false
	}
	slog.Debug("tree cache hit")
	return tree, true
}

// Set stores the tree with the configured TTL.
func (tc *TreeCache) Set(ctx context.Context, tree []models.Category) {
	payload, err := json.Marshal(tree)
	if err != nil {
		slog.Warn("tree cache encode error", "error", err)
		return
	}
	if err := tc.client.Set(ctx, treeKey, payload, tc.ttl).Err(); err != nil {
		slog.Warn("tree cache set error", "error", err)
	}
}

// Invalidate drops the cached tree.
func (tc *TreeCache) Invalidate(ctx context.Context) {
	if err := tc.client.Del(ctx, treeKey).Err(); err != nil {
		slog.Warn("tree cache invalidate error", "error", err)
		return
	}
	slog.Debug("tree cache invalidated")
}
