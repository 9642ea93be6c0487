// Package cache wraps go-redis for two unrelated hot-path uses: memoizing
// token counts the LLM Gateway (C3) computes repeatedly for identical
// (model, text) pairs within a chain, and caching recent Dialog Answerer
// (C8) fast-mode queries keyed by (scope, normalized query). Both are
// pure speed-ups: a cache miss or a Redis outage falls back to recomputing
// or re-querying, never to an error.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"voxpersona/internal/config"
)

// Cache is the narrow surface VoxPersona needs of Redis.
type Cache struct {
	client *redis.Client
}

// New constructs a Cache. The underlying client is lazy: go-redis does not
// dial until the first command, so New never fails even if Redis is down.
func New(cfg config.RedisConfig) *Cache {
	return &Cache{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

const tokenCountTTL = 10 * time.Minute

// TokenCount returns a memoized token count for (model, text), and whether
// it was found. Errors (including a down Redis) are treated as a miss.
func (c *Cache) TokenCount(ctx context.Context, model, text string) (int, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	v, err := c.client.Get(ctx, tokenCountKey(model, text)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetTokenCount stores a token count for (model, text) with a short TTL.
// Failures are silently dropped: this is a memoization cache, not a
// source of truth.
func (c *Cache) SetTokenCount(ctx context.Context, model, text string, count int) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, tokenCountKey(model, text), strconv.Itoa(count), tokenCountTTL).Err()
}

func tokenCountKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "voxpersona:tokens:" + model + ":" + hex.EncodeToString(sum[:16])
}

const dialogAnswerTTL = 5 * time.Minute

// DialogAnswer returns a cached fast-mode Dialog Answerer result for
// (scope, query), and whether it was found.
func (c *Cache) DialogAnswer(ctx context.Context, scope, query string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	v, err := c.client.Get(ctx, dialogAnswerKey(scope, query)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

// SetDialogAnswer caches a fast-mode Dialog Answerer result. Deep-search
// answers are never cached here: they're scoped to a specific fan-out and
// are expensive enough that staleness isn't an acceptable trade.
func (c *Cache) SetDialogAnswer(ctx context.Context, scope, query, answer string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, dialogAnswerKey(scope, query), answer, dialogAnswerTTL).Err()
}

func dialogAnswerKey(scope, query string) string {
	norm := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(norm))
	return "voxpersona:dialog:" + scope + ":" + hex.EncodeToString(sum[:16])
}
