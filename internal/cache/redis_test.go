package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"voxpersona/internal/config"
)

// These tests exercise the no-Redis-available path (miss-on-error), since
// the test environment has no live Redis. The cache's contract is that a
// down Redis degrades to cache misses, never errors.

func TestTokenCountMissWhenUnreachable(t *testing.T) {
	c := New(config.RedisConfig{Addr: "127.0.0.1:1"})
	defer c.Close()
	_, found := c.TokenCount(context.Background(), "claude-sonnet-4-5", "hello")
	assert.False(t, found)
}

func TestDialogAnswerMissWhenUnreachable(t *testing.T) {
	c := New(config.RedisConfig{Addr: "127.0.0.1:1"})
	defer c.Close()
	_, found := c.DialogAnswer(context.Background(), "interview", "what went wrong?")
	assert.False(t, found)
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	assert.NotPanics(t, func() {
		c.SetTokenCount(context.Background(), "model", "text", 5)
		c.SetDialogAnswer(context.Background(), "scope", "q", "a")
	})
	_, found := c.TokenCount(context.Background(), "model", "text")
	assert.False(t, found)
	assert.NoError(t, c.Close())
}
