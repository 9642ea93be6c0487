package llmgateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/apperr"
	"voxpersona/internal/credentials"
	"voxpersona/internal/config"
	"voxpersona/internal/llm"
)

// fakeProvider returns RateLimited the first N calls, then succeeds.
type fakeProvider struct {
	failures int
	calls    int
}

func (f *fakeProvider) Chat(ctx context.Context, msgs []llm.Message, maxTokens int, model string) (llm.Completion, error) {
	f.calls++
	if f.calls <= f.failures {
		return llm.Completion{}, errors.New("rate_limit: 429 too many requests")
	}
	return llm.Completion{Content: "ok"}, nil
}

func acquirePermit(t *testing.T) *credentials.Permit {
	t.Helper()
	pool := credentials.New([]config.CredentialConfig{{ID: "c1", TPM: 1_000_000, RPM: 1_000_000}})
	p, err := pool.Acquire(context.Background(), 10)
	require.NoError(t, err)
	return p
}

// fakeClock lets tests assert the retry bound without real sleeps.
type fakeClock struct {
	t      time.Time
	waited time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.waited += d
	c.t = c.t.Add(d)
	return nil
}

func TestCompleteSucceedsWithinRetryBound(t *testing.T) {
	// backoffs: 1+2+4 = 7s for 3 failures, well under 31s.
	provider := &fakeProvider{failures: 3}
	clock := &fakeClock{t: time.Unix(0, 0)}
	gw := New(func(string) llm.Provider { return provider }, WithClock(clock.now, clock.sleep))

	permit := acquirePermit(t)
	comp, err := gw.Complete(context.Background(), "sys", []llm.Message{{Role: "user", Content: "hi"}}, 100, permit, "model")
	require.NoError(t, err)
	assert.Equal(t, "ok", comp.Content)
	assert.LessOrEqual(t, clock.waited, 31*time.Second)
}

func TestCompleteSurfacesUnavailableWhenRetriesExhausted(t *testing.T) {
	// 1+2+4+8+16 = 31s fits exactly 5 failures; a 6th would exceed the bound.
	provider := &fakeProvider{failures: 100}
	clock := &fakeClock{t: time.Unix(0, 0)}
	gw := New(func(string) llm.Provider { return provider }, WithClock(clock.now, clock.sleep))

	permit := acquirePermit(t)
	_, err := gw.Complete(context.Background(), "sys", []llm.Message{{Role: "user", Content: "hi"}}, 100, permit, "model")
	require.Error(t, err)
	assert.Equal(t, apperr.Unavailable, apperr.KindOf(err))
	assert.LessOrEqual(t, clock.waited, 31*time.Second)
}

func TestCompleteSurfacesCredentialErrorWithoutRetry(t *testing.T) {
	provider := &stubProvider{err: errors.New("401 invalid_api_key")}
	gw := New(func(string) llm.Provider { return provider })

	permit := acquirePermit(t)
	_, err := gw.Complete(context.Background(), "sys", []llm.Message{{Role: "user", Content: "hi"}}, 100, permit, "model")
	require.Error(t, err)
	assert.Equal(t, apperr.CredentialError, apperr.KindOf(err))
	assert.Equal(t, 1, provider.calls)
}

type stubProvider struct {
	err   error
	calls int
}

func (s *stubProvider) Chat(ctx context.Context, msgs []llm.Message, maxTokens int, model string) (llm.Completion, error) {
	s.calls++
	return llm.Completion{}, s.err
}
