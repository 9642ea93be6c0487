package credentials

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/config"
)

func TestAcquireSerializesPerCredential(t *testing.T) {
	pool := New([]config.CredentialConfig{{ID: "c1", TPM: 1_000_000, RPM: 1_000_000}})

	var active int32
	var maxObserved int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			permit, err := pool.Acquire(context.Background(), 10)
			require.NoError(t, err)
			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxObserved)
				if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			permit.Release(10, StatusOK)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxObserved, "no two Acquire calls should hold the same credential concurrently")
}

func TestQuarantineRemovesCredentialPermanently(t *testing.T) {
	pool := New([]config.CredentialConfig{
		{ID: "c1", TPM: 1000, RPM: 100},
		{ID: "c2", TPM: 1000, RPM: 100},
	})
	pool.Quarantine("c1")

	for i := 0; i < 5; i++ {
		permit, err := pool.Acquire(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, "c2", permit.ID)
		permit.Release(10, StatusOK)
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	// A single credential with a tiny RPM budget forces queuing; cancel
	// the context while the second call is waiting.
	pool := New([]config.CredentialConfig{{ID: "c1", TPM: 1_000_000, RPM: 1}})

	first, err := pool.Acquire(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx, 1)
	assert.Error(t, err)

	first.Release(1, StatusOK)
}
