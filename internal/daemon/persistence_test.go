package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/config"
	"voxpersona/internal/persistence/databases"
	"voxpersona/internal/rag"
	"voxpersona/internal/rag/embedder"
)

func newTestManager(t *testing.T) *rag.Manager {
	t.Helper()
	backend := func(ctx context.Context, scopeKey string) (databases.Manager, error) {
		return databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector(8)}, nil
	}
	return rag.New(backend, embedder.NewDeterministic(8, true, 1), config.RAGConfig{
		IndexDir:     t.TempDir(),
		ChunkTokens:  50,
		ChunkOverlap: 5,
	})
}

func TestRunSavesOnTickAndOnShutdown(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.Build(context.Background(), "design", "enough corpus text to produce at least one chunk for the index"))

	d := New(mgr)
	d.Period = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	_, found, err := mgr.LoadManifest("design")
	require.NoError(t, err)
	assert.True(t, found, "daemon should have snapshotted the built index at least once")
}

func TestSaveAllPanicRecoversWithoutCrashingCaller(t *testing.T) {
	d := &PersistenceDaemon{Rag: rag.New(
		func(ctx context.Context, scopeKey string) (databases.Manager, error) {
			return databases.Manager{}, nil
		},
		embedder.NewDeterministic(8, true, 1),
		config.RAGConfig{IndexDir: t.TempDir()},
	)}
	assert.NotPanics(t, func() { d.saveAll() })
}
