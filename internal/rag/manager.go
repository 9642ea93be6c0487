package rag

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"voxpersona/internal/apperr"
	"voxpersona/internal/config"
	"voxpersona/internal/persistence/databases"
	"voxpersona/internal/rag/chunker"
	"voxpersona/internal/rag/embedder"
)

// BackendFactory constructs the storage backends for one scope key. Most
// deployments share one databases.Manager across scopes (a single Postgres
// or Qdrant collection, partitioned by the "scope" metadata field written
// in Index.build); tests typically return a fresh in-memory Manager per
// scope so indices don't bleed into each other.
type BackendFactory func(ctx context.Context, scopeKey string) (databases.Manager, error)

// Manager owns the set of loaded RagIndex instances. Indices are guarded
// by a single reader-writer lock (spec.md §5): many concurrent queries,
// exclusive swap when a rebuild replaces an index. The Persistence Daemon
// (C11) reaches indices only through Scopes and SaveAll, never a
// reference into the index graph itself, so ownership of indices stays
// here per spec.md §9's cyclic-dependency resolution.
type Manager struct {
	mu      sync.RWMutex
	indices map[string]*Index

	backend BackendFactory
	embed   embedder.Embedder
	opt     chunker.Options
	rootDir string
}

// New constructs an empty Manager. Indices are added by Build; nothing is
// loaded from disk (LoadManifest reads back a saved manifest but does not
// rehydrate an index).
func New(backend BackendFactory, embed embedder.Embedder, cfg config.RAGConfig) *Manager {
	return &Manager{
		indices: make(map[string]*Index),
		backend: backend,
		embed:   embed,
		opt:     chunker.Options{MaxTokens: firstPositive(cfg.ChunkTokens, 1000), Overlap: cfg.ChunkOverlap},
		rootDir: firstNonEmpty(cfg.IndexDir, "./data/rag-index"),
	}
}

func firstPositive(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

func firstNonEmpty(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

// Build splits corpusText into chunks, embeds and loads them into a fresh
// index for scopeKey, and swaps it into the manager atomically. A scope's
// prior index, if any, is discarded wholesale: spec.md §4.7 says RAG
// indices are not incrementally updated; the next rebuild cycle is what
// incorporates new Audits.
func (m *Manager) Build(ctx context.Context, scopeKey, corpusText string) error {
	db, err := m.backend(ctx, scopeKey)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "construct backend for scope "+scopeKey, err)
	}
	idx := newIndex(scopeKey, db, m.embed, m.opt)
	if err := idx.build(ctx, corpusText); err != nil {
		return err
	}

	m.mu.Lock()
	m.indices[scopeKey] = idx
	m.mu.Unlock()
	return nil
}

// Get returns the loaded index for scopeKey, or apperr.IndexUnavailable if
// it hasn't been built or loaded yet.
func (m *Manager) Get(scopeKey string) (*Index, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indices[scopeKey]
	if !ok {
		return nil, apperr.New(apperr.IndexUnavailable, "rag index not loaded for scope "+scopeKey)
	}
	return idx, nil
}

// Query is a convenience wrapper combining Get and Index.Query.
func (m *Manager) Query(ctx context.Context, scopeKey, q string, k int) ([]Chunk, error) {
	idx, err := m.Get(scopeKey)
	if err != nil {
		return nil, err
	}
	return idx.Query(ctx, q, k)
}

// Scopes returns the currently loaded scope keys. Used by the Persistence
// Daemon to iterate the index set under a read-lock.
func (m *Manager) Scopes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.indices))
	for k := range m.indices {
		out = append(out, k)
	}
	return out
}

// snapshotManifest is the durable record Save writes per scope. It does
// not duplicate vector/full-text storage already held durably by a
// Postgres or Qdrant backend: it exists so Load can report which scopes
// were ever successfully snapshotted, and to preserve the embedder id and
// chunk count that produced the data in place.
type snapshotManifest struct {
	ScopeKey    string    `json:"scope_key"`
	EmbedderID  string    `json:"embedder_id"`
	ChunkCount  int       `json:"chunk_count"`
	SavedAt     time.Time `json:"saved_at"`
}

// Save snapshots one loaded index's manifest under a sanitised directory
// per scope_key (spec.md §6, "RAG snapshot directory layout"). The chunk
// data itself lives in whatever VectorStore/FullTextSearch backend the
// scope was built against; for the in-memory backend (tests, single-node
// dev deployments) that data is lost on restart regardless of this
// manifest, which is a known limitation of the memory backend, not of
// Save/Load.
func (m *Manager) Save(scopeKey string) error {
	idx, err := m.Get(scopeKey)
	if err != nil {
		return err
	}
	dir := filepath.Join(m.rootDir, sanitizeScopeKey(scopeKey))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.Internal, "create snapshot dir", err)
	}
	manifest := snapshotManifest{
		ScopeKey:   idx.ScopeKey,
		EmbedderID: idx.EmbedderID,
		ChunkCount: idx.nextChunk,
		SavedAt:    time.Now().UTC(),
	}
	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal snapshot manifest", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), b, 0o644); err != nil {
		return apperr.Wrap(apperr.Internal, "write snapshot manifest", err)
	}
	return nil
}

// SaveAll snapshots every currently loaded index, under the manager's
// read-lock (many concurrent queries may proceed; only a rebuild excludes
// them). Used by the Persistence Daemon's periodic cycle.
func (m *Manager) SaveAll() map[string]error {
	scopes := m.Scopes()
	errs := make(map[string]error)
	for _, scope := range scopes {
		if err := m.Save(scope); err != nil {
			errs[scope] = err
		}
	}
	return errs
}

// LoadManifest reads back a scope's snapshot manifest without rehydrating
// the index itself (rehydration requires rebuilding against the live
// backend via Build, since the in-memory backend's data does not survive
// a process restart). It reports whether a manifest exists.
func (m *Manager) LoadManifest(scopeKey string) (snapshotManifest, bool, error) {
	path := filepath.Join(m.rootDir, sanitizeScopeKey(scopeKey), "manifest.json")
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return snapshotManifest{}, false, nil
	}
	if err != nil {
		return snapshotManifest{}, false, apperr.Wrap(apperr.Internal, "read snapshot manifest", err)
	}
	var manifest snapshotManifest
	if err := json.Unmarshal(b, &manifest); err != nil {
		return snapshotManifest{}, false, apperr.Wrap(apperr.Internal, "unmarshal snapshot manifest", err)
	}
	return manifest, true, nil
}

var unsafeScopeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// sanitizeScopeKey strips path separators and reserved characters from a
// scope key so it's safe to use as a directory name, per spec.md §6.
func sanitizeScopeKey(scopeKey string) string {
	s := strings.TrimSpace(scopeKey)
	s = unsafeScopeChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "_"
	}
	return s
}
