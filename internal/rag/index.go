// Package rag implements the RAG Index Manager (C7): it builds, persists,
// loads, and serves per-scope vector indices over grouped audit corpora for
// the dialog-mode Q&A path (C8). One Index corresponds to one RagIndex
// entity (spec.md §3): a scope_key, a vector_store_handle (here, a
// databases.Manager pairing a VectorStore with a FullTextSearch so
// similarity search and chunk-text hydration stay in the same partition),
// and an embedder_id.
package rag

import (
	"context"
	"fmt"
	"sort"

	"voxpersona/internal/apperr"
	"voxpersona/internal/persistence/databases"
	"voxpersona/internal/rag/chunker"
	"voxpersona/internal/rag/embedder"
)

// Chunk is one retrieved window of text, ranked by similarity.
type Chunk struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]string
}

// Index is one built/loaded RAG index for a single scope key.
type Index struct {
	ScopeKey   string
	EmbedderID string

	db    databases.Manager
	embed embedder.Embedder
	opt   chunker.Options
	chk   chunker.Chunker

	// nextChunk is incremented as chunks are added, giving each chunk a
	// stable id within this index even across repeated Build calls
	// (rebuilds construct a fresh Index rather than mutating one in place,
	// per spec.md §4.7: indices are not incrementally updated).
	nextChunk int
}

// newIndex constructs an empty Index bound to one scope's storage backends.
func newIndex(scopeKey string, db databases.Manager, embed embedder.Embedder, opt chunker.Options) *Index {
	return &Index{
		ScopeKey:   scopeKey,
		EmbedderID: embed.Name(),
		db:         db,
		embed:      embed,
		opt:        opt,
		chk:        chunker.SimpleChunker{},
	}
}

// build splits corpusText into chunks, embeds each, and loads them into the
// index's vector and full-text backends. Called once per Build (see
// Manager.Build); a scope's prior index, if any, is discarded and replaced
// wholesale — spec.md §4.7 says RAG indices are not incrementally updated.
func (idx *Index) build(ctx context.Context, corpusText string) error {
	chunks, err := idx.chk.Chunk(corpusText, idx.opt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "chunk corpus", err)
	}
	if len(chunks) == 0 {
		return apperr.New(apperr.InvalidInput, "corpus produced no chunks")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := idx.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "embed chunks", err)
	}
	if len(vectors) != len(chunks) {
		return apperr.New(apperr.Internal, "embedder returned mismatched vector count")
	}

	for i, c := range chunks {
		id := fmt.Sprintf("%s-%d", idx.ScopeKey, idx.nextChunk)
		idx.nextChunk++
		meta := map[string]string{"scope": idx.ScopeKey, "chunk_index": fmt.Sprint(c.Index)}
		if err := idx.db.Vector.Upsert(ctx, id, vectors[i], meta); err != nil {
			return apperr.Wrap(apperr.Internal, "upsert chunk vector", err)
		}
		if err := idx.db.Search.Index(ctx, id, c.Text, meta); err != nil {
			return apperr.Wrap(apperr.Internal, "index chunk text", err)
		}
	}
	return nil
}

// Query returns the top-k chunks by cosine similarity to q, hydrated with
// full text from the full-text backend. Used by the Dialog Answerer's fast
// path (k = rag_topk_fast) and as the first stage of deep search (a wider
// k, fanned out one LLM call per chunk by the caller).
func (idx *Index) Query(ctx context.Context, q string, k int) ([]Chunk, error) {
	vecs, err := idx.embed.EmbedBatch(ctx, []string{q})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "embed query", err)
	}
	if len(vecs) != 1 {
		return nil, apperr.New(apperr.Internal, "embedder returned no vector for query")
	}

	hits, err := idx.db.Vector.SimilaritySearch(ctx, vecs[0], k, map[string]string{"scope": idx.ScopeKey})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "similarity search", err)
	}
	// SimilaritySearch backends already return rank order by score desc;
	// re-sort defensively so callers relying on rank order (deep search,
	// spec.md §4.8/§8 property 9) never depend on backend-specific ties.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	out := make([]Chunk, 0, len(hits))
	for _, h := range hits {
		result, ok, err := idx.db.Search.GetByID(ctx, h.ID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "hydrate chunk text", err)
		}
		text := result.Text
		if !ok {
			text = ""
		}
		out = append(out, Chunk{ID: h.ID, Text: text, Score: h.Score, Metadata: h.Metadata})
	}
	return out, nil
}
