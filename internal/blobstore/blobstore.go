// Package blobstore adapts internal/objectstore to the narrow collaborator
// interface spec.md §6 names for the blob store: Put/Get(name, bytes)
// keyed by an opaque name, with failures treated as hard and surfaced.
// The Role Assigner & Transcriber Facade (C6) uses it to fetch the raw
// audio blob before windowing.
package blobstore

import (
	"bytes"
	"context"
	"io"

	"voxpersona/internal/objectstore"
)

// Store is the collaborator interface spec.md §6 names for the blob store.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// adapter wraps an objectstore.ObjectStore to the narrower Put/Get shape.
// objectstore.ObjectStore already covers this plus listing/copy/head,
// which VoxPersona's core never needs directly.
type adapter struct {
	backing objectstore.ObjectStore
}

// New wraps any objectstore.ObjectStore (MemoryStore or S3Store) as a
// blobstore.Store.
func New(backing objectstore.ObjectStore) Store {
	return &adapter{backing: backing}
}

func (a *adapter) Put(ctx context.Context, name string, data []byte) error {
	_, err := a.backing.Put(ctx, name, bytes.NewReader(data), objectstore.PutOptions{})
	if err != nil {
		return err
	}
	return nil
}

func (a *adapter) Get(ctx context.Context, name string) ([]byte, error) {
	r, _, err := a.backing.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
