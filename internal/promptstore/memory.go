package promptstore

import (
	"context"
	"sync"

	"voxpersona/internal/apperr"
)

// triple keys a resolved prompt set by scenario/report_type/building_type.
type triple struct {
	scenarioID, reportTypeID, buildingTypeID int64
}

// MemoryStore is an in-memory Store, used in tests; prompt sets and named
// prompts are added with Seed and SeedNamed.
type MemoryStore struct {
	mu     sync.RWMutex
	byKey  map[triple][]Stage
	named  map[string]string
}

// NewMemory constructs an empty in-memory prompt store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[triple][]Stage),
		named: make(map[string]string),
	}
}

// Seed registers the prompt set for a triple. Callers provide stages in any
// order; ResolvePrompts always returns them in the stable sort order.
func (m *MemoryStore) Seed(scenarioID, reportTypeID, buildingTypeID int64, stages []Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]Stage(nil), stages...)
	m.byKey[triple{scenarioID, reportTypeID, buildingTypeID}] = cp
}

// SeedNamed registers a flat, single-stage system prompt by name.
func (m *MemoryStore) SeedNamed(name, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.named[name] = text
}

func (m *MemoryStore) ResolvePrompts(_ context.Context, scenarioID, reportTypeID, buildingTypeID int64) ([]Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stages, ok := m.byKey[triple{scenarioID, reportTypeID, buildingTypeID}]
	if !ok || len(stages) == 0 {
		return nil, apperr.New(apperr.InvalidReference, "no prompts for scenario/report/building triple")
	}
	out := append([]Stage(nil), stages...)
	sortStages(out)
	return out, nil
}

func (m *MemoryStore) ResolveNamed(_ context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.named[name]
	if !ok {
		return "", apperr.New(apperr.InvalidReference, "named prompt not found: "+name)
	}
	return text, nil
}

var _ Store = (*MemoryStore)(nil)
