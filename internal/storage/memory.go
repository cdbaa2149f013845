package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chrissnell/sebal/internal/database"
)

// MemoryStore keeps everything in process. It is the default store when no
// database is configured, and backs the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]database.Run
	results map[string][]database.SceneResult
	skips   map[string][]database.SceneSkip
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]database.Run),
		results: make(map[string][]database.SceneResult),
		skips:   make(map[string][]database.SceneSkip),
	}
}

// SaveRun inserts or replaces a run.
func (m *MemoryStore) SaveRun(_ context.Context, run database.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

// SaveResult inserts or replaces a scene result.
func (m *MemoryStore) SaveResult(_ context.Context, r database.SceneResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	rs := m.results[r.RunID]
	for i := range rs {
		if rs[i].SceneID == r.SceneID {
			rs[i] = r
			return nil
		}
	}
	m.results[r.RunID] = append(rs, r)
	return nil
}

// SaveSkip appends a skip record.
func (m *MemoryStore) SaveSkip(_ context.Context, s database.SceneSkip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.skips[s.RunID] = append(m.skips[s.RunID], s)
	return nil
}

// ListRuns returns runs, newest first.
func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]database.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := make([]database.Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetRun returns one run.
func (m *MemoryStore) GetRun(_ context.Context, id string) (database.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return database.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// ListResults returns a run's scene results in acquisition order, without
// payloads.
func (m *MemoryStore) ListResults(_ context.Context, runID string) ([]database.SceneResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.SceneResult, 0, len(m.results[runID]))
	for _, r := range m.results[runID] {
		r.Payload = nil
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Acquired.Before(out[j].Acquired) })
	return out, nil
}

// GetResult returns one scene result with its payload.
func (m *MemoryStore) GetResult(_ context.Context, runID, sceneID string) (database.SceneResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.results[runID] {
		if r.SceneID == sceneID {
			return r, nil
		}
	}
	return database.SceneResult{}, fmt.Errorf("scene %s of run %s: %w", sceneID, runID, ErrNotFound)
}

// ListSkips returns a run's skip records in insertion order.
func (m *MemoryStore) ListSkips(_ context.Context, runID string) ([]database.SceneSkip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.SceneSkip(nil), m.skips[runID]...), nil
}

// Health implements Store.
func (m *MemoryStore) Health(context.Context) Health {
	return Health{Backend: "memory", Status: "healthy", LastCheck: time.Now().UTC()}
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
