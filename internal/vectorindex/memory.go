package vectorindex

import (
	"context"
	"sync"
)

// MemoryIndex is an in-process Index for tests and dry runs.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]map[string]memoryEntry
}

type memoryEntry struct {
	vector []float32
	meta   Metadata
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]map[string]memoryEntry)}
}

// Query ranks the namespace's vectors by cosine similarity.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, namespace string, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for id, entry := range m.entries[namespace] {
		matches = append(matches, Match{
			ID:       id,
			Score:    cosineSimilarity(vector, entry.vector),
			Category: entry.meta.Category,
			Merchant: entry.meta.Merchant,
		})
	}
	return topMatches(matches, topK), nil
}

// Upsert stores the vector, replacing any previous entry for the id.
func (m *MemoryIndex) Upsert(ctx context.Context, id string, vector []float32, meta Metadata, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries[namespace] == nil {
		m.entries[namespace] = make(map[string]memoryEntry)
	}
	stored := make([]float32, len(vector))
	copy(stored, vector)
	m.entries[namespace][id] = memoryEntry{vector: stored, meta: meta}
	return nil
}

// Len reports how many vectors a namespace holds.
func (m *MemoryIndex) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[namespace])
}
