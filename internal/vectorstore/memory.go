package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a brute-force cosine store for development and tests.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	records   map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) EnsureIndex(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimension != 0 && m.dimension != dimension {
		return &IndexDimensionError{Index: "memory", Want: dimension, Got: m.dimension}
	}
	m.dimension = dimension
	return nil
}

func (m *Memory) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record id required")
		}
		if m.dimension > 0 && len(r.Values) != m.dimension {
			return &IndexDimensionError{Index: "memory", Want: m.dimension, Got: len(r.Values)}
		}
	}
	for _, r := range records {
		if _, exists := m.records[r.ID]; !exists {
			m.order = append(m.order, r.ID)
		}
		m.records[r.ID] = copyRecord(r, true)
	}
	return nil
}

func (m *Memory) Query(_ context.Context, req QueryRequest) ([]Match, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.order))
	for _, id := range m.order {
		r := m.records[id]
		if !matchesFilter(r.Metadata, req.Filter) {
			continue
		}
		matches = append(matches, Match{Record: copyRecord(r, req.IncludeValues), Score: cosine(req.Vector, r.Values)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *Memory) Fetch(_ context.Context, ids []string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			out = append(out, copyRecord(r, true))
		}
	}
	return out, nil
}

// Len reports the number of stored vectors.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func matchesFilter(meta map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		v, ok := meta[k]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

func copyRecord(r Record, withValues bool) Record {
	out := Record{ID: r.ID, Metadata: make(map[string]any, len(r.Metadata))}
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	if withValues {
		out.Values = append([]float32(nil), r.Values...)
	}
	return out
}
