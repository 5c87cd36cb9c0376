// Package catalog records which slide chunks were ingested so they can be
// listed without a vector query.
package catalog

import (
	"context"
	"sort"
	"sync"

	"teacher-dashboard-api/models"
)

// Filter selects catalog entries. Empty strings match everything.
type Filter struct {
	Course  string
	Subject string
	Limit   int
	Offset  int
}

type Catalog interface {
	Save(ctx context.Context, chunks []models.SlideInDB) error
	// List returns one page, newest first, and the total number of matches.
	List(ctx context.Context, f Filter) ([]models.SlideInDB, int64, error)
}

// Memory keeps entries in process. Used when MongoDB is not configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]models.SlideInDB
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]models.SlideInDB)}
}

func (m *Memory) Save(_ context.Context, chunks []models.SlideInDB) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		c.Embedding = nil
		c.Score = nil
		m.entries[c.VectorID] = c
	}
	return nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]models.SlideInDB, int64, error) {
	m.mu.RLock()
	matched := make([]models.SlideInDB, 0, len(m.entries))
	for _, e := range m.entries {
		if f.Course != "" && e.CourseName != f.Course {
			continue
		}
		if f.Subject != "" && e.SubjectName != f.Subject {
			continue
		}
		matched = append(matched, e)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.VectorID < b.VectorID
	})

	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return []models.SlideInDB{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}
