package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/gridsync/internal/grid"
)

// MemoryStore keeps packages in a map. Used when no database is configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	grids map[string]grid.Package
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grids: make(map[string]grid.Package),
		now:   time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, p grid.Package) (grid.Package, error) {
	if err := validate(p); err != nil {
		return grid.Package{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = newID()
	} else if _, ok := s.grids[p.ID]; !ok {
		return grid.Package{}, ErrNotFound
	}
	p.UpdatedAt = s.now()

	stored := p.Clone()
	s.grids[p.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (grid.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.grids[id]
	if !ok {
		return grid.Package{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, owner string) ([]grid.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]grid.Summary, 0, len(s.grids))
	for _, p := range s.grids {
		if owner != "" && p.Owner != owner {
			continue
		}
		list = append(list, p.Summary())
	}
	slices.SortFunc(list, func(a, b grid.Summary) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return list, nil
}
