package history

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MemoryStore implements Store using an in-memory slice.
// Intended for demos and testing; no database required.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

func (s *MemoryStore) Write(_ context.Context, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if _, ok := s.seen[e.EventID]; ok {
			continue
		}
		s.seen[e.EventID] = struct{}{}
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, opts QueryOptions) ([]Entry, string, int, error) {
	cursor, err := opts.cursor()
	if err != nil {
		return nil, "", 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	total := 0
	for _, e := range s.entries {
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		if len(opts.EventTypes) > 0 && !slices.Contains(opts.EventTypes, e.EventType) {
			continue
		}
		if opts.Primary != "" && e.Primary != opts.Primary {
			continue
		}
		total++
		if !cursor.after(e) {
			continue
		}
		matched = append(matched, e)
	}

	// Sort by occurred_at DESC.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].EventID > matched[j].EventID
		}
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	limit := opts.limit()
	var next string
	if len(matched) > limit {
		matched = matched[:limit]
		next = cursorOf(matched[len(matched)-1])
	}
	return matched, next, total, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
