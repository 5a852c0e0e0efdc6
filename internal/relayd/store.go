package relayd

import (
	"slices"
	"sync"

	"privcal/internal/domain"
)

// Store keeps events in memory.
type Store struct {
	mu     sync.RWMutex
	events map[string]domain.Event
	// latest indexes replaceable events by pubkey and kind.
	latest map[replaceKey]string
}

type replaceKey struct {
	pubkey string
	kind   int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		events: make(map[string]domain.Event),
		latest: make(map[replaceKey]string),
	}
}

// Save stores ev. It reports false with a NIP-01 reason when the event is
// a duplicate or older than the stored replaceable event.
func (s *Store) Save(ev domain.Event) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; ok {
		return false, "duplicate: already have this event"
	}
	if ev.IsReplaceable() {
		k := replaceKey{ev.PubKey, ev.Kind}
		if prevID, ok := s.latest[k]; ok {
			prev := s.events[prevID]
			if prev.CreatedAt > ev.CreatedAt || (prev.CreatedAt == ev.CreatedAt && prev.ID < ev.ID) {
				return false, "duplicate: have a newer event"
			}
			delete(s.events, prevID)
		}
		s.latest[k] = ev.ID
	}
	s.events[ev.ID] = ev
	return true, ""
}

// Query returns events matching any filter, newest first. Each filter's
// limit applies to its own matches.
func (s *Store) Query(filters []domain.Filter) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []domain.Event
	for _, f := range filters {
		var matched []domain.Event
		for _, ev := range s.events {
			if f.Matches(ev) {
				matched = append(matched, ev)
			}
		}
		sortNewestFirst(matched)
		if f.Limit > 0 && len(matched) > f.Limit {
			matched = matched[:f.Limit]
		}
		for _, ev := range matched {
			if !seen[ev.ID] {
				seen[ev.ID] = true
				out = append(out, ev)
			}
		}
	}
	sortNewestFirst(out)
	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func sortNewestFirst(evs []domain.Event) {
	slices.SortFunc(evs, func(a, b domain.Event) int {
		if a.CreatedAt != b.CreatedAt {
			if a.CreatedAt > b.CreatedAt {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
