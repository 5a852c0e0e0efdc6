package store

import (
	"os"
	"path/filepath"
	"slices"
	"sync"

	"privcal/internal/domain"
)

const relayListsFile = "relays.json"

// RelayListFileStore persists the relay lists we publish, keyed by purpose.
type RelayListFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewRelayListFileStore returns a RelayListFileStore rooted at dir.
func NewRelayListFileStore(dir string) *RelayListFileStore {
	return &RelayListFileStore{dir: dir}
}

// SaveRelayList stores or replaces the list for purpose.
func (s *RelayListFileStore) SaveRelayList(purpose domain.Purpose, prefs []domain.RelayPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, relayListsFile)
	lists := make(map[domain.Purpose][]domain.RelayPreference)
	if err := readJSON(path, &lists); err != nil {
		return err
	}
	lists[purpose] = slices.Clone(prefs)
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return writeJSON(path, lists, 0o600)
}

// LoadRelayList returns the stored list for purpose.
func (s *RelayListFileStore) LoadRelayList(purpose domain.Purpose) ([]domain.RelayPreference, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lists := make(map[domain.Purpose][]domain.RelayPreference)
	if err := readJSON(filepath.Join(s.dir, relayListsFile), &lists); err != nil {
		return nil, false, err
	}
	prefs, ok := lists[purpose]
	return prefs, ok, nil
}

// Compile-time assertion that RelayListFileStore implements domain.RelayListStore.
var _ domain.RelayListStore = (*RelayListFileStore)(nil)
