package cache

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store backend. It keeps a per-subject index
// of fingerprints so scoped invalidation does not scan the whole keyspace.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	// subjectID -> fingerprint key -> filter hash
	subjects map[string]map[string]string
}

// NewMemoryStore creates an empty in-memory cache store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*Entry),
		subjects: make(map[string]map[string]string),
	}
}

func (s *MemoryStore) Lookup(_ context.Context, fp Fingerprint) (*Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[fp.Key]
	return entry, ok, nil
}

func (s *MemoryStore) Write(_ context.Context, fp Fingerprint, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fp.Key] = entry
	index, ok := s.subjects[fp.SubjectID]
	if !ok {
		index = make(map[string]string)
		s.subjects[fp.SubjectID] = index
	}
	index[fp.Key] = fp.FilterHash
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, subjectID, filterHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, hash := range s.subjects[subjectID] {
		if hash == filterHash {
			delete(s.entries, key)
			delete(s.subjects[subjectID], key)
		}
	}
	return nil
}

func (s *MemoryStore) InvalidateAll(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.subjects[subjectID] {
		delete(s.entries, key)
	}
	delete(s.subjects, subjectID)
	return nil
}

// Len reports the number of live entries. Used by tests and stats.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
