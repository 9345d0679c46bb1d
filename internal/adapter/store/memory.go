package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
)

// MemoryStore is the process-local SchemaStore. Version writes and the
// last_version update happen under one lock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries port.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(port.Document)}
}

func (s *MemoryStore) Put(table, version string, snap *port.SchemaSnapshot) error {
	if table == "" || version == "" {
		return fmt.Errorf("%w: table name and version are required", domain.ErrInvalidInput)
	}
	if version == port.LastVersionKey {
		return fmt.Errorf("%w: %q is a reserved version label", domain.ErrInvalidInput, version)
	}
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[table]
	if !ok {
		entry = port.NewStoreEntry()
		s.entries[table] = entry
	}
	entry.Versions[version] = snap
	entry.LastVersion = version
	return nil
}

func (s *MemoryStore) Get(table, version string) (*port.SchemaSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[table]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", domain.ErrNotFound, table)
	}
	if version == port.LastVersionKey {
		version = entry.LastVersion
	}
	snap, ok := entry.Versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: table %q version %q", domain.ErrNotFound, table, version)
	}
	return snap, nil
}

func (s *MemoryStore) Latest(table string) (string, *port.SchemaSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[table]
	if !ok || entry.LastVersion == "" {
		return "", nil, fmt.Errorf("%w: no versions for table %q", domain.ErrNotFound, table)
	}
	snap, ok := entry.Versions[entry.LastVersion]
	if !ok {
		return "", nil, fmt.Errorf("%w: last_version %q of table %q has no snapshot", domain.ErrMalformedState, entry.LastVersion, table)
	}
	return entry.LastVersion, snap, nil
}

func (s *MemoryStore) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (s *MemoryStore) Versions(table string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[table]
	if !ok {
		return nil
	}
	return entry.SortedVersions()
}

// Document returns a deep copy so callers can persist it without holding
// the lock.
func (s *MemoryStore) Document() port.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDocument(s.entries)
}

func (s *MemoryStore) Replace(doc port.Document) {
	cp := cloneDocument(doc)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = cp
}

func cloneDocument(doc port.Document) port.Document {
	out := make(port.Document, len(doc))
	for name, entry := range doc {
		if entry == nil {
			continue
		}
		cp := port.NewStoreEntry()
		cp.LastVersion = entry.LastVersion
		for v, snap := range entry.Versions {
			cp.Versions[v] = cloneSnapshot(snap)
		}
		out[name] = cp
	}
	return out
}

// cloneSnapshot deep-copies through JSON; warnings are not carried.
func cloneSnapshot(snap *port.SchemaSnapshot) *port.SchemaSnapshot {
	if snap == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return snap
	}
	var cp port.SchemaSnapshot
	if err := json.Unmarshal(raw, &cp); err != nil {
		return snap
	}
	return &cp
}
