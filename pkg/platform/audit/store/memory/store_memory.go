package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	id "transplant/pkg/domain"
	audit "transplant/pkg/platform/audit"
	"transplant/pkg/platform/tx"
)

type entityKey struct {
	entityType audit.EntityType
	entityID   string
}

type InMemoryStore struct {
	mu       sync.RWMutex
	entries  []audit.Entry
	byEntity map[entityKey][]audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEntity: make(map[entityKey][]audit.Entry)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byEntity = make(map[entityKey][]audit.Entry)
}

func (s *InMemoryStore) Append(ctx context.Context, entry audit.Entry) error {
	if uuid.UUID(entry.ID) == uuid.Nil {
		entry.ID = id.EntryID(uuid.New())
	}
	key := entityKey{entry.EntityType, entry.EntityID}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.byEntity[key] = append(s.byEntity[key], entry)
	s.mu.Unlock()

	tx.OnRollback(ctx, func() { s.remove(key, entry.ID) })
	return nil
}

func (s *InMemoryStore) remove(key entityKey, entryID id.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = without(s.entries, entryID)
	s.byEntity[key] = without(s.byEntity[key], entryID)
}

func without(entries []audit.Entry, entryID id.EntryID) []audit.Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.ID != entryID {
			out = append(out, e)
		}
	}
	return out
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.byEntity[entityKey{entityType, entityID}]...), nil
}

// ListRecent returns the most recent entries, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	out := append([]audit.Entry{}, s.entries...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListAll returns every entry in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries...), nil
}
