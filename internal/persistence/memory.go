// Package persistence holds store implementations and decorators shared by the API and tests.
package persistence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// MemoryStore keeps canonical records in memory for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[domain.RecordKey]domain.CanonicalRecord
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[domain.RecordKey]domain.CanonicalRecord)}
}

// Put implements domain.RecordStore.
func (s *MemoryStore) Put(ctx context.Context, record domain.CanonicalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record = domain.NewRecord(record.UserID, record.ProviderType, record.SchemaType, record.Timestamp, cloneRaw(record.Data))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key()] = record
	return nil
}

// Query implements domain.RecordStore.
func (s *MemoryStore) Query(ctx context.Context, filter domain.Filter) ([]domain.CanonicalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make([]domain.CanonicalRecord, 0)
	for _, record := range s.records {
		if filter.Matches(record) {
			record.Data = cloneRaw(record.Data)
			results = append(results, record)
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return domain.Less(results[i], results[j]) })
	return results, nil
}

// Ping implements domain.RecordStore.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
