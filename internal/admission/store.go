package admission

import (
	"context"
	"sync"
)

// Record is the per-(client, calendar day) ledger entry. Created lazily on
// first use; day-keyed partitioning makes expiry implicit.
type Record struct {
	RequestCount int
	SpentUSD     float64
}

// Store is the keyed quota ledger. Increments must be atomic with respect
// to concurrent requests for the same key.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	IncrRequests(ctx context.Context, key string) error
	AddCost(ctx context.Context, key string, usd float64) error
}

// MemoryStore keeps the ledger in process memory for the process lifetime.
// Single-instance deployment assumption; swap for RedisStore when running
// more than one instance.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		return *rec, nil
	}
	return Record{}, nil
}

func (s *MemoryStore) IncrRequests(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(key).RequestCount++
	return nil
}

func (s *MemoryStore) AddCost(_ context.Context, key string, usd float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(key).SpentUSD += usd
	return nil
}

// record must be called with the lock held.
func (s *MemoryStore) record(key string) *Record {
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{}
		s.records[key] = rec
	}
	return rec
}
