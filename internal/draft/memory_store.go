package draft

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stemsi/whitelist-backend/internal/model"
)

// MemoryStore is an in-process Store. Values are kept as JSON so corrupt
// entries can be planted with Put.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
	saves  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, key string, d model.Draft) {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = data
	s.saves++
}

func (s *MemoryStore) Load(_ context.Context, key string) (*model.Draft, bool) {
	s.mu.Lock()
	raw, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return decode(raw)
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Put stores raw bytes under key, bypassing encoding.
func (s *MemoryStore) Put(key string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
}

// Has reports whether any value is stored under key.
func (s *MemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
