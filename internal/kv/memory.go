package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used by tests and local development.
// It honors the same expiry and atomicity semantics as the Redis adapter.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	value    string
	deadline time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// SetClock overrides the store's time source so tests can advance expiry
// without sleeping.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.deadline = s.now().Add(ttl)
	}
	s.data[key] = entry
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.liveLocked(key)
	return ok, nil
}

func (s *MemoryStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := int64(0)
	entry, ok := s.liveLocked(key)
	if ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err == nil {
			count = parsed
		}
	}
	count++

	next := memoryEntry{value: strconv.FormatInt(count, 10)}
	if ok {
		next.deadline = entry.deadline
	} else if ttl > 0 {
		next.deadline = s.now().Add(ttl)
	}
	s.data[key] = next
	return count, nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key)
	if !ok || entry.deadline.IsZero() {
		return 0, nil
	}
	remaining := entry.deadline.Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// liveLocked returns the entry at key, dropping it when expired.
func (s *MemoryStore) liveLocked(key string) (memoryEntry, bool) {
	entry, ok := s.data[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.deadline.IsZero() && !s.now().Before(entry.deadline) {
		delete(s.data, key)
		return memoryEntry{}, false
	}
	return entry, true
}
