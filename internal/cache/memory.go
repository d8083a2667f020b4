package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mkutlay/feedsync/internal/feed"
)

// MemoryStore is the in-process fallback used when Redis is not
// configured, and in tests. Validators then live only as long as the
// process, which just means the first fetch after a restart is
// unconditional.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
}

type memoryEntry struct {
	validators feed.Validators
	expiresAt  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetValidators(ctx context.Context, url string) (feed.Validators, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[url]
	if !ok || (!entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt)) {
		return feed.Validators{}, nil
	}
	return entry.validators, nil
}

func (m *MemoryStore) SetValidators(ctx context.Context, url string, v feed.Validators, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{validators: v}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.data[url] = entry
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]memoryEntry)
	return nil
}
