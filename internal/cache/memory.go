package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	entry   Entry
	expires time.Time
}

// MemoryCache is a process-local cache with lazy expiry.
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{ttl: ttl, items: make(map[string]memoryItem), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, url string) (*Entry, bool, error) {
	m.mu.RLock()
	item, ok := m.items[url]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(item.expires) {
		m.mu.Lock()
		if cur, ok := m.items[url]; ok && cur.expires.Equal(item.expires) {
			delete(m.items, url)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	e := item.entry
	return &e, true, nil
}

func (m *MemoryCache) Set(_ context.Context, url string, e *Entry) error {
	if e == nil {
		return nil
	}
	now := m.now()
	stored := *e
	if stored.CachedAt.IsZero() {
		stored.CachedAt = now
	}
	m.mu.Lock()
	m.items[url] = memoryItem{entry: stored, expires: now.Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

// Len counts entries, expired ones included until they are next read.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.items = make(map[string]memoryItem)
	m.mu.Unlock()
	return nil
}
