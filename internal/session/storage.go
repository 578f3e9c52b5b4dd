// storage.go -- Key/value storage contract with per-key TTL.
//
// The session cache never touches cookies directly; it talks to a Storage.
// CookieStorage (cookie.go) is the production implementation, MemoryStorage
// backs the CLI and tests.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Storage is a string key/value store with per-key expiry.
// Get reports ok=false for absent or expired keys; err is reserved for
// infrastructure failures and is treated as fatal by callers.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string, ttl time.Duration) error
	Remove(key string) error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStorage is an in-process Storage. Safe for concurrent use.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swapped in tests to drive expiry.
	now func() time.Time
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStorage) Set(key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("storing %q: ttl must be positive, got %s", key, ttl)
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
