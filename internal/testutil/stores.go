// stores.go
//
// Shared mock implementations of session.Storage, oauth.Transport, oauth.Page
// and oauth.ResultCache. Imported by test files across packages to avoid
// duplicate mock definitions.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MGallo-Code/wxauth/internal/store"
)

// MockStorage implements session.Storage for tests.

// Always stateful...Entries is a map, like a real store. TTLs records the ttl of
// the latest Set per key; Removed records every Remove call in order.
// Use *Err fields to inject errors for specific operations.
type MockStorage struct {
	// Error injection...zero value means no error
	GetErr    error
	SetErr    error
	RemoveErr error

	Entries map[string]string
	TTLs    map[string]time.Duration
	Removed []string
	Sets    int

	mu sync.Mutex
}

// NewMockStorage returns an empty MockStorage ready for use.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		Entries: make(map[string]string),
		TTLs:    make(map[string]time.Duration),
	}
}

func (m *MockStorage) Get(key string) (string, bool, error) {
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Entries[key]
	return v, ok, nil
}

func (m *MockStorage) Set(key, value string, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[key] = value
	m.TTLs[key] = ttl
	m.Sets++
	return nil
}

func (m *MockStorage) Remove(key string) error {
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entries, key)
	delete(m.TTLs, key)
	m.Removed = append(m.Removed, key)
	return nil
}

// TransportCall records one Post made through MockTransport.
type TransportCall struct {
	URL  string
	Body []byte // JSON encoding of the body argument
}

// MockTransport implements oauth.Transport for tests.
// Returns Response (or Err) for every call and records each call.
// Delay, when set, blocks each call so concurrency tests can overlap requests.
type MockTransport struct {
	Response []byte
	Err      error
	Delay    time.Duration

	Calls []TransportCall

	mu sync.Mutex
}

func (m *MockTransport) Post(ctx context.Context, url string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.Calls = append(m.Calls, TransportCall{URL: url, Body: encoded})
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

// CallCount returns the number of Post calls so far.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockPage implements oauth.Page for tests.
// URL is what CurrentURL returns; Navigations records every Navigate target.
type MockPage struct {
	URL         string
	Navigations []string
}

func (p *MockPage) CurrentURL() string { return p.URL }

func (p *MockPage) Navigate(target string) {
	p.Navigations = append(p.Navigations, target)
}

// MockResultCache implements oauth.ResultCache for tests.
// Always stateful...Results is a map, like a real cache.
type MockResultCache struct {
	// Error injection...zero value means no error
	GetErr error
	SetErr error

	Results map[string][]byte
	Gets    int

	mu sync.Mutex
}

// NewMockResultCache returns an empty MockResultCache ready for use.
func NewMockResultCache() *MockResultCache {
	return &MockResultCache{Results: make(map[string][]byte)}
}

func (m *MockResultCache) GetResult(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	v, ok := m.Results[key]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	return v, nil
}

func (m *MockResultCache) SetResult(_ context.Context, key string, result []byte, _ time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[key] = result
	return nil
}

// CheckHealth always reports healthy.
func (m *MockResultCache) CheckHealth(context.Context) error { return nil }
