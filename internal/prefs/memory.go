package prefs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend is an in-process Backend used by tests and dry-run plumbing.
// It tracks write/delete counts so idempotence can be asserted.
type MemoryBackend struct {
	mu      sync.Mutex
	domains map[string]map[string]Value

	Writes  int
	Deletes int

	// Unavailable makes every call fail with ErrBackendUnavailable.
	Unavailable bool

	// FailWrites maps "domain/key" to an error returned by Write.
	FailWrites map[string]error
}

// NewMemoryBackend returns an empty in-memory store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{domains: make(map[string]map[string]Value)}
}

// Seed sets a value without counting it as a write.
func (m *MemoryBackend) Seed(domain, key string, v Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.domains[domain] == nil {
		m.domains[domain] = make(map[string]Value)
	}
	m.domains[domain][key] = v
}

// SeedDomain registers a domain with no keys.
func (m *MemoryBackend) SeedDomain(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.domains[domain] == nil {
		m.domains[domain] = make(map[string]Value)
	}
}

func (m *MemoryBackend) Read(_ context.Context, domain, key string) (Value, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return Value{}, false, ErrBackendUnavailable
	}
	keys, ok := m.domains[domain]
	if !ok {
		return Value{}, false, nil
	}
	v, ok := keys[key]
	return v, ok, nil
}

func (m *MemoryBackend) Write(_ context.Context, domain, key string, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return ErrBackendUnavailable
	}
	if err, ok := m.FailWrites[domain+"/"+key]; ok {
		return err
	}
	if m.domains[domain] == nil {
		m.domains[domain] = make(map[string]Value)
	}
	m.domains[domain][key] = v
	m.Writes++
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, domain, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return ErrBackendUnavailable
	}
	keys, ok := m.domains[domain]
	if !ok {
		return fmt.Errorf("domain %q not found", domain)
	}
	if _, ok := keys[key]; !ok {
		return fmt.Errorf("key %q not found in %q", key, domain)
	}
	delete(keys, key)
	m.Deletes++
	return nil
}

func (m *MemoryBackend) DomainExists(_ context.Context, domain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return false, ErrBackendUnavailable
	}
	if domain == GlobalDomain {
		return true, nil
	}
	_, ok := m.domains[domain]
	return ok, nil
}

func (m *MemoryBackend) ListDomains(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return nil, ErrBackendUnavailable
	}
	out := make([]string, 0, len(m.domains))
	for d := range m.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}
