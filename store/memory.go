package store

import (
	"context"
	"sync"
)

//MemoryStore represents a Store that uses an in-memory map
type MemoryStore struct {
	store map[string]string
	mu    *sync.Mutex
}

//NewMemoryStore returns a new, empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		store: make(map[string]string),
		mu:    new(sync.Mutex),
	}
}

//Get returns the value stored under key. err will always be nil.
func (m *MemoryStore) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok = m.store[key]
	return value, ok, nil
}

//Set stores value under key. err will always be nil.
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	m.store[key] = value
	m.mu.Unlock()
	return nil
}

//Delete removes key. err will always be nil.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.store, key)
	m.mu.Unlock()
	return nil
}
