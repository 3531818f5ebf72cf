package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryArchiveStore keeps archive objects in process memory. It backs
// development setups and tests.
type MemoryArchiveStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryArchiveStore creates an empty store
func NewMemoryArchiveStore() *MemoryArchiveStore {
	return &MemoryArchiveStore{objects: make(map[string]memoryObject)}
}

// Put stores a copy of data under key
func (m *MemoryArchiveStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errKeyRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// Get returns a copy of the object under key
func (m *MemoryArchiveStore) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errKeyRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

// Exists reports whether key is present
func (m *MemoryArchiveStore) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errKeyRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// List returns the sorted keys below prefix
func (m *MemoryArchiveStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ContentType returns the content type recorded for key
func (m *MemoryArchiveStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}
