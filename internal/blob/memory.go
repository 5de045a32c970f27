package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used by tests and the "memory" blob
// backend for local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func key(bucket, path string) string {
	return bucket + "/" + path
}

func (m *MemoryStore) Download(_ context.Context, bucket, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key(bucket, path)]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, path)
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, nil
}

func (m *MemoryStore) Upload(_ context.Context, bucket, path string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key(bucket, path)] = memoryObject{data: stored, contentType: contentType}
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, bucket, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key(bucket, path)]
	return ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, bucket, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key(bucket, path))
	return nil
}

// ContentType reports the stored content type, for test assertions.
func (m *MemoryStore) ContentType(bucket, path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.objects[key(bucket, path)].contentType
}

// Len reports the number of stored objects, for test assertions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.objects)
}
