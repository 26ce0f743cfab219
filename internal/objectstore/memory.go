package objectstore

import (
	"context"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	bucket     string
	containers map[string]struct{}
	objects    map[string]memoryObject
}

// NewMemoryStore creates a store whose default container is bucket.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:     bucket,
		containers: make(map[string]struct{}),
		objects:    make(map[string]memoryObject),
	}
}

func (m *MemoryStore) Container() string {
	return m.bucket
}

func (m *MemoryStore) EnsureContainer(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.containers[name] = struct{}{}
	return nil
}

// HasContainer reports whether EnsureContainer has been called for name.
func (m *MemoryStore) HasContainer(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.containers[name]
	return ok
}

func (m *MemoryStore) Upload(_ context.Context, obj Object) (string, error) {
	data, err := readBody(obj)
	if err != nil {
		return "", err
	}
	key := NewKey(obj.Name)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentTypeOrDefault(obj.ContentType)}
	return key, nil
}

func (m *MemoryStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

// ContentType returns the stored content type of key, or "" when absent.
func (m *MemoryStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}

func (m *MemoryStore) URL(key string) string {
	return "memory://" + m.bucket + "/" + escapeKey(key)
}

// KeyFromURL reverses URL for objects of this store.
func (m *MemoryStore) KeyFromURL(u string) (string, bool) {
	prefix := "memory://" + m.bucket + "/"
	if len(u) <= len(prefix) || u[:len(prefix)] != prefix {
		return "", false
	}
	key, err := unescapeKey(u[len(prefix):])
	if err != nil {
		return "", false
	}
	return key, true
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*S3Store)(nil)
)
