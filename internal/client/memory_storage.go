package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStorage is an in-process StorageClient used when no object store is
// configured (local development) and in tests.
type MemoryStorage struct {
	mu      sync.Mutex
	baseURL string
	objects map[string]StoredObject
}

// StoredObject is one object held by MemoryStorage
type StoredObject struct {
	Data        []byte
	ContentType string
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]StoredObject),
	}
}

func (m *MemoryStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}

	m.mu.Lock()
	m.objects[key] = StoredObject{Data: buf.Bytes(), ContentType: contentType}
	m.mu.Unlock()

	return m.GetPublicURL(key), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) GetPublicURL(key string) string {
	return m.baseURL + "/" + key
}

// Object returns a stored object by key
func (m *MemoryStorage) Object(key string) (StoredObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists stored keys
func (m *MemoryStorage) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
