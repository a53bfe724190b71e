package storage

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory BlobStore for tests and single-process runs. URIs
// use the mem:// scheme.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put implements BlobStore.
func (m *Memory) Put(ctx context.Context, objectName string, data []byte) (string, error) {
	if objectName == "" {
		return "", fmt.Errorf("object name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[objectName] = cp
	return "mem://" + objectName, nil
}

// Fetch implements BlobStore.
func (m *Memory) Fetch(ctx context.Context, uri string) ([]byte, error) {
	const scheme = "mem://"
	if len(uri) <= len(scheme) || uri[:len(scheme)] != scheme {
		return nil, fmt.Errorf("invalid memory URI: %s", uri)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.objects[uri[len(scheme):]]
	if !exists {
		return nil, fmt.Errorf("object not found: %s", uri)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

var _ BlobStore = (*Memory)(nil)
