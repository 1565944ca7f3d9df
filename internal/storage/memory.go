package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dharsanguruparan/FlatDrop/internal/signing"
)

type memObject struct {
	data    []byte
	created time.Time
}

// MemoryStore keeps artifacts in process memory. It backs development runs
// and tests and is served through the same download route as LocalStore.
type MemoryStore struct {
	signedLocator
	mu      sync.RWMutex
	objects map[string]memObject
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(signer *signing.Signer) *MemoryStore {
	return &MemoryStore{
		signedLocator: signedLocator{signer: signer},
		objects:       make(map[string]memObject),
	}
}

func (m *MemoryStore) Kind() string { return "memory" }

func (m *MemoryStore) Put(_ context.Context, id string, data []byte) error {
	if !ValidID(id) {
		return fmt.Errorf("put %q: %w", id, ErrInvalidID)
	}
	buf := append([]byte(nil), data...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = memObject{data: buf, created: time.Now().UTC()}
	return nil
}

func (m *MemoryStore) Locator(_ context.Context, id string, expiresAt time.Time) (string, error) {
	return m.locator(id, expiresAt)
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, id)
	return nil
}

func (m *MemoryStore) Open(_ context.Context, id string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{
		Content: nopCloser{bytes.NewReader(obj.data)},
		Size:    int64(len(obj.data)),
		ModTime: obj.created,
	}, nil
}

// Has reports whether id is stored.
func (m *MemoryStore) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[id]
	return ok
}

// Len reports how many artifacts are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

type nopCloser struct {
	io.ReadSeeker
}

func (nopCloser) Close() error { return nil }
