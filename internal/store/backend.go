// Package store implements the remote entity store the console talks to:
// JSON CRUD endpoints for terrains, viruses and simulations with the same
// validation rules and error bodies the console expects.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"epiconsole/internal/entity"
)

// ErrNoRecord is returned by backends for unknown ids.
var ErrNoRecord = errors.New("no such record")

// Document is one stored record. Payload is the record's JSON encoding.
type Document struct {
	ID      entity.ID
	Payload json.RawMessage
}

// Backend persists documents per collection. Implementations need not
// serialize writers; the Server does.
type Backend interface {
	List(ctx context.Context, collection string) ([]Document, error)
	Get(ctx context.Context, collection string, id entity.ID) (Document, error)
	Put(ctx context.Context, collection string, doc Document) error
	Delete(ctx context.Context, collection string, id entity.ID) error
	// NextID allocates an id that was never handed out for collection.
	NextID(ctx context.Context, collection string) (entity.ID, error)
	Close() error
}

// MemoryBackend keeps documents in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]map[entity.ID]json.RawMessage
	seq  map[string]entity.ID
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		docs: make(map[string]map[entity.ID]json.RawMessage),
		seq:  make(map[string]entity.ID),
	}
}

func (m *MemoryBackend) List(_ context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.docs[collection]))
	for id, p := range m.docs[collection] {
		out = append(out, Document{ID: id, Payload: clone(p)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryBackend) Get(_ context.Context, collection string, id entity.ID) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.docs[collection][id]
	if !ok {
		return Document{}, ErrNoRecord
	}
	return Document{ID: id, Payload: clone(p)}, nil
}

func (m *MemoryBackend) Put(_ context.Context, collection string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[entity.ID]json.RawMessage)
	}
	m.docs[collection][doc.ID] = clone(doc.Payload)
	if doc.ID > m.seq[collection] {
		m.seq[collection] = doc.ID
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, collection string, id entity.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection][id]; !ok {
		return ErrNoRecord
	}
	delete(m.docs[collection], id)
	return nil
}

func (m *MemoryBackend) NextID(_ context.Context, collection string) (entity.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[collection]++
	return m.seq[collection], nil
}

func (m *MemoryBackend) Close() error { return nil }

func clone(p []byte) json.RawMessage {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
