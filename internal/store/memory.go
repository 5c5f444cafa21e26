package store

import (
	"context"
	"sync"
)

// Memory is an in-process store. Documents are kept serialized so callers never share maps.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	if err := validKey(collection, id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.docs[collection+"/"+id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (m *Memory) Set(_ context.Context, collection, id string, doc Document) error {
	if err := validKey(collection, id); err != nil {
		return err
	}
	data, err := encode(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.docs[collection+"/"+id] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	if err := validKey(collection, id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.docs, collection+"/"+id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
