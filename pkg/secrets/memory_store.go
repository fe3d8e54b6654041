package secrets

import (
	"context"
	"sync"

	iface "github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/secrets"
)

// MemoryStore is a simple in-memory implementation of a secret Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]iface.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]iface.Record)}
}

func (m *MemoryStore) Put(_ context.Context, rec iface.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[keyFromRecord(rec)] = rec
	return nil
}

func (m *MemoryStore) GetLatest(_ context.Context, namespace, name string) (iface.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest iface.Record
	var found bool
	for _, rec := range m.items {
		if rec.Namespace == namespace && rec.Name == name {
			if !found || rec.Version > latest.Version {
				latest = rec
				found = true
			}
		}
	}
	if !found {
		return iface.Record{}, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) GetVersion(_ context.Context, namespace, name, version string) (iface.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.items[namespace+"|"+name+"|"+version]
	if !ok {
		return iface.Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Delete(_ context.Context, namespace, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.items {
		if rec.Namespace == namespace && rec.Name == name {
			delete(m.items, k)
		}
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, namespace, name string) ([]iface.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []iface.Record
	for _, rec := range m.items {
		if namespace != "" && rec.Namespace != namespace {
			continue
		}
		if name != "" && rec.Name != name {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func keyFromRecord(rec iface.Record) string {
	return rec.Namespace + "|" + rec.Name + "|" + rec.Version
}
