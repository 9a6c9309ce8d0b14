package store

import (
	"bytes"

	"github.com/loomnetwork/go-loom/plugin"
)

// MemStore is a KVStore backed by a map. It's used for speculative branches and tests.
type MemStore struct {
	store map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{
		store: make(map[string][]byte),
	}
}

// Get returns nil iff key doesn't exist. Panics on nil key.
func (m *MemStore) Get(key []byte) []byte {
	return m.store[string(key)]
}

// Has checks if a key exists.
func (m *MemStore) Has(key []byte) bool {
	_, ok := m.store[string(key)]
	return ok
}

// Set sets the key. Panics on nil key.
func (m *MemStore) Set(key, value []byte) {
	if key == nil {
		panic("MemStore.Set: nil key")
	}
	m.store[string(key)] = value
}

// Delete deletes the key. Panics on nil key.
func (m *MemStore) Delete(key []byte) {
	if key == nil {
		panic("MemStore.Delete: nil key")
	}
	delete(m.store, string(key))
}

func (m *MemStore) Range(prefix []byte) plugin.RangeData {
	raw := rangePrefix(prefix)
	ret := make(plugin.RangeData, 0)
	for key, value := range m.store {
		if bytes.HasPrefix([]byte(key), raw) {
			ret = append(ret, &plugin.RangeEntry{
				Key:   []byte(key[len(raw):]),
				Value: value,
			})
		}
	}
	return sortRange(ret)
}

// Clone returns a deep copy of the store, writes to the copy are never visible in the original.
func (m *MemStore) Clone() *MemStore {
	clone := NewMemStore()
	for k, v := range m.store {
		value := make([]byte, len(v))
		copy(value, v)
		clone.store[k] = value
	}
	return clone
}

func (m *MemStore) Len() int {
	return len(m.store)
}
