package store

import (
	"bytes"
	"sort"

	"github.com/loomnetwork/go-loom/plugin"
	"github.com/loomnetwork/go-loom/util"
)

// KVReader interface for reading data out of a store
type KVReader interface {
	// Get returns nil iff key doesn't exist. Panics on nil key.
	Get(key []byte) []byte

	// Range returns all the entries under the given prefix, sorted by key, with the prefix stripped
	// from the returned keys.
	Range(prefix []byte) plugin.RangeData

	// Has checks if a key exists.
	Has(key []byte) bool
}

type KVWriter interface {
	// Set sets the key. Panics on nil key.
	Set(key, value []byte)

	// Delete deletes the key. Panics on nil key.
	Delete(key []byte)
}

type KVStore interface {
	KVReader
	KVWriter
}

// KVStoreTx buffers writes until Commit is called, Rollback discards them.
type KVStoreTx interface {
	KVStore
	Commit()
	Rollback()
}

type AtomicKVStore interface {
	KVStore
	BeginTx() KVStoreTx
}

// rangePrefix returns the raw key prefix matched by Range(prefix).
func rangePrefix(prefix []byte) []byte {
	return util.PrefixKey(prefix, []byte{})
}

type rangeEntries plugin.RangeData

func (r rangeEntries) Len() int           { return len(r) }
func (r rangeEntries) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r rangeEntries) Less(i, j int) bool { return bytes.Compare(r[i].Key, r[j].Key) < 0 }

func sortRange(data plugin.RangeData) plugin.RangeData {
	sort.Sort(rangeEntries(data))
	return data
}

// pendingWrite is a buffered Set, or a Delete when deleted is true.
type pendingWrite struct {
	key     []byte
	value   []byte
	deleted bool
}

// txBuffer holds the writes of a transaction in memory until Commit. Reads see the buffered
// writes on top of the parent store.
type txBuffer struct {
	parent  KVStore
	journal []pendingWrite
	// index of the latest journal entry for each key
	latest map[string]int
}

func newTxBuffer(parent KVStore) *txBuffer {
	tx := &txBuffer{parent: parent}
	tx.Rollback()
	return tx
}

func (tx *txBuffer) record(w pendingWrite) {
	tx.latest[string(w.key)] = len(tx.journal)
	tx.journal = append(tx.journal, w)
}

func (tx *txBuffer) lookup(key []byte) (pendingWrite, bool) {
	i, ok := tx.latest[string(key)]
	if !ok {
		return pendingWrite{}, false
	}
	return tx.journal[i], true
}

func (tx *txBuffer) Set(key, value []byte) {
	tx.record(pendingWrite{key: key, value: value})
}

func (tx *txBuffer) Delete(key []byte) {
	tx.record(pendingWrite{key: key, deleted: true})
}

func (tx *txBuffer) Get(key []byte) []byte {
	if w, ok := tx.lookup(key); ok {
		return w.value
	}
	return tx.parent.Get(key)
}

func (tx *txBuffer) Has(key []byte) bool {
	if w, ok := tx.lookup(key); ok {
		return !w.deleted
	}
	return tx.parent.Has(key)
}

// Range merges the buffered writes with the contents of the parent store.
func (tx *txBuffer) Range(prefix []byte) plugin.RangeData {
	merged := make(map[string][]byte)
	for _, entry := range tx.parent.Range(prefix) {
		merged[string(entry.Key)] = entry.Value
	}
	raw := rangePrefix(prefix)
	for key, i := range tx.latest {
		if !bytes.HasPrefix([]byte(key), raw) {
			continue
		}
		suffix := key[len(raw):]
		if w := tx.journal[i]; w.deleted {
			delete(merged, suffix)
		} else {
			merged[suffix] = w.value
		}
	}
	entries := make(plugin.RangeData, 0, len(merged))
	for k, v := range merged {
		entries = append(entries, &plugin.RangeEntry{Key: []byte(k), Value: v})
	}
	return sortRange(entries)
}

// Commit writes the final value of every touched key to the parent, in the order the keys were
// last written.
func (tx *txBuffer) Commit() {
	for i, w := range tx.journal {
		if tx.latest[string(w.key)] != i {
			continue
		}
		if w.deleted {
			tx.parent.Delete(w.key)
		} else {
			tx.parent.Set(w.key, w.value)
		}
	}
	tx.Rollback()
}

func (tx *txBuffer) Rollback() {
	tx.journal = nil
	tx.latest = make(map[string]int)
}

type atomicWrapStore struct {
	KVStore
}

func (a *atomicWrapStore) BeginTx() KVStoreTx {
	return newTxBuffer(a.KVStore)
}

// WrapAtomic returns an AtomicKVStore that buffers transactions in memory before writing them to
// the given store.
func WrapAtomic(store KVStore) AtomicKVStore {
	if atomic, ok := store.(AtomicKVStore); ok {
		return atomic
	}
	return &atomicWrapStore{
		KVStore: store,
	}
}

// prefixStore maps every key into the given prefix of the parent store.
type prefixStore struct {
	prefix []byte
	parent KVStore
}

// PrefixKVStore returns a view of the part of the store under prefix, Range on the view only
// sees entries under the prefix.
func PrefixKVStore(prefix []byte, parent KVStore) KVStore {
	return &prefixStore{prefix: prefix, parent: parent}
}

func (p *prefixStore) key(k []byte) []byte {
	return util.PrefixKey(p.prefix, k)
}

func (p *prefixStore) Get(key []byte) []byte {
	return p.parent.Get(p.key(key))
}

func (p *prefixStore) Has(key []byte) bool {
	return p.parent.Has(p.key(key))
}

func (p *prefixStore) Range(prefix []byte) plugin.RangeData {
	return p.parent.Range(p.key(prefix))
}

func (p *prefixStore) Set(key, value []byte) {
	p.parent.Set(p.key(key), value)
}

func (p *prefixStore) Delete(key []byte) {
	p.parent.Delete(p.key(key))
}

// readOnlyStore adapts a KVReader to the KVStore interface, any write panics.
type readOnlyStore struct {
	KVReader
}

// NewReadOnlyStore returns a view of r that can be passed where a KVStore is expected, the view
// panics on Set & Delete.
func NewReadOnlyStore(r KVReader) KVStore {
	return readOnlyStore{KVReader: r}
}

func (readOnlyStore) Set(key, value []byte) {
	panic("store: Set called on a read-only store")
}

func (readOnlyStore) Delete(key []byte) {
	panic("store: Delete called on a read-only store")
}
