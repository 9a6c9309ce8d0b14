package store

import (
	"github.com/loomnetwork/go-loom/plugin"
	dbm "github.com/tendermint/tendermint/libs/db"
)

// DBStore persists a branch's state in a tendermint DB (goleveldb or memdb).
type DBStore struct {
	db dbm.DB
}

func NewDBStore(db dbm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Get(key []byte) []byte {
	return s.db.Get(key)
}

func (s *DBStore) Has(key []byte) bool {
	return s.db.Has(key)
}

func (s *DBStore) Set(key, value []byte) {
	s.db.Set(key, value)
}

func (s *DBStore) Delete(key []byte) {
	s.db.Delete(key)
}

func (s *DBStore) Range(prefix []byte) plugin.RangeData {
	raw := rangePrefix(prefix)
	ret := make(plugin.RangeData, 0)
	it := dbm.IteratePrefix(s.db, raw)
	defer it.Close()
	for ; it.Valid(); it.Next() {
		key := it.Key()
		value := it.Value()
		ret = append(ret, &plugin.RangeEntry{
			Key:   append([]byte{}, key[len(raw):]...),
			Value: append([]byte{}, value...),
		})
	}
	// the iterator already returns keys in ascending order
	return ret
}
