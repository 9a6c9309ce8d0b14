package db

import (
	"github.com/pkg/errors"
	dbm "github.com/tendermint/tendermint/libs/db"
)

// MemDB keeps the block log in memory, a node using it starts from genesis every time.
type MemDB struct {
	*dbm.MemDB
}

var _ DB = &MemDB{}

func LoadMemDB() *MemDB {
	return &MemDB{MemDB: dbm.NewMemDB()}
}

func (m *MemDB) Compact() error {
	return nil
}

// Property looks the name up in the stats reported by the in-memory database.
func (m *MemDB) Property(name string) (string, error) {
	if v, ok := m.Stats()[name]; ok {
		return v, nil
	}
	return "", errors.Wrap(ErrUnknownProperty, name)
}
