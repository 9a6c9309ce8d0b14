package db

import (
	"github.com/pkg/errors"
	dbm "github.com/tendermint/tendermint/libs/db"
)

const (
	GoLevelDBBackend = "goleveldb"
	MemDBBackend     = "memdb"
)

// DB is the database a node keeps its block log in.
type DB interface {
	dbm.DB
	// Compact reclaims the space held by deleted and overwritten keys.
	Compact() error
	// Property returns a backend specific property, e.g. leveldb.stats.
	Property(name string) (string, error)
}

// ErrUnknownProperty is returned by Property for properties the backend doesn't report.
var ErrUnknownProperty = errors.New("unknown db property")

// LoadDB opens the named database with the given backend, dir is ignored by the memdb backend.
func LoadDB(backend, name, dir string, cacheSizeMeg int) (DB, error) {
	switch backend {
	case GoLevelDBBackend:
		return LoadGoLevelDB(name, dir, cacheSizeMeg)
	case MemDBBackend:
		return LoadMemDB(), nil
	}
	return nil, errors.Errorf("unknown db backend: %s", backend)
}
