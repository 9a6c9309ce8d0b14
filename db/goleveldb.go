package db

import (
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	dbm "github.com/tendermint/tendermint/libs/db"

	"github.com/loomnetwork/featurechain/log"
)

// GoLevelDB stores the block log in <dir>/<name>.db.
type GoLevelDB struct {
	*dbm.GoLevelDB
}

var _ DB = &GoLevelDB{}

func LoadGoLevelDB(name, dir string, cacheSizeMeg int) (*GoLevelDB, error) {
	ldb, err := dbm.NewGoLevelDBWithOpts(name, dir, &opt.Options{
		BlockCacheCapacity: cacheSizeMeg * opt.MiB,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("Opened block log", "backend", GoLevelDBBackend, "name", name, "dir", dir)
	return &GoLevelDB{GoLevelDB: ldb}, nil
}

// Compact compacts the whole key range.
func (g *GoLevelDB) Compact() error {
	return g.DB().CompactRange(util.Range{})
}

func (g *GoLevelDB) Property(name string) (string, error) {
	return g.DB().GetProperty(name)
}
