package main

import (
	"time"

	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain"
	"github.com/loomnetwork/featurechain/config"
	"github.com/loomnetwork/featurechain/db"
	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/store"
)

// node is a single block producer: the controller of its branch plus the block log it's
// rebuilt from on startup.
type node struct {
	cfg    *config.Config
	db     db.DB
	blocks *featurechain.BlockStore
	chain  *featurechain.Controller
	logger log.Logger

	// features to preactivate in the next block
	preactivations []features.Digest
}

func openNode(cfg *config.Config, logger log.Logger) (*node, error) {
	catalog, err := cfg.LoadCatalog()
	if err != nil {
		return nil, err
	}
	chain, err := featurechain.NewController(catalog, nil, featurechain.Options{
		ChainID:           cfg.ChainID,
		GenesisTime:       cfg.GenesisTimestamp(),
		BlockInterval:     cfg.BlockIntervalDuration(),
		AllowBypass:       cfg.Features.AllowBypass,
		SnapshotCacheSize: cfg.SnapshotCacheSize,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	database, err := db.LoadDB(cfg.DBBackend, cfg.DBName, cfg.DBPath(), cfg.DBCacheSizeMeg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", cfg.DBName)
	}
	n := &node{
		cfg:    cfg,
		db:     database,
		blocks: featurechain.NewBlockStore(store.NewDBStore(database)),
		chain:  chain,
		logger: logger,
	}
	if err := n.replay(); err != nil {
		database.Close()
		return nil, err
	}
	return n, nil
}

func (n *node) replay() error {
	blocks, err := n.blocks.LoadBlocks()
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := n.chain.ReplayBlock(b); err != nil {
			return errors.Wrapf(err, "failed to replay block %d", b.Header.Height)
		}
	}
	if len(blocks) > 0 {
		n.logger.Info("Replayed block log", "height", n.chain.Head().Header.Height)
	}
	return nil
}

func (n *node) lookup(ids []string) ([]features.Digest, error) {
	digests := make([]features.Digest, 0, len(ids))
	for _, id := range ids {
		desc, ok := n.chain.Catalog().Find(id)
		if !ok {
			return nil, errors.Errorf("unknown protocol feature %s", id)
		}
		digests = append(digests, desc.Digest())
	}
	return digests, nil
}

// produceBlock produces the next block at the given time (or one second after the head if the
// clock is behind), then persists it.
func (n *node) produceBlock(now time.Time) (*featurechain.Block, error) {
	if now.Unix() > n.chain.Head().Header.Time {
		if err := n.chain.StartBlock(now); err != nil {
			n.chain.ClearScheduled()
			return nil, errors.Wrap(err, "failed to start block")
		}
	}
	for _, d := range n.preactivations {
		if _, err := n.chain.PushAction(featurechain.NewPreactivateAction(n.cfg.ChainID, d)); err != nil {
			n.logger.Error("Failed to preactivate protocol feature", "digest", d.String(), "err", err)
		}
	}
	n.preactivations = nil
	b, err := n.chain.ProduceBlock()
	if err != nil {
		n.chain.ClearScheduled()
		return nil, err
	}
	if err := n.blocks.SaveBlock(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (n *node) close() {
	n.db.Close()
}
