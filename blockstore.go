package featurechain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/loomnetwork/go-loom"
	"github.com/loomnetwork/go-loom/util"
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/store"
)

var blockPrefix = []byte("block")

func blockKey(height int64) []byte {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], uint64(height))
	return util.PrefixKey(blockPrefix, h[:])
}

type storedAction struct {
	Contract   loom.Address
	Name       string
	Authorizer loom.Address
	Data       []byte
}

type storedBlock struct {
	ChainID     string
	Height      uint64
	Time        uint64
	Previous    []byte
	NewFeatures []features.Digest
	Actions     []storedAction
}

// BlockStore persists the blocks of the current branch so a node can rebuild its state on restart.
// Genesis isn't stored, it's derived from the node config.
type BlockStore struct {
	kv store.KVStore
}

func NewBlockStore(kv store.KVStore) *BlockStore {
	return &BlockStore{kv: kv}
}

// SaveBlock stores the given block, replacing any block previously stored at the same height.
func (s *BlockStore) SaveBlock(b *Block) error {
	rec := storedBlock{
		ChainID:     b.Header.ChainID,
		Height:      uint64(b.Header.Height),
		Time:        uint64(b.Header.Time),
		Previous:    b.Header.Previous,
		NewFeatures: b.Header.NewFeatures,
		Actions:     make([]storedAction, 0, len(b.Actions)),
	}
	for _, a := range b.Actions {
		rec.Actions = append(rec.Actions, storedAction{
			Contract:   a.Contract,
			Name:       a.Name,
			Authorizer: a.Authorizer,
			Data:       a.Data,
		})
	}
	enc, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return errors.Wrapf(err, "failed to encode block %d", b.Header.Height)
	}
	s.kv.Set(blockKey(b.Header.Height), enc)
	return nil
}

// Truncate deletes every block above the given height, used when the node switches to another fork.
func (s *BlockStore) Truncate(height int64) {
	for _, entry := range s.kv.Range(blockPrefix) {
		if int64(binary.BigEndian.Uint64(entry.Key)) > height {
			s.kv.Delete(util.PrefixKey(blockPrefix, entry.Key))
		}
	}
}

// LoadBlocks returns the stored blocks ordered by height.
func (s *BlockStore) LoadBlocks() ([]*Block, error) {
	entries := s.kv.Range(blockPrefix)
	blocks := make([]*Block, 0, len(entries))
	for _, entry := range entries {
		var rec storedBlock
		if err := rlp.DecodeBytes(entry.Value, &rec); err != nil {
			return nil, errors.Wrap(err, "failed to decode stored block")
		}
		b := &Block{
			Header: BlockHeader{
				ChainID:     rec.ChainID,
				Height:      int64(rec.Height),
				Time:        int64(rec.Time),
				Previous:    rec.Previous,
				NewFeatures: rec.NewFeatures,
			},
			Actions: make([]*Action, 0, len(rec.Actions)),
		}
		for _, a := range rec.Actions {
			b.Actions = append(b.Actions, &Action{
				Contract:   a.Contract,
				Name:       a.Name,
				Authorizer: a.Authorizer,
				Data:       a.Data,
			})
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}
