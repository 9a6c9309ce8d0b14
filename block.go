package featurechain

import (
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/loomnetwork/go-loom/types"

	"github.com/loomnetwork/featurechain/features"
)

// BlockHeader carries the only consensus data the feature subsystem adds to a block: the list of
// features the block activates.
type BlockHeader struct {
	ChainID     string
	Height      int64
	Time        int64
	Previous    []byte
	NewFeatures []features.Digest
}

type Block struct {
	Header  BlockHeader
	Actions []*Action
}

type blockRecord struct {
	ChainID     string
	Height      uint64
	Time        uint64
	Previous    []byte
	NewFeatures []features.Digest
	Actions     []actionRecord
}

// Hash returns the Keccak-256 hash of the RLP encoded block.
func (b *Block) Hash() []byte {
	rec := blockRecord{
		ChainID:     b.Header.ChainID,
		Height:      uint64(b.Header.Height),
		Time:        uint64(b.Header.Time),
		Previous:    b.Header.Previous,
		NewFeatures: b.Header.NewFeatures,
		Actions:     make([]actionRecord, 0, len(b.Actions)),
	}
	for _, a := range b.Actions {
		rec.Actions = append(rec.Actions, a.record())
	}
	enc, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256(enc)
}

func (b *Block) HashString() string {
	return hex.EncodeToString(b.Hash())
}

func (b *Block) BlockTime() time.Time {
	return time.Unix(b.Header.Time, 0)
}

func (b *Block) loomHeader() types.BlockHeader {
	return types.BlockHeader{
		ChainID: b.Header.ChainID,
		Height:  b.Header.Height,
		Time:    b.Header.Time,
		NumTxs:  int32(len(b.Actions)),
		LastBlockID: types.BlockID{
			Hash: b.Header.Previous,
		},
	}
}

func genesisBlock(chainID string, genesisTime time.Time) *Block {
	return &Block{
		Header: BlockHeader{
			ChainID: chainID,
			Height:  0,
			Time:    genesisTime.Unix(),
		},
	}
}
