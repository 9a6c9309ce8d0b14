package activation

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/loomnetwork/go-loom/util"
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/store"
)

var (
	activatedPrefix     = []byte("activated")
	activationSeqPrefix = []byte("activation-seq")
	activationCountKey  = []byte("activation-count")
)

// Activation is a single entry in the activation history.
type Activation struct {
	Digest features.Digest
	Height int64
}

type activationRecord struct {
	Height uint64
	Seq    uint64
}

func activatedKey(d features.Digest) []byte {
	return util.PrefixKey(activatedPrefix, d.Bytes())
}

func seqKey(prefix []byte, seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return util.PrefixKey(prefix, b[:])
}

func readCounter(kv store.KVReader, key []byte) uint64 {
	data := kv.Get(key)
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

func writeCounter(kv store.KVWriter, key []byte, n uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	kv.Set(key, b[:])
}

// History is the append-only record of activated features. Entries are never removed, the only
// way to undo an activation is to rebuild the branch state from an earlier block.
type History struct {
	kv      store.KVStore
	catalog *features.Catalog
}

func NewHistory(kv store.KVStore, catalog *features.Catalog) *History {
	return &History{
		kv:      kv,
		catalog: catalog,
	}
}

// IsActive checks if the feature with the given digest has been activated.
func (h *History) IsActive(d features.Digest) bool {
	return h.kv.Has(activatedKey(d))
}

// IsBuiltinActive checks if the given builtin feature has been activated, always false for
// builtins the catalog doesn't know about.
func (h *History) IsBuiltinActive(tag features.BuiltinFeature) bool {
	d, ok := h.catalog.LookupBuiltin(tag)
	if !ok {
		return false
	}
	return h.IsActive(d)
}

// ActivationHeight returns the height of the block that activated the given feature.
func (h *History) ActivationHeight(d features.Digest) (int64, bool) {
	rec, err := h.record(d)
	if err != nil || rec == nil {
		return 0, false
	}
	return int64(rec.Height), true
}

func (h *History) record(d features.Digest) (*activationRecord, error) {
	data := h.kv.Get(activatedKey(d))
	if len(data) == 0 {
		return nil, nil
	}
	var rec activationRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "corrupt activation record for %s", d)
	}
	return &rec, nil
}

// Len returns the number of activated features.
func (h *History) Len() int {
	return int(readCounter(h.kv, activationCountKey))
}

// Activations returns the full history in activation order.
func (h *History) Activations() ([]Activation, error) {
	entries := h.kv.Range(activationSeqPrefix)
	activations := make([]Activation, 0, len(entries))
	for _, entry := range entries {
		d, err := features.DigestFromBytes(entry.Value)
		if err != nil {
			return nil, errors.Wrap(err, "corrupt activation history")
		}
		height, ok := h.ActivationHeight(d)
		if !ok {
			return nil, errors.Errorf("activation history is missing the record for %s", d)
		}
		activations = append(activations, Activation{Digest: d, Height: height})
	}
	return activations, nil
}

// ActiveDigests returns the digests of all the activated features in activation order.
func (h *History) ActiveDigests() []features.Digest {
	entries := h.kv.Range(activationSeqPrefix)
	digests := make([]features.Digest, 0, len(entries))
	for _, entry := range entries {
		if d, err := features.DigestFromBytes(entry.Value); err == nil {
			digests = append(digests, d)
		}
	}
	return digests
}

func (h *History) append(d features.Digest, height int64) error {
	if h.IsActive(d) {
		return features.AlreadyActivatedError(d)
	}
	seq := readCounter(h.kv, activationCountKey)
	data, err := rlp.EncodeToBytes(&activationRecord{Height: uint64(height), Seq: seq})
	if err != nil {
		return err
	}
	h.kv.Set(activatedKey(d), data)
	h.kv.Set(seqKey(activationSeqPrefix, seq), d.Bytes())
	writeCounter(h.kv, activationCountKey, seq+1)
	return nil
}
