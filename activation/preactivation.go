package activation

import (
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/loomnetwork/go-loom/util"
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/store"
)

var (
	preactivatedPrefix     = []byte("preactivated")
	preactivationSeqPrefix = []byte("preactivation-seq")
	preactivationCountKey  = []byte("preactivation-count")
)

// RecordedAt identifies the action that preactivated a feature.
type RecordedAt struct {
	Height      int64
	ActionIndex uint32
	// BlockTime is the time of the block at Height, in unix seconds.
	BlockTime int64
}

// PendingFeature is a preactivated feature that's waiting to be included in a block.
type PendingFeature struct {
	Digest features.Digest
	RecordedAt
}

type pendingRecord struct {
	Height      uint64
	ActionIndex uint32
	Seq         uint64
	BlockTime   uint64
}

func preactivatedKey(d features.Digest) []byte {
	return util.PrefixKey(preactivatedPrefix, d.Bytes())
}

// PreactivationLedger tracks the features a privileged account has asked to activate. Recording
// a preactivation doesn't change any consensus rules, the feature only becomes active once a
// block that lists it is committed.
type PreactivationLedger struct {
	kv      store.KVStore
	catalog *features.Catalog
	history *History
}

func NewPreactivationLedger(kv store.KVStore, catalog *features.Catalog, history *History) *PreactivationLedger {
	return &PreactivationLedger{
		kv:      kv,
		catalog: catalog,
		history: history,
	}
}

// Preactivate records the intent to activate the given feature in an upcoming block. A feature is
// only accepted if the next block could activate it: it's recognized, not active or pending yet,
// allowed at the time of the current block, and each of its dependencies is active or pending.
func (l *PreactivationLedger) Preactivate(d features.Digest, at RecordedAt) error {
	desc, ok := l.catalog.Lookup(d)
	if !ok {
		return features.UnrecognizedFeatureError(d)
	}
	if l.history.IsActive(d) {
		return features.AlreadyActivatedError(d)
	}
	if l.IsPending(d) {
		return features.AlreadyPreactivatedError(d)
	}
	if !desc.PreactivationRequired() {
		return features.ProducerOnlyError(d)
	}
	if blockTime := time.Unix(at.BlockTime, 0); !desc.ActivationAllowedAt(blockTime) {
		return features.TooEarlyError(d, desc.Subjective().EarliestAllowedActivationTime.Unix(), at.BlockTime)
	}
	for _, dep := range desc.Dependencies() {
		if !l.history.IsActive(dep) && !l.IsPending(dep) {
			return features.UnmetDependencyError(d, dep)
		}
	}

	// sequence numbers keep increasing even when entries are drained, only the relative order matters
	seq := readCounter(l.kv, preactivationCountKey)
	data, err := rlp.EncodeToBytes(&pendingRecord{
		Height:      uint64(at.Height),
		ActionIndex: at.ActionIndex,
		Seq:         seq,
		BlockTime:   uint64(at.BlockTime),
	})
	if err != nil {
		return err
	}
	l.kv.Set(preactivatedKey(d), data)
	l.kv.Set(seqKey(preactivationSeqPrefix, seq), d.Bytes())
	writeCounter(l.kv, preactivationCountKey, seq+1)
	return nil
}

// IsPending checks if the given feature has been preactivated but not activated yet.
func (l *PreactivationLedger) IsPending(d features.Digest) bool {
	return l.kv.Has(preactivatedKey(d))
}

// Pending returns the pending features in the order they were preactivated.
func (l *PreactivationLedger) Pending() ([]PendingFeature, error) {
	entries := l.kv.Range(preactivationSeqPrefix)
	pending := make([]PendingFeature, 0, len(entries))
	for _, entry := range entries {
		d, err := features.DigestFromBytes(entry.Value)
		if err != nil {
			return nil, errors.Wrap(err, "corrupt preactivation ledger")
		}
		data := l.kv.Get(preactivatedKey(d))
		if len(data) == 0 {
			return nil, errors.Errorf("preactivation ledger is missing the record for %s", d)
		}
		var rec pendingRecord
		if err := rlp.DecodeBytes(data, &rec); err != nil {
			return nil, errors.Wrapf(err, "corrupt preactivation record for %s", d)
		}
		pending = append(pending, PendingFeature{
			Digest: d,
			RecordedAt: RecordedAt{
				Height:      int64(rec.Height),
				ActionIndex: rec.ActionIndex,
				BlockTime:   int64(rec.BlockTime),
			},
		})
	}
	return pending, nil
}

// PendingDigests returns the digests of the pending features in the order they were preactivated.
func (l *PreactivationLedger) PendingDigests() ([]features.Digest, error) {
	pending, err := l.Pending()
	if err != nil {
		return nil, err
	}
	digests := make([]features.Digest, 0, len(pending))
	for _, p := range pending {
		digests = append(digests, p.Digest)
	}
	return digests, nil
}

// ClearAll discards every pending preactivation. It must only be used when a block producer throws
// away a block that hasn't been finalized yet, it's never part of normal block processing.
func (l *PreactivationLedger) ClearAll() {
	for _, entry := range l.kv.Range(preactivationSeqPrefix) {
		if d, err := features.DigestFromBytes(entry.Value); err == nil {
			l.kv.Delete(preactivatedKey(d))
		}
		l.kv.Delete(util.PrefixKey(preactivationSeqPrefix, entry.Key))
	}
}

// drain removes the given digests, digests that aren't pending are skipped.
func (l *PreactivationLedger) drain(digests []features.Digest) error {
	remove := make(map[features.Digest]bool, len(digests))
	for _, d := range digests {
		if l.IsPending(d) {
			remove[d] = true
		}
	}
	if len(remove) == 0 {
		return nil
	}
	for _, entry := range l.kv.Range(preactivationSeqPrefix) {
		d, err := features.DigestFromBytes(entry.Value)
		if err != nil {
			return errors.Wrap(err, "corrupt preactivation ledger")
		}
		if remove[d] {
			l.kv.Delete(util.PrefixKey(preactivationSeqPrefix, entry.Key))
			l.kv.Delete(preactivatedKey(d))
		}
	}
	return nil
}
