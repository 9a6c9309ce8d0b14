package state

import (
	"context"
	"time"

	"github.com/loomnetwork/go-loom/plugin"
	"github.com/loomnetwork/go-loom/types"

	"github.com/loomnetwork/featurechain/activation"
	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/store"
)

// FeaturesPrefix is the store prefix under which the activation history & the preactivation
// ledger of a branch are stored.
var FeaturesPrefix = []byte("features")

// ReadOnlyState is the view of a chain branch available to the execution engine and the
// authorization subsystem.
type ReadOnlyState interface {
	store.KVReader
	Block() types.BlockHeader
	Catalog() *features.Catalog
	IsActive(d features.Digest) bool
	IsBuiltinActive(tag features.BuiltinFeature) bool
	ActivationHeight(d features.Digest) (int64, bool)
	IsPending(d features.Digest) bool
	Activations() ([]activation.Activation, error)
	Pending() ([]activation.PendingFeature, error)
}

type State interface {
	ReadOnlyState
	store.KVWriter
	Context() context.Context
	WithContext(ctx context.Context) State
	WithPrefix(prefix []byte) State
	// Preactivate records a preactivation made by the action at the given index of the current block.
	Preactivate(d features.Digest, actionIndex uint32) error
	Machine() *activation.Machine
}

type StoreState struct {
	ctx     context.Context
	store   store.KVStore
	block   types.BlockHeader
	machine *activation.Machine
}

var _ = State(&StoreState{})

// NewStoreState returns the state of a branch backed by the given store, activation data lives
// under FeaturesPrefix, everything else in the store belongs to the application.
func NewStoreState(
	ctx context.Context,
	kv store.KVStore,
	block types.BlockHeader,
	catalog *features.Catalog,
	logger log.Logger,
) *StoreState {
	return &StoreState{
		ctx:     ctx,
		store:   kv,
		block:   block,
		machine: activation.NewMachine(catalog, store.PrefixKVStore(FeaturesPrefix, kv), logger),
	}
}

func (s *StoreState) Range(prefix []byte) plugin.RangeData {
	return s.store.Range(prefix)
}

func (s *StoreState) Get(key []byte) []byte {
	return s.store.Get(key)
}

func (s *StoreState) Has(key []byte) bool {
	return s.store.Has(key)
}

func (s *StoreState) Set(key, value []byte) {
	s.store.Set(key, value)
}

func (s *StoreState) Delete(key []byte) {
	s.store.Delete(key)
}

func (s *StoreState) Block() types.BlockHeader {
	return s.block
}

// BlockTime returns the time of the current block.
func (s *StoreState) BlockTime() time.Time {
	return time.Unix(s.block.Time, 0)
}

func (s *StoreState) Context() context.Context {
	return s.ctx
}

func (s *StoreState) Machine() *activation.Machine {
	return s.machine
}

func (s *StoreState) Catalog() *features.Catalog {
	return s.machine.Catalog()
}

func (s *StoreState) IsActive(d features.Digest) bool {
	return s.machine.History().IsActive(d)
}

func (s *StoreState) IsBuiltinActive(tag features.BuiltinFeature) bool {
	return s.machine.History().IsBuiltinActive(tag)
}

func (s *StoreState) ActivationHeight(d features.Digest) (int64, bool) {
	return s.machine.History().ActivationHeight(d)
}

func (s *StoreState) Activations() ([]activation.Activation, error) {
	return s.machine.History().Activations()
}

func (s *StoreState) IsPending(d features.Digest) bool {
	return s.machine.Ledger().IsPending(d)
}

func (s *StoreState) Pending() ([]activation.PendingFeature, error) {
	return s.machine.Ledger().Pending()
}

func (s *StoreState) Preactivate(d features.Digest, actionIndex uint32) error {
	return s.machine.Ledger().Preactivate(d, activation.RecordedAt{
		Height:      s.block.Height,
		ActionIndex: actionIndex,
		BlockTime:   s.block.Time,
	})
}

// WithBlock returns a state for the given block that shares the store of this one.
func (s *StoreState) WithBlock(block types.BlockHeader) *StoreState {
	return &StoreState{
		ctx:     s.ctx,
		store:   s.store,
		block:   block,
		machine: s.machine,
	}
}

func (s *StoreState) WithContext(ctx context.Context) State {
	return &StoreState{
		ctx:     ctx,
		store:   s.store,
		block:   s.block,
		machine: s.machine,
	}
}

// WithPrefix returns a state whose KV operations are confined to the given prefix, feature
// queries are unaffected.
func (s *StoreState) WithPrefix(prefix []byte) State {
	return &StoreState{
		ctx:     s.ctx,
		store:   store.PrefixKVStore(prefix, s.store),
		block:   s.block,
		machine: s.machine,
	}
}
