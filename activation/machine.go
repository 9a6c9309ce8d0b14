package activation

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/store"
)

// Status is the state of a block's activation list.
type Status int

const (
	// Collecting means the activation list is still being assembled.
	Collecting Status = iota
	// Validating means the list was validated successfully and is waiting to be committed.
	Validating
	// Committed means the features in the list are now active.
	Committed
	// Rejected means the list failed validation, nothing was changed.
	Rejected
)

func (s Status) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Validating:
		return "validating"
	case Committed:
		return "committed"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

var (
	// ErrInvalidTransition is returned when an operation isn't allowed in the current status.
	ErrInvalidTransition = errors.New("[Activation] invalid activation list transition")
	// ErrNilBypass is returned by ProposeWithBypass when no bypass capability is provided.
	ErrNilBypass = errors.New("[Activation] missing bypass capability")
)

// Machine validates & commits the activation lists of a single chain branch. The branch owns the
// underlying store, the machine keeps no state of its own so rebuilding a branch from its blocks
// always yields the same history.
type Machine struct {
	catalog  *features.Catalog
	resolver *features.Resolver
	store    store.AtomicKVStore
	history  *History
	ledger   *PreactivationLedger
	logger   log.Logger
}

func NewMachine(catalog *features.Catalog, kv store.KVStore, logger log.Logger) *Machine {
	if logger == nil {
		logger = log.Root
	}
	atomic := store.WrapAtomic(kv)
	history := NewHistory(atomic, catalog)
	return &Machine{
		catalog:  catalog,
		resolver: features.NewResolver(catalog),
		store:    atomic,
		history:  history,
		ledger:   NewPreactivationLedger(atomic, catalog, history),
		logger:   logger.With("module", "activation"),
	}
}

func (m *Machine) Catalog() *features.Catalog {
	return m.catalog
}

func (m *Machine) History() *History {
	return m.history
}

func (m *Machine) Ledger() *PreactivationLedger {
	return m.ledger
}

// Begin starts collecting the activation list of the block at the given height.
func (m *Machine) Begin(height int64, blockTime time.Time) *BlockActivation {
	return &BlockActivation{
		machine:   m,
		height:    height,
		blockTime: blockTime,
		bypassed:  make(map[features.Digest]bool),
		status:    Collecting,
	}
}

// BlockActivation is the activation list of one block moving through
// Collecting -> Validating -> Committed, or Collecting -> Rejected.
type BlockActivation struct {
	machine   *Machine
	height    int64
	blockTime time.Time
	proposed  []features.Digest
	bypassed  map[features.Digest]bool
	status    Status
	err       error
}

func (b *BlockActivation) Height() int64 {
	return b.height
}

func (b *BlockActivation) Status() Status {
	return b.status
}

// Err returns the validation error of a rejected list.
func (b *BlockActivation) Err() error {
	return b.err
}

// Proposed returns a copy of the activation list.
func (b *BlockActivation) Proposed() []features.Digest {
	out := make([]features.Digest, len(b.proposed))
	copy(out, b.proposed)
	return out
}

// Propose appends digests to the activation list.
func (b *BlockActivation) Propose(digests ...features.Digest) error {
	if b.status != Collecting {
		return errors.Wrapf(ErrInvalidTransition, "can't propose features while %s", b.status)
	}
	b.proposed = append(b.proposed, digests...)
	return nil
}

// ProposeWithBypass appends digests that don't need to be preactivated. Only block producers
// bootstrapping a chain hold a Bypass.
func (b *BlockActivation) ProposeWithBypass(bypass *Bypass, digests ...features.Digest) error {
	if bypass == nil {
		return ErrNilBypass
	}
	if err := b.Propose(digests...); err != nil {
		return err
	}
	for _, d := range digests {
		b.bypassed[d] = true
	}
	b.machine.logger.Info("Proposed protocol features without preactivation",
		"height", b.height, "count", len(digests), "reason", bypass.Reason())
	return nil
}

// Validate checks the whole activation list, if any digest fails the list is rejected as a unit.
func (b *BlockActivation) Validate() (err error) {
	if b.status != Collecting {
		return errors.Wrapf(ErrInvalidTransition, "can't validate while %s", b.status)
	}
	begin := time.Now()
	defer func() {
		observeValidation(begin, err)
	}()

	m := b.machine
	if _, err = m.resolver.ValidateActivations(b.proposed, m.history, b.blockTime); err != nil {
		return b.reject(err)
	}
	for _, d := range b.proposed {
		if m.ledger.IsPending(d) || b.bypassed[d] {
			continue
		}
		if desc, _ := m.catalog.Lookup(d); !desc.PreactivationRequired() {
			continue
		}
		err = features.UnauthorizedBypassError(d)
		return b.reject(err)
	}
	b.status = Validating
	return nil
}

func (b *BlockActivation) reject(err error) error {
	b.status = Rejected
	b.err = err
	b.machine.logger.Error("Rejected block activation list", "height", b.height, "err", err)
	return err
}

// Commit appends the validated list to the activation history (in list order) and drains the
// matching preactivations. Either everything is written or nothing is.
func (b *BlockActivation) Commit() error {
	if b.status != Validating {
		return errors.Wrapf(ErrInvalidTransition, "can't commit while %s", b.status)
	}
	m := b.machine
	tx := m.store.BeginTx()
	history := NewHistory(tx, m.catalog)
	ledger := NewPreactivationLedger(tx, m.catalog, history)
	for _, d := range b.proposed {
		if err := history.append(d, b.height); err != nil {
			tx.Rollback()
			return b.reject(err)
		}
	}
	if err := ledger.drain(b.proposed); err != nil {
		tx.Rollback()
		return b.reject(err)
	}
	tx.Commit()
	b.status = Committed

	for _, d := range b.proposed {
		desc, _ := m.catalog.Lookup(d)
		m.logger.Info("Activated protocol feature", "name", desc.Name(), "digest", d.String(), "height", b.height)
	}
	return nil
}

// Apply validates & commits an activation list in one step, this is the path used when
// validating blocks received from other nodes.
func (m *Machine) Apply(height int64, blockTime time.Time, proposed []features.Digest) error {
	b := m.Begin(height, blockTime)
	if err := b.Propose(proposed...); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	return b.Commit()
}
