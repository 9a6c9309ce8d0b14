package featurechain

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/activation"
	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/state"
	"github.com/loomnetwork/featurechain/store"
)

var (
	ErrBlockInProgress = errors.New("[Controller] a block is already being produced")
	ErrNoPendingBlock  = errors.New("[Controller] no block is being produced")
	ErrInvalidBlock    = errors.New("[Controller] invalid block")
	ErrUnknownBlock    = errors.New("[Controller] unknown block")
	// ErrUnhandledPreactivations is returned for a block that doesn't activate every feature that
	// was preactivated before it.
	ErrUnhandledPreactivations = errors.New(
		"[Controller] There are pre-activated protocol features that were not activated at the start of this block",
	)
)

const (
	DefaultBlockInterval     = time.Second
	DefaultSnapshotCacheSize = 128
)

type Options struct {
	ChainID     string
	GenesisTime time.Time
	// BlockInterval is used to pick the time of blocks started implicitly by PushAction & ProduceBlock.
	BlockInterval time.Duration
	// AllowBypass enables ScheduleWithoutPreactivation, only test & bootstrap nodes should set it.
	AllowBypass       bool
	SnapshotCacheSize int
	Logger            log.Logger
}

type pendingBlock struct {
	kv    *store.MemStore
	block *Block
	// copy of kv taken after the last action, nil when an action changed kv since
	snapshot *store.MemStore
}

// Controller owns a single chain branch: the blocks accepted so far, the state after the last of
// them, and the block currently being produced (if any).
type Controller struct {
	mu sync.RWMutex

	opts    Options
	catalog *features.Catalog
	handler ActionHandler
	logger  log.Logger
	bypass  *activation.Bypass

	// features proposed for the next block, each must be preactivated unless the builtin
	// definition makes it producer-only
	proposed []features.Digest
	// features to activate in the next block without preactivation
	scheduled []features.Digest

	genesis   *store.MemStore
	head      *Block
	headStore *store.MemStore
	blocks    map[string]*Block
	snapshots *lru.Cache

	pending *pendingBlock
}

func NewController(catalog *features.Catalog, handler ActionHandler, opts Options) (*Controller, error) {
	if opts.ChainID == "" {
		opts.ChainID = "default"
	}
	if opts.BlockInterval <= 0 {
		opts.BlockInterval = DefaultBlockInterval
	}
	if opts.SnapshotCacheSize <= 0 {
		opts.SnapshotCacheSize = DefaultSnapshotCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Root
	}
	if handler == nil {
		handler = NewActionHandler()
	}
	snapshots, err := lru.New(opts.SnapshotCacheSize)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		opts:      opts,
		catalog:   catalog,
		handler:   handler,
		logger:    opts.Logger.With("module", "controller", "chain", opts.ChainID),
		genesis:   store.NewMemStore(),
		blocks:    make(map[string]*Block),
		snapshots: snapshots,
	}
	if opts.AllowBypass {
		if c.bypass, err = activation.NewBypass(true, "scheduled without preactivation"); err != nil {
			return nil, err
		}
	}
	genesis := genesisBlock(opts.ChainID, opts.GenesisTime)
	c.head = genesis
	c.headStore = c.genesis.Clone()
	c.blocks[genesis.HashString()] = genesis
	return c, nil
}

func (c *Controller) Catalog() *features.Catalog {
	return c.catalog
}

func (c *Controller) ChainID() string {
	return c.opts.ChainID
}

func (c *Controller) Head() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

func (c *Controller) newState(kv store.KVStore, b *Block) *state.StoreState {
	ctx := log.SetContext(context.Background(), c.logger)
	return state.NewStoreState(ctx, kv, b.loomHeader(), c.catalog, c.logger)
}

// readOnlyState returns a view of kv, which must never be written to again.
func (c *Controller) readOnlyState(kv *store.MemStore, b *Block) state.ReadOnlyState {
	return c.newState(store.NewReadOnlyStore(kv), b)
}

// HeadState returns a read-only view of the state after the last accepted block. The store of an
// accepted block is never modified, so the view stays valid after later blocks are accepted.
func (c *Controller) HeadState() state.ReadOnlyState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readOnlyState(c.headStore, c.head)
}

// PendingState returns a read-only view of the state of the block being produced, or of the head
// state if there's no such block. Actions pushed afterwards aren't visible in the view.
func (c *Controller) PendingState() state.ReadOnlyState {
	c.mu.RLock()
	if c.pending == nil {
		defer c.mu.RUnlock()
		return c.readOnlyState(c.headStore, c.head)
	}
	if snap := c.pending.snapshot; snap != nil {
		defer c.mu.RUnlock()
		return c.readOnlyState(snap, c.pending.block)
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return c.readOnlyState(c.headStore, c.head)
	}
	if c.pending.snapshot == nil {
		c.pending.snapshot = c.pending.kv.Clone()
	}
	return c.readOnlyState(c.pending.snapshot, c.pending.block)
}

func (c *Controller) IsBuiltinActive(tag features.BuiltinFeature) bool {
	return c.PendingState().IsBuiltinActive(tag)
}

func (c *Controller) IsActive(d features.Digest) bool {
	return c.PendingState().IsActive(d)
}

// ScheduleActivation adds features to the activation list of the next block started by this
// controller. Features that were preactivated are activated anyway, the others must be
// producer-only by their builtin definition or the block won't start.
func (c *Controller) ScheduleActivation(digests ...features.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proposed = append(c.proposed, digests...)
}

// ScheduleWithoutPreactivation adds features to the activation list of the next block started
// by this controller, bypassing preactivation.
func (c *Controller) ScheduleWithoutPreactivation(digests ...features.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bypass == nil {
		return activation.ErrBypassDisabled
	}
	c.scheduled = append(c.scheduled, digests...)
	return nil
}

// ClearScheduled drops every feature passed to ScheduleActivation or ScheduleWithoutPreactivation
// that hasn't been activated yet.
func (c *Controller) ClearScheduled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proposed = nil
	c.scheduled = nil
}

// nextBlockTime returns the time of the next block, block times have a resolution of one second.
func (c *Controller) nextBlockTime() time.Time {
	next := time.Unix(c.head.Header.Time, 0).Add(c.opts.BlockInterval)
	if next.Unix() <= c.head.Header.Time {
		next = time.Unix(c.head.Header.Time+1, 0)
	}
	return next
}

// StartBlock starts producing the next block. Every pending preactivation and every scheduled
// feature is activated at the start of the block, if any of them can't be activated no block is
// started and the chain state is left unchanged.
func (c *Controller) StartBlock(blockTime time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startBlock(blockTime)
}

func (c *Controller) startBlock(blockTime time.Time) error {
	if c.pending != nil {
		return ErrBlockInProgress
	}
	if blockTime.Unix() <= c.head.Header.Time {
		return errors.Wrapf(ErrInvalidBlock, "block time %d must be after %d", blockTime.Unix(), c.head.Header.Time)
	}
	block := &Block{
		Header: BlockHeader{
			ChainID:  c.opts.ChainID,
			Height:   c.head.Header.Height + 1,
			Time:     blockTime.Unix(),
			Previous: c.head.Hash(),
		},
	}
	kv := c.headStore.Clone()
	st := c.newState(kv, block)

	preactivated, err := st.Machine().Ledger().PendingDigests()
	if err != nil {
		return err
	}
	// pending features in preactivation order, then the scheduled ones, sorted so that
	// dependencies come first
	candidates := make([]features.Digest, 0, len(preactivated)+len(c.proposed)+len(c.scheduled))
	candidates = append(candidates, preactivated...)
	listed := make(map[features.Digest]bool, len(preactivated))
	for _, d := range preactivated {
		listed[d] = true
	}
	for _, d := range c.proposed {
		if !listed[d] {
			candidates = append(candidates, d)
		}
	}
	bypassed := make(map[features.Digest]bool, len(c.scheduled))
	for _, d := range c.scheduled {
		bypassed[d] = true
		candidates = append(candidates, d)
	}

	ba := st.Machine().Begin(block.Header.Height, blockTime)
	for _, d := range c.catalog.DependencyOrder(candidates) {
		if bypassed[d] {
			err = ba.ProposeWithBypass(c.bypass, d)
		} else {
			err = ba.Propose(d)
		}
		if err != nil {
			return err
		}
	}
	if err := ba.Validate(); err != nil {
		return err
	}
	if err := ba.Commit(); err != nil {
		return err
	}

	c.proposed = nil
	c.scheduled = nil
	block.Header.NewFeatures = ba.Proposed()
	c.pending = &pendingBlock{
		kv:    kv,
		block: block,
	}
	c.logger.Debug("Started block", "height", block.Header.Height, "features", len(block.Header.NewFeatures))
	return nil
}

// PushAction executes an action in the block being produced, starting a new block if necessary.
// A failed action leaves no trace in the block or its state.
func (c *Controller) PushAction(action *Action) (ActionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		if err := c.startBlock(c.nextBlockTime()); err != nil {
			return ActionResult{}, err
		}
	}
	if err := c.checkProducerPolicy(action); err != nil {
		return ActionResult{}, err
	}
	p := c.pending
	tx := store.WrapAtomic(p.kv).BeginTx()
	index := uint32(len(p.block.Actions))
	res, err := c.handler.ProcessAction(c.newState(tx, p.block), action, index)
	if err != nil {
		tx.Rollback()
		return res, err
	}
	tx.Commit()
	p.snapshot = nil
	p.block.Actions = append(p.block.Actions, action)
	return res, nil
}

// checkProducerPolicy applies the subjective restrictions of this node to actions it includes in
// its own blocks. Blocks received from other nodes are never checked against them.
func (c *Controller) checkProducerPolicy(action *Action) error {
	if action.Name != PreactivateAction {
		return nil
	}
	var params PreactivateParams
	if err := decodeParams(action, &params); err != nil {
		return err
	}
	if desc, ok := c.catalog.Lookup(params.FeatureDigest); ok && desc.Subjective().ProducerOnly {
		return features.ProducerOnlyError(params.FeatureDigest)
	}
	return nil
}

// observeBlock records the metrics of a block accepted for the first time.
func (c *Controller) observeBlock(b *Block) {
	activation.ObserveActivations(c.catalog, b.Header.NewFeatures)
	preactivations := 0
	for _, action := range b.Actions {
		if action.Name == PreactivateAction {
			preactivations++
		}
	}
	activation.ObservePreactivations(preactivations)
}

// FinalizeBlock completes the block being produced and makes it the new head.
func (c *Controller) FinalizeBlock() (*Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalizeBlock()
}

func (c *Controller) finalizeBlock() (*Block, error) {
	if c.pending == nil {
		return nil, ErrNoPendingBlock
	}
	p := c.pending
	c.pending = nil
	c.accept(p.block, p.kv)
	c.observeBlock(p.block)
	c.logger.Info("Produced block", "height", p.block.Header.Height, "hash", p.block.HashString(),
		"actions", len(p.block.Actions), "features", len(p.block.Header.NewFeatures))
	return p.block, nil
}

// AbortBlock throws away the block being produced along with everything its actions changed,
// including any preactivations they recorded.
func (c *Controller) AbortBlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortBlock()
}

func (c *Controller) abortBlock() {
	if c.pending != nil {
		c.logger.Info("Aborted block", "height", c.pending.block.Header.Height)
		c.pending = nil
	}
}

// ProduceBlock finalizes the block being produced, starting an empty one first if necessary.
func (c *Controller) ProduceBlock() (*Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		if err := c.startBlock(c.nextBlockTime()); err != nil {
			return nil, err
		}
	}
	return c.finalizeBlock()
}

func (c *Controller) accept(b *Block, kv *store.MemStore) {
	hash := b.HashString()
	c.blocks[hash] = b
	c.snapshots.Add(hash, kv.Clone())
	c.head = b
	c.headStore = kv
}

// ApplyBlock validates a block received from another node and makes it the new head. Any block
// being produced is aborted first.
func (c *Controller) ApplyBlock(b *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortBlock()

	kv := c.headStore.Clone()
	if err := c.applyBlock(kv, c.head, b, false); err != nil {
		return err
	}
	c.accept(b, kv)
	c.observeBlock(b)
	c.logger.Info("Applied block", "height", b.Header.Height, "hash", b.HashString())
	return nil
}

// ReplayBlock re-applies a block this node accepted in a previous run, e.g. from its BlockStore.
// Unlike ApplyBlock the block may activate features without preactivation if the controller
// allows it.
func (c *Controller) ReplayBlock(b *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortBlock()

	kv := c.headStore.Clone()
	if err := c.applyBlock(kv, c.head, b, true); err != nil {
		return err
	}
	c.accept(b, kv)
	return nil
}

// applyBlock replays the given block on top of its parent's state. Replaying blocks that this
// controller accepted before is trusted, if the controller allows bypassing preactivation so
// does the replay.
func (c *Controller) applyBlock(kv *store.MemStore, parent, b *Block, trusted bool) error {
	h := b.Header
	if h.ChainID != c.opts.ChainID {
		return errors.Wrapf(ErrInvalidBlock, "wrong chain ID %s", h.ChainID)
	}
	if h.Height != parent.Header.Height+1 {
		return errors.Wrapf(ErrInvalidBlock, "expected height %d, got %d", parent.Header.Height+1, h.Height)
	}
	if !bytes.Equal(h.Previous, parent.Hash()) {
		return errors.Wrapf(ErrInvalidBlock, "block %d doesn't link to %s", h.Height, parent.HashString())
	}
	if h.Time <= parent.Header.Time {
		return errors.Wrapf(ErrInvalidBlock, "block time %d must be after %d", h.Time, parent.Header.Time)
	}

	tx := store.WrapAtomic(kv).BeginTx()
	st := c.newState(tx, b)
	preactivated, err := st.Machine().Ledger().PendingDigests()
	if err != nil {
		return err
	}
	listed := make(map[features.Digest]bool, len(h.NewFeatures))
	for _, d := range h.NewFeatures {
		listed[d] = true
	}
	for _, d := range preactivated {
		if !listed[d] {
			return errors.Wrapf(ErrUnhandledPreactivations, "block %d is missing %s", h.Height, d)
		}
	}

	ba := st.Machine().Begin(h.Height, b.BlockTime())
	if trusted && c.bypass != nil {
		err = ba.ProposeWithBypass(c.bypass, h.NewFeatures...)
	} else {
		err = ba.Propose(h.NewFeatures...)
	}
	if err != nil {
		return err
	}
	if err := ba.Validate(); err != nil {
		return err
	}
	if err := ba.Commit(); err != nil {
		return err
	}

	for i, action := range b.Actions {
		if _, err := c.handler.ProcessAction(st, action, uint32(i)); err != nil {
			return errors.Wrapf(err, "action %d (%s) of block %d failed", i, action.Name, h.Height)
		}
	}
	tx.Commit()
	return nil
}

// stateAt rebuilds the state after the given accepted block, starting from the closest cached
// snapshot (or genesis) and replaying the blocks after it.
func (c *Controller) stateAt(b *Block) (*store.MemStore, error) {
	var path []*Block
	cur := b
	var kv *store.MemStore
	for {
		if cur.Header.Height == 0 {
			kv = c.genesis.Clone()
			break
		}
		if snap, ok := c.snapshots.Get(cur.HashString()); ok {
			kv = snap.(*store.MemStore).Clone()
			break
		}
		path = append(path, cur)
		parent, ok := c.blocks[hex.EncodeToString(cur.Header.Previous)]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownBlock, "parent of block %d", cur.Header.Height)
		}
		cur = parent
	}
	for i := len(path) - 1; i >= 0; i-- {
		if err := c.applyBlock(kv, cur, path[i], true); err != nil {
			return nil, err
		}
		cur = path[i]
	}
	return kv, nil
}

// SwitchFork replaces the blocks after the common ancestor of the current branch and the given
// one. The branch must be ordered by height and its first block must link to a block this
// controller has accepted. Features activated only on the abandoned blocks are no longer active
// afterwards. If any block of the new branch is invalid the controller is left unchanged.
func (c *Controller) SwitchFork(branch []*Block) error {
	if len(branch) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ancestor, ok := c.blocks[hex.EncodeToString(branch[0].Header.Previous)]
	if !ok {
		return errors.Wrap(ErrUnknownBlock, "fork doesn't link to a known block")
	}
	kv, err := c.stateAt(ancestor)
	if err != nil {
		return err
	}

	parent := ancestor
	snapshots := make([]*store.MemStore, 0, len(branch))
	for _, b := range branch {
		if err := c.applyBlock(kv, parent, b, false); err != nil {
			return err
		}
		snapshots = append(snapshots, kv.Clone())
		parent = b
	}

	c.abortBlock()
	for i, b := range branch {
		hash := b.HashString()
		if _, known := c.blocks[hash]; !known {
			c.observeBlock(b)
		}
		c.blocks[hash] = b
		c.snapshots.Add(hash, snapshots[i])
	}
	c.head = parent
	c.headStore = kv
	c.logger.Info("Switched fork", "ancestor", ancestor.Header.Height, "head", parent.Header.Height,
		"hash", parent.HashString())
	return nil
}

// Fork returns an independent copy of this controller, blocks produced or applied by either copy
// are never visible to the other.
func (c *Controller) Fork() (*Controller, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshots, err := lru.New(c.opts.SnapshotCacheSize)
	if err != nil {
		return nil, err
	}
	// snapshots are never modified in place, so they can be shared
	for _, key := range c.snapshots.Keys() {
		if snap, ok := c.snapshots.Peek(key); ok {
			snapshots.Add(key, snap)
		}
	}
	blocks := make(map[string]*Block, len(c.blocks))
	for k, v := range c.blocks {
		blocks[k] = v
	}
	fork := &Controller{
		opts:      c.opts,
		catalog:   c.catalog,
		handler:   c.handler,
		logger:    c.logger,
		bypass:    c.bypass,
		proposed:  append([]features.Digest(nil), c.proposed...),
		scheduled: append([]features.Digest(nil), c.scheduled...),
		genesis:   c.genesis,
		head:      c.head,
		headStore: c.headStore,
		blocks:    blocks,
		snapshots: snapshots,
	}
	if c.pending != nil {
		fork.pending = &pendingBlock{
			kv:    c.pending.kv.Clone(),
			block: copyBlock(c.pending.block),
		}
	}
	return fork, nil
}

func copyBlock(b *Block) *Block {
	clone := *b
	clone.Actions = append([]*Action(nil), b.Actions...)
	return &clone
}

// Activations returns the activation history of the current branch, including the block being
// produced.
func (c *Controller) Activations() ([]activation.Activation, error) {
	return c.PendingState().Activations()
}

// Pending returns the features waiting to be activated in the next block.
func (c *Controller) Pending() ([]activation.PendingFeature, error) {
	return c.PendingState().Pending()
}
