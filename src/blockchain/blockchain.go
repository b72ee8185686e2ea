package blockchain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/sirupsen/logrus"
)

// ChainSelector picks the winning chain among maximal candidate chains. It is
// satisfied by consensus.Algorithm.
type ChainSelector interface {
	SelectBestChain(chains [][]*ledger.Block) ([]*ledger.Block, bool)
}

// Result tells what AddBlock did with an accepted block.
type Result uint32

const (
	// Extended means the block was appended to the main chain.
	Extended Result = iota
	// Reorganized means fork resolution replaced the main chain.
	Reorganized
	// SideBranch means the block was stored off the main chain.
	SideBranch
	// Buffered means the parent is unknown and the block waits for it.
	Buffered
	// Known means the block was already stored.
	Known
)

func (r Result) String() string {
	switch r {
	case Extended:
		return "Extended"
	case Reorganized:
		return "Reorganized"
	case SideBranch:
		return "SideBranch"
	case Buffered:
		return "Buffered"
	case Known:
		return "Known"
	default:
		return "Unknown"
	}
}

// Blockchain owns the main chain, every known block, the pending transaction
// pool and the balances. A single mutex guards all of it; every exported
// method is one atomic step.
type Blockchain struct {
	mu sync.Mutex

	finalityDepth   int
	initialBalances map[string]float64
	maxBuffered     int
	maxBranches     int
	maxDepth        int

	selector ChainSelector

	mainChain []*ledger.Block
	// chainIndex maps the hash of each main chain block to its height.
	chainIndex map[string]int
	// chainTxs maps each transaction hash on the main chain to its block height.
	chainTxs map[string]int

	allBlocks map[string]*ledger.Block
	children  map[string][]string
	buffered  map[string]struct{}

	pending      []*ledger.Transaction
	pendingIndex map[string]struct{}

	balances map[string]float64

	reorgs        int
	refusedReorgs int

	logger *logrus.Entry
}

// NewBlockchain creates a Blockchain holding only the genesis block. selector
// resolves forks.
func NewBlockchain(conf *Config, selector ChainSelector) *Blockchain {
	if conf == nil {
		conf = NewDefaultConfig()
	}
	logger := conf.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	initial := make(map[string]float64, len(conf.InitialBalances))
	for addr, amount := range conf.InitialBalances {
		initial[addr] = amount
	}

	bc := &Blockchain{
		finalityDepth:   conf.FinalityDepth,
		initialBalances: initial,
		maxBuffered:     orDefault(conf.MaxBufferedBlocks, DefaultMaxBufferedBlocks),
		maxBranches:     orDefault(conf.MaxForkBranches, DefaultMaxForkBranches),
		maxDepth:        orDefault(conf.MaxChainDepth, DefaultMaxChainDepth),
		selector:        selector,
		chainIndex:      make(map[string]int),
		chainTxs:        make(map[string]int),
		allBlocks:       make(map[string]*ledger.Block),
		children:        make(map[string][]string),
		buffered:        make(map[string]struct{}),
		pendingIndex:    make(map[string]struct{}),
		logger:          logger,
	}

	genesis := ledger.GenesisBlock()
	bc.allBlocks[genesis.Hash] = genesis
	bc.setMainChain([]*ledger.Block{genesis})

	return bc
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// AddBlock validates a block and integrates it. A nil error means the block is
// stored; Result tells where. Duplicates are a no-op success.
func (bc *Blockchain) AddBlock(block *ledger.Block) (Result, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.addBlock(block)
}

func (bc *Blockchain) addBlock(block *ledger.Block) (Result, error) {
	if _, ok := bc.allBlocks[block.Hash]; ok {
		return Known, nil
	}

	if !block.VerifyHash() {
		return 0, bc.reject(block, BadHash, "")
	}

	if block.Height == 0 {
		// Genesis is already stored, so any other height 0 block is foreign.
		return 0, bc.reject(block, BadGenesis, "")
	}

	parent, ok := bc.allBlocks[block.PrevHash]
	if !ok || bc.isBuffered(block.PrevHash) {
		return bc.buffer(block, ok)
	}

	if block.Height != parent.Height+1 {
		return 0, bc.reject(block, BadHeight, "parent is at height %d", parent.Height)
	}

	tip := bc.tip()
	extendsTip := block.PrevHash == tip.Hash

	if err := bc.checkBlockTransactions(block, extendsTip); err != nil {
		return 0, err
	}

	bc.store(block)

	if extendsTip {
		bc.appendToMain(block)
		res := Extended
		if bc.connectBuffered(block.Hash) {
			if bc.spliceOrResolve() {
				res = Reorganized
			}
		}
		return res, nil
	}

	bc.connectBuffered(block.Hash)

	if bc.resolveForks() {
		return Reorganized, nil
	}
	return SideBranch, nil
}

func (bc *Blockchain) reject(block *ledger.Block, reason RejectReason, format string, args ...interface{}) error {
	detail := ""
	if format != "" {
		detail = fmt.Sprintf(format, args...)
	}
	err := RejectedBlockError{
		Reason: reason,
		Hash:   block.Hash,
		Height: block.Height,
		Detail: detail,
	}
	bc.logger.WithFields(logrus.Fields{
		"height": block.Height,
		"hash":   common.ShortHash(block.Hash),
		"reason": reason.String(),
	}).Debug("Block rejected")
	return err
}

// buffer keeps a block whose ancestry does not reach genesis yet.
func (bc *Blockchain) buffer(block *ledger.Block, parentKnown bool) (Result, error) {
	if len(bc.buffered) >= bc.maxBuffered {
		return 0, bc.reject(block, BufferFull, "%d blocks already buffered", len(bc.buffered))
	}

	if parentKnown {
		parent := bc.allBlocks[block.PrevHash]
		if block.Height != parent.Height+1 {
			return 0, bc.reject(block, BadHeight, "parent is at height %d", parent.Height)
		}
	}

	bc.store(block)
	bc.buffered[block.Hash] = struct{}{}

	bc.logger.WithFields(logrus.Fields{
		"height":    block.Height,
		"hash":      common.ShortHash(block.Hash),
		"prev_hash": common.ShortHash(block.PrevHash),
	}).Debug("Buffered block with unknown parent")

	return Buffered, nil
}

func (bc *Blockchain) isBuffered(hash string) bool {
	_, ok := bc.buffered[hash]
	return ok
}

func (bc *Blockchain) store(block *ledger.Block) {
	bc.allBlocks[block.Hash] = block
	bc.children[block.PrevHash] = append(bc.children[block.PrevHash], block.Hash)
}

// unstore drops a buffered block that turned out to be invalid once its
// parent arrived. Its own descendants stay buffered.
func (bc *Blockchain) unstore(block *ledger.Block) {
	delete(bc.allBlocks, block.Hash)
	delete(bc.buffered, block.Hash)
	siblings := bc.children[block.PrevHash]
	for i, h := range siblings {
		if h == block.Hash {
			bc.children[block.PrevHash] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
}

// connectBuffered releases the buffered descendants of hash, now that hash is
// attached to genesis. Descendants with a wrong height or with transactions
// that do not hold on their own branch are dropped. It reports whether any
// block was released.
func (bc *Blockchain) connectBuffered(hash string) bool {
	released := false
	queue := []string{hash}
	for len(queue) > 0 {
		parentHash := queue[0]
		queue = queue[1:]
		parent := bc.allBlocks[parentHash]

		for _, childHash := range append([]string{}, bc.children[parentHash]...) {
			if !bc.isBuffered(childHash) {
				continue
			}
			child := bc.allBlocks[childHash]
			if child.Height != parent.Height+1 {
				bc.logger.WithFields(logrus.Fields{
					"height": child.Height,
					"hash":   common.ShortHash(child.Hash),
				}).Debug("Dropping buffered block with wrong height")
				bc.unstore(child)
				continue
			}
			if err := bc.checkBlockTransactions(child, false); err != nil {
				bc.unstore(child)
				continue
			}
			delete(bc.buffered, childHash)
			released = true
			queue = append(queue, childHash)
		}
	}
	return released
}

// spliceOrResolve appends released blocks that chain onto the tip one by one,
// and falls back to fork resolution when the tip has several children. It
// reports whether the main chain was replaced.
func (bc *Blockchain) spliceOrResolve() bool {
	for {
		kids := bc.children[bc.tip().Hash]
		switch len(kids) {
		case 0:
			return false
		case 1:
			next := bc.allBlocks[kids[0]]
			if err := bc.checkBlockTransactions(next, true); err != nil {
				bc.unstore(next)
				return false
			}
			bc.appendToMain(next)
		default:
			return bc.resolveForks()
		}
	}
}

func (bc *Blockchain) tip() *ledger.Block {
	return bc.mainChain[len(bc.mainChain)-1]
}

func (bc *Blockchain) appendToMain(block *ledger.Block) {
	bc.mainChain = append(bc.mainChain, block)
	bc.chainIndex[block.Hash] = block.Height
	applyBlock(bc.balances, block)
	for _, tx := range block.Transactions {
		bc.chainTxs[tx.Hash] = block.Height
	}
	bc.dropPending(block.Transactions)
}

// setMainChain replaces the main chain and rebuilds everything derived from
// it. Transactions of reverted blocks that are not on the new chain go back to
// the pool.
func (bc *Blockchain) setMainChain(chain []*ledger.Block) {
	var reverted []*ledger.Transaction
	for _, b := range bc.mainChain {
		reverted = append(reverted, b.Transactions...)
	}

	bc.mainChain = chain
	bc.chainIndex = make(map[string]int, len(chain))
	bc.chainTxs = make(map[string]int)
	for _, b := range chain {
		bc.chainIndex[b.Hash] = b.Height
		for _, tx := range b.Transactions {
			bc.chainTxs[tx.Hash] = b.Height
		}
	}
	bc.balances = ReplayBalances(bc.initialBalances, chain)

	kept := bc.pending[:0]
	for _, tx := range bc.pending {
		if _, ok := bc.chainTxs[tx.Hash]; ok {
			delete(bc.pendingIndex, tx.Hash)
			continue
		}
		kept = append(kept, tx)
	}
	bc.pending = kept

	for _, tx := range reverted {
		if _, ok := bc.chainTxs[tx.Hash]; ok {
			continue
		}
		if _, ok := bc.pendingIndex[tx.Hash]; ok {
			continue
		}
		bc.pending = append(bc.pending, tx)
		bc.pendingIndex[tx.Hash] = struct{}{}
	}
}

// checkBlockTransactions validates the transactions of a block against the
// branch it extends. Each transaction is checked on its own against the
// balances at the parent, and none may already appear in the ancestry or
// twice in the block.
func (bc *Blockchain) checkBlockTransactions(block *ledger.Block, extendsTip bool) error {
	balances := bc.balances
	included := func(hash string) bool {
		_, ok := bc.chainTxs[hash]
		return ok
	}

	if !extendsTip {
		branch := bc.branchTo(block.PrevHash)
		balances = ReplayBalances(bc.initialBalances, branch)
		ancestry := make(map[string]struct{})
		for _, b := range branch {
			for _, tx := range b.Transactions {
				ancestry[tx.Hash] = struct{}{}
			}
		}
		included = func(hash string) bool {
			_, ok := ancestry[hash]
			return ok
		}
	}

	seen := make(map[string]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		if err := checkTransaction(tx, balances); err != nil {
			return bc.reject(block, InvalidTransaction, "%v", err)
		}
		if _, ok := seen[tx.Hash]; ok || included(tx.Hash) {
			return bc.reject(block, InvalidTransaction, "%v", NewTransactionErr(Duplicate, tx.Hash))
		}
		seen[tx.Hash] = struct{}{}
	}
	return nil
}

// branchTo returns the chain from genesis to the block with the given hash,
// following parent links.
func (bc *Blockchain) branchTo(hash string) []*ledger.Block {
	var rev []*ledger.Block
	for steps := 0; steps <= bc.maxDepth; steps++ {
		b, ok := bc.allBlocks[hash]
		if !ok {
			break
		}
		rev = append(rev, b)
		if b.Height == 0 {
			break
		}
		hash = b.PrevHash
	}

	chain := make([]*ledger.Block, len(rev))
	for i, b := range rev {
		chain[len(rev)-1-i] = b
	}
	return chain
}

// BranchTo returns the chain from genesis to the block with the given hash, or
// nil when that block is unknown or still buffered.
func (bc *Blockchain) BranchTo(hash string) []*ledger.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if _, ok := bc.allBlocks[hash]; !ok || bc.isBuffered(hash) {
		return nil
	}
	return bc.branchTo(hash)
}

// LatestBlock returns the tip of the main chain.
func (bc *Blockchain) LatestBlock() *ledger.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.tip()
}

// ChainLength is the number of blocks on the main chain, genesis included.
func (bc *Blockchain) ChainLength() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.mainChain)
}

// MainChain returns a copy of the main chain.
func (bc *Blockchain) MainChain() []*ledger.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	res := make([]*ledger.Block, len(bc.mainChain))
	copy(res, bc.mainChain)
	return res
}

// BlockAt returns the main chain block at height.
func (bc *Blockchain) BlockAt(height int) (*ledger.Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if height < 0 || height >= len(bc.mainChain) {
		return nil, false
	}
	return bc.mainChain[height], true
}

// BlocksFrom returns the main chain blocks starting at height.
func (bc *Blockchain) BlocksFrom(height int) []*ledger.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if height < 0 {
		height = 0
	}
	if height >= len(bc.mainChain) {
		return []*ledger.Block{}
	}
	res := make([]*ledger.Block, len(bc.mainChain)-height)
	copy(res, bc.mainChain[height:])
	return res
}

// GetBlock returns any stored block by hash.
func (bc *Blockchain) GetBlock(hash string) (*ledger.Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	b, ok := bc.allBlocks[hash]
	return b, ok
}

// KnownBlocks is the number of stored blocks, genesis included.
func (bc *Blockchain) KnownBlocks() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.allBlocks)
}

// OrphanCount is the number of stored blocks that are not on the main chain,
// buffered blocks included. Orphans are never pruned.
func (bc *Blockchain) OrphanCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.allBlocks) - len(bc.mainChain)
}

// BufferedCount is the number of blocks waiting for an unknown ancestor.
func (bc *Blockchain) BufferedCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffered)
}

// MissingParents returns the parent hashes that buffered blocks wait for,
// sorted.
func (bc *Blockchain) MissingParents() []string {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	set := make(map[string]struct{})
	for h := range bc.buffered {
		prev := bc.allBlocks[h].PrevHash
		if _, ok := bc.allBlocks[prev]; !ok {
			set[prev] = struct{}{}
		}
	}
	res := make([]string, 0, len(set))
	for h := range set {
		res = append(res, h)
	}
	sort.Strings(res)
	return res
}

// FinalBlocks returns the final prefix of the main chain: the first
// len-finalityDepth blocks, or only genesis when the chain is shorter.
func (bc *Blockchain) FinalBlocks() []*ledger.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	n := bc.finalCount()
	res := make([]*ledger.Block, n)
	copy(res, bc.mainChain[:n])
	return res
}

// FinalityHeight is the height of the last final block.
func (bc *Blockchain) FinalityHeight() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.finalCount() - 1
}

func (bc *Blockchain) finalCount() int {
	l := len(bc.mainChain)
	if l <= bc.finalityDepth {
		return 1
	}
	return l - bc.finalityDepth
}

// FinalityDepth ...
func (bc *Blockchain) FinalityDepth() int {
	return bc.finalityDepth
}

// Reorgs is the number of times fork resolution replaced the main chain.
func (bc *Blockchain) Reorgs() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.reorgs
}

// RefusedReorgs is the number of replacements refused because they would
// revert a final block.
func (bc *Blockchain) RefusedReorgs() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.refusedReorgs
}

// ContainsTransaction reports the height of the main chain block holding the
// transaction.
func (bc *Blockchain) ContainsTransaction(hash string) (int, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	h, ok := bc.chainTxs[hash]
	return h, ok
}
