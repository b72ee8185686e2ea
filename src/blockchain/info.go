package blockchain

import (
	"github.com/mosaicnetworks/forkchain/src/ledger"
)

// Info summarizes the state of a Blockchain.
type Info struct {
	ChainLength    int     `json:"chain_length"`
	LatestHeight   int     `json:"latest_block_height"`
	LatestHash     string  `json:"latest_block_hash"`
	FinalityHeight int     `json:"finality_height"`
	FinalityDepth  int     `json:"finality_depth"`
	Balance        float64 `json:"balance"`
	Pending        int     `json:"pending_transactions"`
	KnownBlocks    int     `json:"known_blocks"`
	Orphans        int     `json:"orphan_blocks"`
	Buffered       int     `json:"buffered_blocks"`
	Reorgs         int     `json:"reorgs"`
	RefusedReorgs  int     `json:"refused_reorgs"`
}

// Info returns a consistent snapshot of the chain state. addr selects the
// balance to report.
func (bc *Blockchain) Info(addr string) Info {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tip := bc.tip()
	return Info{
		ChainLength:    len(bc.mainChain),
		LatestHeight:   tip.Height,
		LatestHash:     tip.Hash,
		FinalityHeight: bc.finalCount() - 1,
		FinalityDepth:  bc.finalityDepth,
		Balance:        bc.balances[addr],
		Pending:        len(bc.pending),
		KnownBlocks:    len(bc.allBlocks),
		Orphans:        len(bc.allBlocks) - len(bc.mainChain),
		Buffered:       len(bc.buffered),
		Reorgs:         bc.reorgs,
		RefusedReorgs:  bc.refusedReorgs,
	}
}

// Snapshot is a consistent copy of the main chain and the balances derived
// from it.
type Snapshot struct {
	MainChain  []*ledger.Block
	FinalCount int
	Balances   map[string]float64
}

// Final returns the final prefix of the snapshot's main chain.
func (s Snapshot) Final() []*ledger.Block {
	return s.MainChain[:s.FinalCount]
}

// Snapshot copies the main chain, the final block count and the balances under
// one lock acquisition.
func (bc *Blockchain) Snapshot() Snapshot {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	chain := make([]*ledger.Block, len(bc.mainChain))
	copy(chain, bc.mainChain)

	balances := make(map[string]float64, len(bc.balances))
	for addr, amount := range bc.balances {
		balances[addr] = amount
	}

	return Snapshot{
		MainChain:  chain,
		FinalCount: bc.finalCount(),
		Balances:   balances,
	}
}
