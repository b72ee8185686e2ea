package consensus

import (
	"github.com/mosaicnetworks/forkchain/src/ledger"
)

// ChainState is the view of the blockchain that Mine needs. Callers that share
// the chain with other goroutines must hold their own lock around the whole
// Mine call and the AddBlock that follows, so that the read-mine-commit step is
// atomic.
type ChainState interface {
	LatestBlock() *ledger.Block
	PendingTransactions(max int) []*ledger.Transaction
	RemoveTransactions(txs []*ledger.Transaction)
}

// Mine tries to produce the next block on top of the chain tip.
//
// It returns ErrNoEligibleProposer when proposerID may not propose the next
// height and ErrEmptyPool when nothing is pending; both are normal. Included
// transactions are removed from the pool only once a block exists. A block
// whose proof budget ran out is still returned, along with a
// ProofIncompleteError.
func Mine(algo Algorithm, chain ChainState, proposerID string, maxTx int) (*ledger.Block, error) {
	tip := chain.LatestBlock()
	nextHeight := tip.Height + 1

	if !algo.CanPropose(proposerID, nextHeight) {
		return nil, ErrNoEligibleProposer
	}

	txs := chain.PendingTransactions(maxTx)
	if len(txs) == 0 {
		return nil, ErrEmptyPool
	}

	block, err := algo.CreateBlock(nextHeight, tip.Hash, txs, proposerID)
	if block == nil {
		return nil, err
	}
	if err != nil && !IsProofIncomplete(err) {
		return nil, err
	}

	chain.RemoveTransactions(block.Transactions)

	return block, err
}
