package blockchain

import (
	"github.com/mosaicnetworks/forkchain/src/ledger"
)

// AddPendingTransaction admits a transaction to the pool if its amount is
// positive and the sender's applied balance covers it. Other pending
// transactions of the same sender are not taken into account, so several of
// them may jointly overdraw the balance.
func (bc *Blockchain) AddPendingTransaction(tx *ledger.Transaction) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if err := checkTransaction(tx, bc.balances); err != nil {
		return err
	}
	if _, ok := bc.pendingIndex[tx.Hash]; ok {
		return NewTransactionErr(Duplicate, tx.Hash)
	}
	if _, ok := bc.chainTxs[tx.Hash]; ok {
		return NewTransactionErr(Duplicate, tx.Hash)
	}

	bc.pending = append(bc.pending, tx)
	bc.pendingIndex[tx.Hash] = struct{}{}
	return nil
}

// PendingTransactions returns up to max pending transactions in insertion
// order without removing them.
func (bc *Blockchain) PendingTransactions(max int) []*ledger.Transaction {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if max < 0 || max > len(bc.pending) {
		max = len(bc.pending)
	}
	res := make([]*ledger.Transaction, max)
	copy(res, bc.pending[:max])
	return res
}

// PendingCount ...
func (bc *Blockchain) PendingCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

// RemoveTransactions drops the given transactions from the pool.
func (bc *Blockchain) RemoveTransactions(txs []*ledger.Transaction) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.dropPending(txs)
}

func (bc *Blockchain) dropPending(txs []*ledger.Transaction) {
	if len(txs) == 0 || len(bc.pending) == 0 {
		return
	}
	drop := ledger.TransactionHashes(txs)
	kept := bc.pending[:0]
	for _, tx := range bc.pending {
		if _, ok := drop[tx.Hash]; ok {
			delete(bc.pendingIndex, tx.Hash)
			continue
		}
		kept = append(kept, tx)
	}
	bc.pending = kept
}
