package blockchain

import (
	"github.com/mosaicnetworks/forkchain/src/ledger"
)

// ReplayBalances computes balances from scratch: the initial allocations plus
// every transaction of chain in order, sender debited and receiver credited.
func ReplayBalances(initial map[string]float64, chain []*ledger.Block) map[string]float64 {
	balances := make(map[string]float64, len(initial))
	for addr, amount := range initial {
		balances[addr] = amount
	}
	for _, b := range chain {
		applyBlock(balances, b)
	}
	return balances
}

func applyBlock(balances map[string]float64, block *ledger.Block) {
	for _, tx := range block.Transactions {
		balances[tx.Sender] -= tx.Amount
		balances[tx.Receiver] += tx.Amount
	}
}

// checkTransaction validates a transaction against applied balances. It does
// not look at other pending transactions of the same sender.
func checkTransaction(tx *ledger.Transaction, balances map[string]float64) error {
	if !tx.VerifyHash() {
		return NewTransactionErr(TxBadHash, tx.Hash)
	}
	if tx.Amount <= 0 {
		return NewTransactionErr(NonPositiveAmount, tx.Hash)
	}
	if balances[tx.Sender] < tx.Amount {
		return NewTransactionErr(InsufficientBalance, tx.Hash)
	}
	return nil
}

// Balance returns the applied balance of addr.
func (bc *Blockchain) Balance(addr string) float64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.balances[addr]
}

// Balances returns a copy of all applied balances.
func (bc *Blockchain) Balances() map[string]float64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	res := make(map[string]float64, len(bc.balances))
	for addr, amount := range bc.balances {
		res[addr] = amount
	}
	return res
}

// InitialBalances returns a copy of the genesis allocations.
func (bc *Blockchain) InitialBalances() map[string]float64 {
	res := make(map[string]float64, len(bc.initialBalances))
	for addr, amount := range bc.initialBalances {
		res[addr] = amount
	}
	return res
}
