package blockchain

import (
	"testing"

	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/ledger"
)

const testDifficulty = 1

type selectorFunc func(chains [][]*ledger.Block) ([]*ledger.Block, bool)

func (f selectorFunc) SelectBestChain(chains [][]*ledger.Block) ([]*ledger.Block, bool) {
	return f(chains)
}

func testPoW(t *testing.T) consensus.Algorithm {
	conf := consensus.NewDefaultConfig()
	conf.Difficulty = testDifficulty
	algo, err := consensus.New(conf, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	return algo
}

func testChain(t *testing.T, selector ChainSelector, mutate func(*Config)) *Blockchain {
	conf := NewTestConfig(t, common.TestLogLevel)
	conf.InitialBalances = map[string]float64{"0": 100, "1": 100, "2": 100}
	if mutate != nil {
		mutate(conf)
	}
	return NewBlockchain(conf, selector)
}

// forge builds a block on parent that meets testDifficulty. seq makes the
// timestamp, and therefore the hash, distinct between siblings.
func forge(t *testing.T, parent *ledger.Block, proposer string, seq float64, txs ...*ledger.Transaction) *ledger.Block {
	if txs == nil {
		txs = []*ledger.Transaction{}
	}
	b := ledger.NewBlock(parent.Height+1, parent.Hash, txs, parent.Timestamp+1+seq/1000, 0)
	b.ProposerID = proposer
	for !b.MeetsDifficulty(testDifficulty) {
		b.Nonce++
		b.Hash = b.CalculateHash()
	}
	return b
}

// forgeChain builds n consecutive blocks on parent.
func forgeChain(t *testing.T, parent *ledger.Block, n int, seq float64) []*ledger.Block {
	res := make([]*ledger.Block, 0, n)
	for i := 0; i < n; i++ {
		b := forge(t, parent, "0", seq)
		res = append(res, b)
		parent = b
	}
	return res
}

func tx(sender, receiver string, amount float64, ts float64) *ledger.Transaction {
	return ledger.NewTransaction(sender, receiver, amount, 1735689700+ts)
}

func mustAdd(t *testing.T, bc *Blockchain, b *ledger.Block, expected Result) {
	t.Helper()
	res, err := bc.AddBlock(b)
	if err != nil {
		t.Fatalf("adding block %v: %v", b, err)
	}
	if res != expected {
		t.Fatalf("adding block %v: expected %v, got %v", b, expected, res)
	}
}

func checkReplay(t *testing.T, bc *Blockchain) {
	t.Helper()
	replayed := ReplayBalances(bc.InitialBalances(), bc.MainChain())
	balances := bc.Balances()
	for addr, amount := range replayed {
		if balances[addr] != amount {
			t.Fatalf("balance of %s is %v, replay gives %v", addr, balances[addr], amount)
		}
	}
	for addr, amount := range balances {
		if replayed[addr] != amount {
			t.Fatalf("balance of %s is %v, replay gives %v", addr, amount, replayed[addr])
		}
	}
}
