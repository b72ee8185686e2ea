package consensus

import (
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/ledger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1735689600, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testPoW(t *testing.T, difficulty int) *ProofOfWork {
	conf := NewDefaultConfig()
	conf.Difficulty = difficulty
	p, err := NewProofOfWork(conf, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func testHybrid(t *testing.T, mutate func(*Config)) (*Hybrid, *fakeClock) {
	conf := NewDefaultConfig()
	conf.Type = "hybrid"
	if mutate != nil {
		mutate(&conf)
	}
	h, err := NewHybrid(conf, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock()
	h.now = clock.Now
	return h, clock
}

func testTx(amount float64) *ledger.Transaction {
	return ledger.NewTransaction("0", "1", amount, 1735689700+amount)
}

// extend mines n blocks on top of chain with algo and returns the new chain.
func extend(t *testing.T, algo Algorithm, chain []*ledger.Block, n int, proposer func(height int) string) []*ledger.Block {
	res := append([]*ledger.Block{}, chain...)
	for i := 0; i < n; i++ {
		tip := res[len(res)-1]
		b, err := algo.CreateBlock(tip.Height+1, tip.Hash, []*ledger.Transaction{testTx(float64(i + 1))}, proposer(tip.Height+1))
		if err != nil {
			t.Fatalf("creating block at height %d: %v", tip.Height+1, err)
		}
		res = append(res, b)
	}
	return res
}

type memChain struct {
	blocks  []*ledger.Block
	pending []*ledger.Transaction
}

func newMemChain(txs ...*ledger.Transaction) *memChain {
	return &memChain{
		blocks:  []*ledger.Block{ledger.GenesisBlock()},
		pending: txs,
	}
}

func (m *memChain) LatestBlock() *ledger.Block {
	return m.blocks[len(m.blocks)-1]
}

func (m *memChain) PendingTransactions(max int) []*ledger.Transaction {
	if max > len(m.pending) {
		max = len(m.pending)
	}
	res := make([]*ledger.Transaction, max)
	copy(res, m.pending[:max])
	return res
}

func (m *memChain) RemoveTransactions(txs []*ledger.Transaction) {
	drop := ledger.TransactionHashes(txs)
	kept := m.pending[:0]
	for _, tx := range m.pending {
		if _, ok := drop[tx.Hash]; !ok {
			kept = append(kept, tx)
		}
	}
	m.pending = kept
}
