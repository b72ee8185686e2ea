package simulator

import (
	"testing"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/mosaicnetworks/forkchain/src/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainOf builds n linked blocks on genesis. tag makes sibling chains differ.
func chainOf(n int, tag float64, txs ...*ledger.Transaction) []*ledger.Block {
	res := []*ledger.Block{}
	parent := ledger.GenesisBlock()
	for i := 0; i < n; i++ {
		var blockTxs []*ledger.Transaction
		if i == 0 {
			blockTxs = txs
		}
		b := ledger.NewBlock(parent.Height+1, parent.Hash, blockTxs, parent.Timestamp+1+tag, 0)
		res = append(res, b)
		parent = b
	}
	return res
}

func testSimulator(t *testing.T, nodes int) *Simulator {
	conf := NewTestConfig(t, consensus.ProofOfWorkKind, scenario.Delays, common.TestLogLevel)
	conf.Nodes = nodes
	sim, err := New(conf)
	require.NoError(t, err)
	return sim
}

func TestNewConfigurationErrors(t *testing.T) {
	conf := NewTestConfig(t, consensus.ProofOfWorkKind, scenario.Delays, common.TestLogLevel)
	conf.Consensus.Type = "pos"
	_, err := New(conf)
	assert.True(t, consensus.IsConfigurationError(err))

	conf = NewTestConfig(t, consensus.HybridKind, scenario.Delays, common.TestLogLevel)
	conf.Nodes = 3
	_, err = New(conf)
	assert.True(t, consensus.IsConfigurationError(err))

	conf.Nodes = 0
	_, err = New(conf)
	assert.True(t, consensus.IsConfigurationError(err))
}

func TestNewBuildsNetwork(t *testing.T) {
	sim := testSimulator(t, 3)
	require.Len(t, sim.Nodes(), 3)

	for i, n := range sim.Nodes() {
		assert.Equal(t, sim.Node(i).ID(), n.ID())
		assert.Equal(t, DefaultInitialBalance, n.Balance(n.ID()))
		assert.Equal(t, 1, n.Blockchain().ChainLength())
	}
	assert.True(t, sim.Settled())
	assert.Empty(t, sim.Check())

	// Stop before Start is a no-op
	sim.Stop()
}

func TestFinalityConsistencyViolation(t *testing.T) {
	sim := testSimulator(t, 2)

	for _, b := range chainOf(6, 0) {
		_, err := sim.Node(0).Blockchain().AddBlock(b)
		require.NoError(t, err)
	}
	for _, b := range chainOf(6, 0.5) {
		_, err := sim.Node(1).Blockchain().AddBlock(b)
		require.NoError(t, err)
	}

	found := sim.Check()
	require.NotEmpty(t, found)
	for _, v := range found {
		assert.Equal(t, FinalityConsistency, v.Invariant)
	}
	// heights 1 and 2 are final on both nodes with different hashes
	assert.Len(t, found, 2)

	// a second sample does not duplicate the accumulated violations
	sim.Check()
	r := sim.Report()
	assert.Len(t, r.ViolationsOf(FinalityConsistency), 2)
	assert.False(t, r.InvariantsHeld())
	assert.False(t, r.Converged)
	assert.Equal(t, 0, r.CommonFinalHeight)
}

func TestUniqueTransactionsViolation(t *testing.T) {
	tx := ledger.NewTransaction("0", "1", 1, ledger.GenesisTimestamp+5)
	chain := append([]*ledger.Block{ledger.GenesisBlock()}, chainOf(2, 0, tx)...)
	chain[2].Transactions = []*ledger.Transaction{tx}

	found := checkUniqueTransactions("0", blockchain.Snapshot{MainChain: chain, FinalCount: 1})
	require.Len(t, found, 1)
	assert.Equal(t, UniqueTransactions, found[0].Invariant)
	assert.Equal(t, 2, found[0].Height)
}

func TestBalanceReplayViolation(t *testing.T) {
	tx := ledger.NewTransaction("0", "1", 10, ledger.GenesisTimestamp+5)
	chain := append([]*ledger.Block{ledger.GenesisBlock()}, chainOf(1, 0, tx)...)
	initial := map[string]float64{"0": 100, "1": 100}

	good := blockchain.Snapshot{
		MainChain:  chain,
		FinalCount: 1,
		Balances:   map[string]float64{"0": 90, "1": 110},
	}
	assert.Empty(t, checkBalanceReplay("0", initial, good))

	bad := good
	bad.Balances = map[string]float64{"0": 90, "1": 100, "2": 3}
	found := checkBalanceReplay("0", initial, bad)
	assert.Len(t, found, 2)
	for _, v := range found {
		assert.Equal(t, BalanceReplay, v.Invariant)
	}
}

func TestMonotonicityViolation(t *testing.T) {
	sim := testSimulator(t, 1)
	c := NewChecker(sim.Nodes())

	genesis := ledger.GenesisBlock()
	a := append([]*ledger.Block{genesis}, chainOf(3, 0)...)
	b := append([]*ledger.Block{genesis}, chainOf(3, 0.5)...)

	assert.Empty(t, c.checkMonotonicity(0, "0", blockchain.Snapshot{MainChain: a, FinalCount: 3}))
	assert.Empty(t, c.checkMonotonicity(0, "0", blockchain.Snapshot{MainChain: a, FinalCount: 4}))

	found := c.checkMonotonicity(0, "0", blockchain.Snapshot{MainChain: b, FinalCount: 2})
	assert.Len(t, found, 3)

	short := c.checkMonotonicity(0, "0", blockchain.Snapshot{MainChain: a[:2], FinalCount: 1})
	assert.Len(t, short, 2)
}

func runSimulation(t *testing.T, kind consensus.Kind, sc scenario.Kind, mutate func(*Config)) *Report {
	if testing.Short() {
		t.Skip("simulation run")
	}
	conf := NewTestConfig(t, kind, sc, common.TestLogLevel)
	if mutate != nil {
		mutate(conf)
	}
	sim, err := New(conf)
	require.NoError(t, err)
	defer sim.Stop()

	return sim.Run()
}

func assertHealthy(t *testing.T, r *Report) {
	t.Helper()
	for _, v := range r.Violations {
		t.Errorf("violation: %s", v)
	}
	assert.True(t, r.Converged, "nodes did not converge")

	mined := 0
	for _, n := range r.Nodes {
		mined += n.BlocksMined
		assert.Equal(t, r.Nodes[0].Info.LatestHash, n.Info.LatestHash)
	}
	assert.True(t, mined > 0, "no block mined")
	assert.True(t, r.Nodes[0].Info.ChainLength > 1)
}

func TestRunPowDelays(t *testing.T) {
	r := runSimulation(t, consensus.ProofOfWorkKind, scenario.Delays, func(c *Config) {
		c.FinalityDepth = 6
	})
	assertHealthy(t, r)
	assert.Equal(t, "pow", r.Consensus)
	assert.Equal(t, "delays", r.Scenario)
}

func TestRunPowPartition(t *testing.T) {
	r := runSimulation(t, consensus.ProofOfWorkKind, scenario.Partition, func(c *Config) {
		// longer than any side branch grown during the split
		c.FinalityDepth = 1000
	})
	assertHealthy(t, r)
	assert.Equal(t, "partition", r.Scenario)
}

func TestRunHybridDelays(t *testing.T) {
	r := runSimulation(t, consensus.HybridKind, scenario.Delays, func(c *Config) {
		c.FinalityDepth = 6
	})
	assertHealthy(t, r)
	assert.Equal(t, "hybrid", r.Consensus)
}

func TestRunHybridPartition(t *testing.T) {
	r := runSimulation(t, consensus.HybridKind, scenario.Partition, func(c *Config) {
		c.FinalityDepth = 1000
	})
	assertHealthy(t, r)
}
