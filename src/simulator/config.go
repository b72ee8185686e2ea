package simulator

import (
	"strconv"
	"testing"
	"time"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/node"
	"github.com/mosaicnetworks/forkchain/src/scenario"
	"github.com/sirupsen/logrus"
)

const (
	DefaultNodes          = 5
	DefaultInitialBalance = 1000.0
	DefaultDuration       = 30 * time.Second
	DefaultCheckInterval  = 500 * time.Millisecond
	DefaultSettleTime     = 5 * time.Second
)

// Config gathers the parameters of every layer of a simulated network.
type Config struct {
	Nodes           int
	InitialBalances []float64
	FinalityDepth   int
	Duration        time.Duration
	CheckInterval   time.Duration
	// SettleTime bounds the convergence wait after traffic stops.
	SettleTime time.Duration

	Consensus consensus.Config
	Node      *node.Config
	Scenario  *scenario.Config

	Logger *logrus.Logger
}

// NewDefaultConfig returns a five node network running kind under the
// scenario sc.
func NewDefaultConfig(kind consensus.Kind, sc scenario.Kind, seed int64) *Config {
	cons := consensus.NewDefaultConfig()
	cons.Type = kind.String()
	cons.Seed = seed

	balances := make([]float64, DefaultNodes)
	for i := range balances {
		balances[i] = DefaultInitialBalance
	}

	return &Config{
		Nodes:           DefaultNodes,
		InitialBalances: balances,
		FinalityDepth:   blockchain.DefaultFinalityDepth,
		Duration:        DefaultDuration,
		CheckInterval:   DefaultCheckInterval,
		SettleTime:      DefaultSettleTime,
		Consensus:       cons,
		Node:            node.DefaultConfig(),
		Scenario:        scenario.NewDefaultConfig(sc, seed),
		Logger:          logrus.New(),
	}
}

// NewTestConfig returns a fast configuration for tests: easy proofs, short
// timers and a logger writing through t.
func NewTestConfig(t testing.TB, kind consensus.Kind, sc scenario.Kind, level logrus.Level) *Config {
	conf := NewDefaultConfig(kind, sc, consensus.DefaultSeed)
	conf.Duration = 3 * time.Second
	conf.CheckInterval = 50 * time.Millisecond
	conf.SettleTime = 10 * time.Second

	conf.Consensus.Difficulty = 1
	conf.Consensus.MaxMiningTime = 500 * time.Millisecond
	conf.Consensus.LightDifficulty = 1
	conf.Consensus.LeaderTimeout = 50 * time.Millisecond

	conf.Node = node.NewTestConfig(t, level)

	conf.Scenario.MinDelay = time.Millisecond
	conf.Scenario.MaxDelay = 10 * time.Millisecond
	conf.Scenario.PartitionAfter = 300 * time.Millisecond
	conf.Scenario.PartitionDuration = time.Second
	conf.Scenario.TxInterval = 50 * time.Millisecond

	conf.Logger = common.NewTestLogger(t, level)
	return conf
}

// initialBalances maps node IDs to their genesis allocation. Nodes beyond the
// configured list get DefaultInitialBalance.
func (c *Config) initialBalances() map[string]float64 {
	res := make(map[string]float64, c.Nodes)
	for i := 0; i < c.Nodes; i++ {
		amount := DefaultInitialBalance
		if i < len(c.InitialBalances) {
			amount = c.InitialBalances[i]
		}
		res[strconv.Itoa(i)] = amount
	}
	return res
}
