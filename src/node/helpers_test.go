package node

import (
	"strconv"
	"testing"
	"time"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/net"
)

const initialBalance = 100

func testBalances(n int) map[string]float64 {
	res := make(map[string]float64, n)
	for i := 0; i < n; i++ {
		res[strconv.Itoa(i)] = initialBalance
	}
	return res
}

func testConsensusConfig(kind consensus.Kind, n int) consensus.Config {
	conf := consensus.NewDefaultConfig()
	conf.Type = kind.String()
	conf.Difficulty = 1
	conf.MaxMiningTime = time.Second
	conf.LightDifficulty = 1
	conf.LeaderTimeout = 50 * time.Millisecond
	conf.Stakes = make([]int, n)
	for i := range conf.Stakes {
		conf.Stakes[i] = 100 * (i + 1)
	}
	return conf
}

// newTestNode builds a node that is not connected to anything.
func newTestNode(t *testing.T, id string, n int, kind consensus.Kind) (*Node, *net.InmemTransport) {
	return newTestNodeWith(t, id, n, testConsensusConfig(kind, n))
}

func newTestNodeWith(t *testing.T, id string, n int, conf consensus.Config) (*Node, *net.InmemTransport) {
	logger := common.NewTestEntry(t, common.TestLogLevel)

	algo, err := consensus.New(conf, logger)
	if err != nil {
		t.Fatal(err)
	}

	chainConf := blockchain.NewTestConfig(t, common.TestLogLevel)
	chainConf.InitialBalances = testBalances(n)
	chain := blockchain.NewBlockchain(chainConf, algo)

	_, trans := net.NewInmemTransport(id, logger)

	return NewNode(id, NewTestConfig(t, common.TestLogLevel), algo, chain, trans), trans
}

// newTestNetwork builds n fully connected nodes. They are not started.
func newTestNetwork(t *testing.T, n int, kind consensus.Kind) []*Node {
	nodes := make([]*Node, n)
	transports := make([]*net.InmemTransport, n)
	for i := 0; i < n; i++ {
		nodes[i], transports[i] = newTestNode(t, strconv.Itoa(i), n, kind)
	}
	net.ConnectAll(transports)
	return nodes
}

func runNodes(nodes []*Node) {
	for _, n := range nodes {
		n.RunAsync()
	}
}

func shutdownNodes(nodes []*Node) {
	for _, n := range nodes {
		n.Shutdown()
	}
}

// waitFor polls cond until it holds or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func sameTip(nodes []*Node) bool {
	tip := nodes[0].Blockchain().LatestBlock().Hash
	for _, n := range nodes[1:] {
		if n.Blockchain().LatestBlock().Hash != tip {
			return false
		}
	}
	return true
}

// drain processes every message already queued for n.
func drain(t *testing.T, n *Node, trans *net.InmemTransport) int {
	count := 0
	for {
		select {
		case msg := <-trans.Consumer():
			n.processMessage(msg)
			count++
		case <-time.After(50 * time.Millisecond):
			return count
		}
	}
}
