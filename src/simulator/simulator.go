package simulator

import (
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/net"
	"github.com/mosaicnetworks/forkchain/src/node"
	"github.com/mosaicnetworks/forkchain/src/scenario"
	"github.com/sirupsen/logrus"
)

// Simulator owns a network of in-process nodes.
type Simulator struct {
	conf   *Config
	logger *logrus.Entry

	nodes      []*node.Node
	transports []*net.InmemTransport

	schedule   *scenario.PartitionSchedule
	generators []*scenario.TxGenerator

	checker *Checker

	mu      sync.Mutex
	started bool
	stopped bool
	start   time.Time
}

// New builds conf.Nodes nodes, each with its own algorithm instance, and
// connects their transports. An unknown consensus type is a
// ConfigurationError.
func New(conf *Config) (*Simulator, error) {
	if conf.Nodes < 1 {
		return nil, consensus.NewConfigurationError("need at least one node, got %d", conf.Nodes)
	}
	kind, err := consensus.ParseKind(conf.Consensus.Type)
	if err != nil {
		return nil, err
	}
	if kind == consensus.HybridKind && len(conf.Consensus.Stakes) != conf.Nodes {
		return nil, consensus.NewConfigurationError("%d stakes for %d nodes", len(conf.Consensus.Stakes), conf.Nodes)
	}

	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	if conf.Node == nil {
		conf.Node = node.DefaultConfig()
	}
	if conf.Node.Logger == nil {
		conf.Node.Logger = conf.Logger
	}

	s := &Simulator{
		conf: conf,
		logger: conf.Logger.WithFields(logrus.Fields{
			"component": "simulator",
			"consensus": kind.String(),
		}),
	}

	balances := conf.initialBalances()

	for i := 0; i < conf.Nodes; i++ {
		id := strconv.Itoa(i)
		nodeLogger := conf.Logger.WithField("this_id", id)

		algo, err := consensus.New(conf.Consensus, nodeLogger)
		if err != nil {
			return nil, err
		}

		chainConf := blockchain.NewDefaultConfig()
		chainConf.FinalityDepth = conf.FinalityDepth
		chainConf.InitialBalances = balances
		chainConf.Logger = nodeLogger
		chain := blockchain.NewBlockchain(chainConf, algo)

		_, trans := net.NewInmemTransport(id, nodeLogger)

		nodeConf := *conf.Node
		s.nodes = append(s.nodes, node.NewNode(id, &nodeConf, algo, chain, trans))
		s.transports = append(s.transports, trans)
	}

	net.ConnectAll(s.transports)

	s.checker = NewChecker(s.nodes)

	return s, nil
}

// Nodes returns the simulated nodes.
func (s *Simulator) Nodes() []*node.Node {
	return s.nodes
}

// Node returns node i.
func (s *Simulator) Node(i int) *node.Node {
	return s.nodes[i]
}

func (s *Simulator) ids() []string {
	ids := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		ids[i] = n.ID()
	}
	return ids
}

// Start runs every node and arms the scenario.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.start = time.Now()

	sc := s.conf.Scenario

	s.logger.WithFields(logrus.Fields{
		"nodes":    len(s.nodes),
		"scenario": sc.Kind.String(),
		"seed":     sc.Seed,
	}).Info("Starting simulation")

	if sc.Kind == scenario.Delays {
		scenario.ApplyDelays(s.transports, sc.MinDelay, sc.MaxDelay, sc.Seed)
	}

	for _, n := range s.nodes {
		n.RunAsync()
	}

	switch sc.Kind {
	case scenario.Delays:
		submitters := make([]scenario.Submitter, len(s.nodes))
		for i, n := range s.nodes {
			submitters[i] = n
		}
		count := scenario.Burst(submitters, sc.BurstSize, 1, 5, sc.Seed)
		s.logger.WithField("transactions", count).Info("Initial transaction burst")
	case scenario.Partition:
		targets := make([]scenario.Partitioner, len(s.nodes))
		for i, n := range s.nodes {
			targets[i] = n
		}
		s.schedule = scenario.NewPartitionSchedule(targets, sc.Groups, sc.PartitionAfter, sc.PartitionDuration, s.logger)
		s.schedule.Start()
	}

	ids := s.ids()
	for i, n := range s.nodes {
		g := scenario.NewTxGenerator(n, ids, sc, sc.Seed+int64(i), s.logger)
		g.Start()
		s.generators = append(s.generators, g)
	}
}

// Run starts the simulation and samples the invariants every CheckInterval.
// After Duration the transaction generators stop and the network gets up to
// SettleTime to converge before every node is stopped.
func (s *Simulator) Run() *Report {
	s.Start()

	s.sampleUntil(time.After(s.conf.Duration), nil)

	s.StopTraffic()
	if s.conf.SettleTime > 0 {
		s.sampleUntil(time.After(s.conf.SettleTime), s.Settled)
	}

	s.Stop()
	return s.Report()
}

// sampleUntil checks the invariants every CheckInterval until deadline fires
// or done returns true.
func (s *Simulator) sampleUntil(deadline <-chan time.Time, done func() bool) {
	interval := s.conf.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checker.Check()
			if done != nil && done() {
				return
			}
		case <-deadline:
			return
		}
	}
}

// StopTraffic stops the transaction generators and heals any partition so
// that the network can settle.
func (s *Simulator) StopTraffic() {
	for _, g := range s.generators {
		g.Stop()
	}
	s.Heal()
}

// Settled reports whether every node has the same tip and an empty pool.
func (s *Simulator) Settled() bool {
	tip := ""
	for i, n := range s.nodes {
		bc := n.Blockchain()
		if bc.PendingCount() != 0 {
			return false
		}
		h := bc.LatestBlock().Hash
		if i == 0 {
			tip = h
		} else if h != tip {
			return false
		}
	}
	return true
}

// Stop halts the generators, heals the partition, cancels pending scenario
// timers and shuts every node down.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.StopTraffic()
	if s.schedule != nil {
		s.schedule.Stop()
	}
	for _, n := range s.nodes {
		n.Shutdown()
	}

	s.logger.WithField("elapsed", time.Since(s.start)).Info("Simulation stopped")
}

// Heal lifts the partition if one is scheduled or active.
func (s *Simulator) Heal() {
	if s.schedule != nil {
		s.schedule.Heal()
	}
}

// Check samples the invariants now.
func (s *Simulator) Check() []Violation {
	return s.checker.Check()
}

// Report summarizes the nodes and the invariants checked so far, including a
// final sample.
func (s *Simulator) Report() *Report {
	s.checker.Check()

	r := &Report{
		Consensus:  s.conf.Consensus.Type,
		Scenario:   s.conf.Scenario.Kind.String(),
		Seed:       s.conf.Scenario.Seed,
		Violations: s.checker.Violations(),
	}
	if !s.start.IsZero() {
		r.Elapsed = time.Since(s.start)
	}

	tips := map[string]bool{}
	for _, n := range s.nodes {
		info := n.ChainInfo()
		stats := n.Stats()
		r.Nodes = append(r.Nodes, NodeSummary{
			ID:               n.ID(),
			Info:             info,
			BlocksMined:      stats.BlocksMined,
			ProofsIncomplete: stats.ProofsIncomplete,
			BlocksReceived:   stats.BlocksReceived,
			BlocksRejected:   stats.BlocksRejected,
			Traffic:          n.Transport().Stats(),
		})
		tips[info.LatestHash] = true
	}
	r.Converged = len(tips) == 1
	r.CommonFinalHeight = commonFinalHeight(s.nodes)

	return r
}

// commonFinalHeight is the highest height final on every node with the same
// hash, or -1.
func commonFinalHeight(nodes []*node.Node) int {
	if len(nodes) == 0 {
		return -1
	}
	finals := make([][]string, len(nodes))
	shortest := -1
	for i, n := range nodes {
		for _, b := range n.Blockchain().FinalBlocks() {
			finals[i] = append(finals[i], b.Hash)
		}
		if shortest < 0 || len(finals[i]) < shortest {
			shortest = len(finals[i])
		}
	}

	agreed := -1
	for h := 0; h < shortest; h++ {
		for i := 1; i < len(finals); i++ {
			if finals[i][h] != finals[0][h] {
				return agreed
			}
		}
		agreed = h
	}
	return agreed
}
