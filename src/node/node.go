package node

import (
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/mosaicnetworks/forkchain/src/net"
	"github.com/sirupsen/logrus"
)

// Node is one participant of the network. It ties a Blockchain, a consensus
// Algorithm and a Transport together.
type Node struct {
	// The node's state (Idle, Running or Shutdown)
	state

	id     string
	conf   *Config
	logger *logrus.Entry

	algo  consensus.Algorithm
	chain *blockchain.Blockchain

	// coreLock makes every mine-then-commit step and every inbound
	// application atomic with respect to the other loop.
	coreLock sync.Mutex

	trans net.Transport
	netCh <-chan *net.NetworkMessage

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	controlTimer *ControlTimer

	stats statsCounter
	start time.Time
}

// NewNode creates a Node identified by id. id doubles as the proposer
// identity, so under hybrid consensus it must be the node's index in the stake
// table.
func NewNode(id string,
	conf *Config,
	algo consensus.Algorithm,
	chain *blockchain.Blockchain,
	trans net.Transport) *Node {

	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}

	node := &Node{
		id:   id,
		conf: conf,
		logger: conf.Logger.WithFields(logrus.Fields{
			"this_id":   id,
			"consensus": algo.Kind().String(),
		}),
		algo:         algo,
		chain:        chain,
		trans:        trans,
		netCh:        trans.Consumer(),
		shutdownCh:   make(chan struct{}),
		controlTimer: NewFixedControlTimer(),
	}

	node.setState(Idle)

	return node
}

// RunAsync starts the node in a separate goroutine.
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	go n.Run()
}

// Run starts the process, mining and heartbeat loops and blocks until
// Shutdown.
func (n *Node) Run() {
	if n.getState() != Idle {
		return
	}
	n.setState(Running)
	n.start = time.Now()

	interval := n.conf.MiningIntervalFor(n.algo.Kind())

	n.logger.WithFields(logrus.Fields{
		"mining_interval": interval,
		"poll_timeout":    n.conf.PollTimeout,
	}).Info("Node running")

	go n.trans.Listen()

	n.goFunc(func() { n.controlTimer.Run(interval) })
	n.goFunc(n.processLoop)
	n.goFunc(func() { n.miningLoop(interval) })
	if n.conf.HeartbeatInterval > 0 {
		n.goFunc(n.heartbeatLoop)
	}

	<-n.shutdownCh
}

// processLoop drains the inbound queue. The poll timeout bounds how long the
// loop can go without checking the running flag.
func (n *Node) processLoop() {
	pollTimeout := n.conf.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	for n.running() {
		select {
		case msg, ok := <-n.netCh:
			if !ok {
				return
			}
			n.processMessage(msg)
		case <-time.After(pollTimeout):
		case <-n.shutdownCh:
			return
		}
	}
}

// miningLoop attempts one block per control timer tick.
func (n *Node) miningLoop(interval time.Duration) {
	for n.running() {
		select {
		case <-n.controlTimer.tickCh:
			if !n.running() {
				return
			}
			n.mineOnce()
			if !n.controlTimer.Reset(interval) {
				return
			}
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) heartbeatLoop() {
	ticker := time.NewTicker(n.conf.HeartbeatInterval)
	defer ticker.Stop()

	for n.running() {
		select {
		case <-ticker.C:
			n.sendHeartbeat()
		case <-n.shutdownCh:
			return
		}
	}
}

// mineOnce runs one mine-then-commit step and broadcasts the result. A block
// whose proof budget ran out is discarded and its transactions go back to the
// pool.
func (n *Node) mineOnce() *ledger.Block {
	n.coreLock.Lock()
	if pow, ok := n.algo.(*consensus.ProofOfWork); ok {
		pow.Retarget(n.chain.MainChain())
	}
	block, err := consensus.Mine(n.algo, n.chain, n.id, n.conf.MaxTxPerBlock)
	if block == nil {
		n.coreLock.Unlock()
		if err != nil && !consensus.IsNormalMineError(err) {
			n.logger.WithError(err).Error("Mining")
		}
		return nil
	}

	if consensus.IsProofIncomplete(err) {
		n.restoreTransactions(block)
		n.coreLock.Unlock()

		n.stats.update(func(s *Stats) { s.ProofsIncomplete++ })
		n.event("proof_incomplete", logrus.Fields{
			"height": block.Height,
			"nonce":  block.Nonce,
			"txs":    len(block.Transactions),
		})
		return nil
	}

	res, addErr := n.chain.AddBlock(block)
	if addErr != nil {
		n.restoreTransactions(block)
	}
	n.coreLock.Unlock()

	if addErr != nil {
		n.logger.WithError(addErr).WithField("height", block.Height).Warn("Own block not accepted")
		return nil
	}

	n.stats.update(func(s *Stats) { s.BlocksMined++ })

	n.event("block_created", logrus.Fields{
		"height":          block.Height,
		"hash":            block.Hash,
		"txs":             len(block.Transactions),
		"nonce":           block.Nonce,
		"is_backup":       block.IsBackupProposal,
		"result":          res.String(),
		"expected_leader": block.ExpectedLeader,
	})

	msg, err := net.NewBlockProposal(n.id, block)
	if err != nil {
		n.logger.WithError(err).Error("Encoding block proposal")
		return block
	}
	delivered := n.trans.Broadcast(msg)

	n.event("block_proposed", logrus.Fields{
		"height":    block.Height,
		"hash":      block.Hash,
		"delivered": delivered,
	})

	return block
}

// restoreTransactions puts back whatever Mine took out of the pool for block
// and is still admissible. Callers hold coreLock.
func (n *Node) restoreTransactions(block *ledger.Block) {
	for _, tx := range block.Transactions {
		n.chain.AddPendingTransaction(tx)
	}
}

// SubmitTransaction creates a transaction from this node to receiver, adds it
// to the local pool and broadcasts it.
func (n *Node) SubmitTransaction(receiver string, amount float64) (*ledger.Transaction, error) {
	tx := ledger.NewTransaction(n.id, receiver, amount, ledger.Now())
	tx.Sign(n.id)

	n.coreLock.Lock()
	err := n.chain.AddPendingTransaction(tx)
	n.coreLock.Unlock()
	if err != nil {
		return nil, err
	}

	n.stats.update(func(s *Stats) { s.TxSubmitted++ })

	msg, err := net.NewTransactionBroadcast(n.id, tx)
	if err != nil {
		return tx, err
	}
	delivered := n.trans.Broadcast(msg)

	n.event("transaction_broadcast", logrus.Fields{
		"tx_hash":   tx.Hash,
		"receiver":  receiver,
		"amount":    amount,
		"delivered": delivered,
	})

	return tx, nil
}

// SetPartition restricts outbound traffic to peers.
func (n *Node) SetPartition(peers []string) {
	n.trans.SetAllowedPeers(peers)
	n.event("partition_start", logrus.Fields{"allowed_peers": peers})
}

// HealPartition lifts the partition, announces it, asks everyone for their
// chain and re-sends the local pending pool, so that the sides converge
// without waiting for the next block.
func (n *Node) HealPartition() {
	n.trans.Heal()
	n.event("partition_heal", nil)

	if msg, err := net.NewPartitionHeal(n.id); err == nil {
		n.trans.Broadcast(msg)
	}
	n.requestChain("")

	// Transactions broadcast during the split never crossed it.
	for _, tx := range n.chain.PendingTransactions(-1) {
		if msg, err := net.NewTransactionBroadcast(n.id, tx); err == nil {
			n.trans.Broadcast(msg)
		}
	}
}

// requestChain asks peer (everyone when empty) for main-chain blocks above
// our last final block.
func (n *Node) requestChain(peer string) {
	from := n.chain.FinalityHeight()
	if from < 0 {
		from = 0
	}

	msg, err := net.NewChainRequest(n.id, peer, from)
	if err != nil {
		n.logger.WithError(err).Error("Encoding chain request")
		return
	}
	if peer == "" {
		n.trans.Broadcast(msg)
	} else {
		n.trans.Send(peer, msg)
	}
	n.stats.update(func(s *Stats) { s.ChainRequests++ })
}

func (n *Node) sendHeartbeat() {
	msg, err := net.NewHeartbeat(n.id, n.chain.LatestBlock())
	if err != nil {
		n.logger.WithError(err).Error("Encoding heartbeat")
		return
	}
	n.trans.Broadcast(msg)
}

func (n *Node) event(name string, fields logrus.Fields) {
	n.logger.WithField("event", name).WithFields(fields).Info("EVENT")
}

// Shutdown stops the loops and closes the transport. Loops exit at their next
// poll or tick; an in-flight mining attempt runs to the end of its budget.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.setState(Shutdown)

		close(n.shutdownCh)

		n.controlTimer.Shutdown()

		n.waitRoutines()

		n.trans.Close()

		n.logStats()
	})
}

// ID returns the node identifier.
func (n *Node) ID() string {
	return n.id
}

// State returns the node state.
func (n *Node) State() State {
	return n.getState()
}

// Blockchain returns the node's chain.
func (n *Node) Blockchain() *blockchain.Blockchain {
	return n.chain
}

// Algorithm returns the node's consensus algorithm.
func (n *Node) Algorithm() consensus.Algorithm {
	return n.algo
}

// Transport returns the node's transport.
func (n *Node) Transport() net.Transport {
	return n.trans
}

// Balance returns the balance of addr on the main chain.
func (n *Node) Balance(addr string) float64 {
	return n.chain.Balance(addr)
}

// ChainInfo summarizes the node's chain, reporting the node's own balance.
func (n *Node) ChainInfo() blockchain.Info {
	return n.chain.Info(n.id)
}

// Stats returns a copy of the node counters.
func (n *Node) Stats() Stats {
	return n.stats.snapshot()
}

// GetStats returns the node statistics as strings.
func (n *Node) GetStats() map[string]string {
	info := n.ChainInfo()
	stats := n.Stats()
	traffic := n.trans.Stats()

	var timeElapsed time.Duration
	if !n.start.IsZero() {
		timeElapsed = time.Since(n.start)
	}

	var blocksPerSecond float64
	if timeElapsed > 0 {
		blocksPerSecond = float64(info.ChainLength-1) / timeElapsed.Seconds()
	}

	s := map[string]string{
		"id":                   n.id,
		"state":                n.getState().String(),
		"consensus":            n.algo.Kind().String(),
		"chain_length":         strconv.Itoa(info.ChainLength),
		"latest_block_height":  strconv.Itoa(info.LatestHeight),
		"latest_block_hash":    info.LatestHash,
		"finality_height":      strconv.Itoa(info.FinalityHeight),
		"balance":              strconv.FormatFloat(info.Balance, 'f', 2, 64),
		"pending_transactions": strconv.Itoa(info.Pending),
		"orphan_blocks":        strconv.Itoa(info.Orphans),
		"buffered_blocks":      strconv.Itoa(info.Buffered),
		"reorgs":               strconv.Itoa(info.Reorgs),
		"refused_reorgs":       strconv.Itoa(info.RefusedReorgs),
		"blocks_mined":         strconv.Itoa(stats.BlocksMined),
		"proofs_incomplete":    strconv.Itoa(stats.ProofsIncomplete),
		"blocks_received":      strconv.Itoa(stats.BlocksReceived),
		"blocks_rejected":      strconv.Itoa(stats.BlocksRejected),
		"forks_resolved":       strconv.Itoa(stats.ForksResolved),
		"messages_sent":        strconv.Itoa(traffic.Sent),
		"messages_received":    strconv.Itoa(traffic.Received),
		"messages_dropped":     strconv.Itoa(traffic.Dropped),
		"blocks_per_second":    strconv.FormatFloat(blocksPerSecond, 'f', 2, 64),
	}
	if pow, ok := n.algo.(*consensus.ProofOfWork); ok {
		s["difficulty"] = strconv.Itoa(pow.Difficulty())
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	fields := logrus.Fields{}
	for k, v := range stats {
		fields[k] = v
	}
	n.logger.WithFields(fields).Debug("Stats")
}
