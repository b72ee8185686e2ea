package scenario

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/sirupsen/logrus"
)

// Submitter is the part of a node the generator pays from.
type Submitter interface {
	ID() string
	Balance(addr string) float64
	SubmitTransaction(receiver string, amount float64) (*ledger.Transaction, error)
}

// TxGenerator submits random payments from one node to its peers.
type TxGenerator struct {
	node        Submitter
	receivers   []string
	probability float64
	minAmount   float64
	maxAmount   float64
	interval    time.Duration
	logger      *logrus.Entry

	rngLock sync.Mutex
	rng     *rand.Rand

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewTxGenerator creates a generator for node. peers lists every node ID of
// the network; the node's own ID is skipped.
func NewTxGenerator(node Submitter, peers []string, conf *Config, seed int64, logger *logrus.Entry) *TxGenerator {
	receivers := make([]string, 0, len(peers))
	for _, p := range peers {
		if p != node.ID() {
			receivers = append(receivers, p)
		}
	}

	return &TxGenerator{
		node:        node,
		receivers:   receivers,
		probability: conf.TxProbability,
		minAmount:   conf.MinAmount,
		maxAmount:   conf.MaxAmount,
		interval:    conf.TxInterval,
		logger:      logger.WithField("generator", node.ID()),
		rng:         rand.New(rand.NewSource(seed)),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// roundCents rounds to two decimals.
func roundCents(x float64) float64 {
	return math.Round(x*100) / 100
}

// Step draws once. It returns the submitted transaction, or nil when the draw
// missed, the balance did not cover the amount or the pool refused it.
func (g *TxGenerator) Step() *ledger.Transaction {
	if len(g.receivers) == 0 {
		return nil
	}

	g.rngLock.Lock()
	hit := g.rng.Float64() < g.probability
	receiver := g.receivers[g.rng.Intn(len(g.receivers))]
	amount := roundCents(g.minAmount + g.rng.Float64()*(g.maxAmount-g.minAmount))
	g.rngLock.Unlock()

	if !hit {
		return nil
	}
	if g.node.Balance(g.node.ID()) < amount {
		return nil
	}

	tx, err := g.node.SubmitTransaction(receiver, amount)
	if err != nil {
		g.logger.WithError(err).Debug("Generated transaction refused")
		return nil
	}

	g.logger.WithFields(logrus.Fields{
		"receiver": receiver,
		"amount":   amount,
	}).Debug("Generated transaction")
	return tx
}

// Start runs Step every interval until Stop.
func (g *TxGenerator) Start() {
	g.startOnce.Do(func() { go g.run() })
}

func (g *TxGenerator) run() {
	defer close(g.doneCh)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.Step()
		case <-g.stopCh:
			return
		}
	}
}

// Stop halts the generator and waits for it.
func (g *TxGenerator) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
	// A generator that never started has nothing to wait for.
	g.startOnce.Do(func() { close(g.doneCh) })
	<-g.doneCh
}

// Burst submits count payments between random pairs of nodes, each for an
// amount in [min, max]. Pairs whose sender cannot cover the amount are
// skipped. It returns the number submitted.
func Burst(nodes []Submitter, count int, min, max float64, seed int64) int {
	if len(nodes) < 2 {
		return 0
	}
	rng := rand.New(rand.NewSource(seed))

	submitted := 0
	for i := 0; i < count; i++ {
		s := rng.Intn(len(nodes))
		r := rng.Intn(len(nodes))
		for r == s {
			r = rng.Intn(len(nodes))
		}
		sender := nodes[s]
		amount := roundCents(min + rng.Float64()*(max-min))

		if sender.Balance(sender.ID()) < amount {
			continue
		}
		if _, err := sender.SubmitTransaction(nodes[r].ID(), amount); err == nil {
			submitted++
		}
	}
	return submitted
}
