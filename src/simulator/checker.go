package simulator

import (
	"fmt"
	"sync"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/node"
)

// Invariant names a cross-node property.
type Invariant string

const (
	// FinalityConsistency: no two nodes hold different final blocks at the
	// same height.
	FinalityConsistency Invariant = "finality_consistency"
	// UniqueTransactions: no transaction hash appears twice in a main chain.
	UniqueTransactions Invariant = "unique_transactions"
	// BalanceReplay: replaying the main chain from the genesis allocations
	// reproduces the applied balances.
	BalanceReplay Invariant = "balance_replay"
	// FinalityMonotonicity: a block once final on a node stays final there.
	FinalityMonotonicity Invariant = "finality_monotonicity"
)

// Violation is one failed invariant sample.
type Violation struct {
	Invariant Invariant `json:"invariant"`
	Node      string    `json:"node,omitempty"`
	Height    int       `json:"height"`
	Detail    string    `json:"detail"`
}

func (v Violation) String() string {
	if v.Node == "" {
		return fmt.Sprintf("%s at height %d: %s", v.Invariant, v.Height, v.Detail)
	}
	return fmt.Sprintf("%s on node %s at height %d: %s", v.Invariant, v.Node, v.Height, v.Detail)
}

// Checker samples invariants over a set of nodes. It remembers every final
// block it has seen per node so monotonicity holds across samples.
type Checker struct {
	nodes []*node.Node

	mu         sync.Mutex
	seenFinal  []map[int]string
	violations []Violation
	seen       map[string]bool
	samples    int
}

// NewChecker creates a Checker for nodes.
func NewChecker(nodes []*node.Node) *Checker {
	seenFinal := make([]map[int]string, len(nodes))
	for i := range seenFinal {
		seenFinal[i] = map[int]string{}
	}
	return &Checker{
		nodes:     nodes,
		seenFinal: seenFinal,
		seen:      map[string]bool{},
	}
}

// Check takes one sample and returns the violations it found. Violations
// are also accumulated, each reported once.
func (c *Checker) Check() []Violation {
	snaps := make([]blockchain.Snapshot, len(c.nodes))
	initial := make([]map[string]float64, len(c.nodes))
	for i, n := range c.nodes {
		snaps[i] = n.Blockchain().Snapshot()
		initial[i] = n.Blockchain().InitialBalances()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples++

	var found []Violation
	found = append(found, checkFinalityConsistency(c.nodes, snaps)...)
	for i, n := range c.nodes {
		found = append(found, checkUniqueTransactions(n.ID(), snaps[i])...)
		found = append(found, checkBalanceReplay(n.ID(), initial[i], snaps[i])...)
		found = append(found, c.checkMonotonicity(i, n.ID(), snaps[i])...)
	}

	for _, v := range found {
		key := v.String()
		if !c.seen[key] {
			c.seen[key] = true
			c.violations = append(c.violations, v)
		}
	}
	return found
}

// Violations returns every distinct violation found so far.
func (c *Checker) Violations() []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]Violation, len(c.violations))
	copy(res, c.violations)
	return res
}

// Samples is the number of Check calls.
func (c *Checker) Samples() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples
}

func checkFinalityConsistency(nodes []*node.Node, snaps []blockchain.Snapshot) []Violation {
	var res []Violation
	byHeight := map[int]string{}
	owner := map[int]string{}
	for i, snap := range snaps {
		for _, b := range snap.Final() {
			prev, ok := byHeight[b.Height]
			if !ok {
				byHeight[b.Height] = b.Hash
				owner[b.Height] = nodes[i].ID()
				continue
			}
			if prev != b.Hash {
				res = append(res, Violation{
					Invariant: FinalityConsistency,
					Node:      nodes[i].ID(),
					Height:    b.Height,
					Detail:    fmt.Sprintf("final %s here, %s on node %s", b.Hash, prev, owner[b.Height]),
				})
			}
		}
	}
	return res
}

func checkUniqueTransactions(id string, snap blockchain.Snapshot) []Violation {
	var res []Violation
	seen := map[string]int{}
	for _, b := range snap.MainChain {
		for _, tx := range b.Transactions {
			if h, ok := seen[tx.Hash]; ok {
				res = append(res, Violation{
					Invariant: UniqueTransactions,
					Node:      id,
					Height:    b.Height,
					Detail:    fmt.Sprintf("transaction %s already at height %d", tx.Hash, h),
				})
				continue
			}
			seen[tx.Hash] = b.Height
		}
	}
	return res
}

func checkBalanceReplay(id string, initial map[string]float64, snap blockchain.Snapshot) []Violation {
	replayed := blockchain.ReplayBalances(initial, snap.MainChain)
	height := len(snap.MainChain) - 1

	var res []Violation
	for addr, amount := range replayed {
		if snap.Balances[addr] != amount {
			res = append(res, Violation{
				Invariant: BalanceReplay,
				Node:      id,
				Height:    height,
				Detail:    fmt.Sprintf("%s: applied %v, replayed %v", addr, snap.Balances[addr], amount),
			})
		}
	}
	for addr, amount := range snap.Balances {
		if _, ok := replayed[addr]; !ok && amount != 0 {
			res = append(res, Violation{
				Invariant: BalanceReplay,
				Node:      id,
				Height:    height,
				Detail:    fmt.Sprintf("%s: applied %v, absent from replay", addr, amount),
			})
		}
	}
	return res
}

func (c *Checker) checkMonotonicity(i int, id string, snap blockchain.Snapshot) []Violation {
	var res []Violation
	seen := c.seenFinal[i]

	for h, hash := range seen {
		if h >= len(snap.MainChain) {
			res = append(res, Violation{
				Invariant: FinalityMonotonicity,
				Node:      id,
				Height:    h,
				Detail:    fmt.Sprintf("final block %s no longer on the main chain", hash),
			})
			continue
		}
		if snap.MainChain[h].Hash != hash {
			res = append(res, Violation{
				Invariant: FinalityMonotonicity,
				Node:      id,
				Height:    h,
				Detail:    fmt.Sprintf("final block %s replaced by %s", hash, snap.MainChain[h].Hash),
			})
		}
	}

	for _, b := range snap.Final() {
		if _, ok := seen[b.Height]; !ok {
			seen[b.Height] = b.Hash
		}
	}
	return res
}
