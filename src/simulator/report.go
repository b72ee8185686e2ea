package simulator

import (
	"time"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/net"
)

// NodeSummary is the end-of-run state of one node.
type NodeSummary struct {
	ID               string           `json:"node_id"`
	Info             blockchain.Info  `json:"chain"`
	BlocksMined      int              `json:"blocks_mined"`
	ProofsIncomplete int              `json:"proofs_incomplete"`
	BlocksReceived   int              `json:"blocks_received"`
	BlocksRejected   int              `json:"blocks_rejected"`
	Traffic          net.TrafficStats `json:"traffic"`
}

// Report is the outcome of a simulation run.
type Report struct {
	Consensus         string        `json:"consensus"`
	Scenario          string        `json:"scenario"`
	Seed              int64         `json:"seed"`
	Elapsed           time.Duration `json:"elapsed"`
	Nodes             []NodeSummary `json:"nodes"`
	Converged         bool          `json:"converged"`
	CommonFinalHeight int           `json:"common_final_height"`
	Violations        []Violation   `json:"violations"`
}

// InvariantsHeld reports whether no violation was recorded.
func (r *Report) InvariantsHeld() bool {
	return len(r.Violations) == 0
}

// ViolationsOf filters the violations by invariant.
func (r *Report) ViolationsOf(inv Invariant) []Violation {
	var res []Violation
	for _, v := range r.Violations {
		if v.Invariant == inv {
			res = append(res, v)
		}
	}
	return res
}
