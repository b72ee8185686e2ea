package node

import (
	"sync"
)

// Stats are the counters kept by a Node.
type Stats struct {
	BlocksMined      int `json:"blocks_mined"`
	ProofsIncomplete int `json:"proofs_incomplete"`
	BlocksReceived   int `json:"blocks_received"`
	BlocksRejected   int `json:"blocks_rejected"`
	BlocksBuffered   int `json:"blocks_buffered"`
	ForksResolved    int `json:"forks_resolved"`
	TxSubmitted      int `json:"transactions_submitted"`
	TxReceived       int `json:"transactions_received"`
	TxRejected       int `json:"transactions_rejected"`
	ChainRequests    int `json:"chain_requests"`
	ChainResponses   int `json:"chain_responses"`
	Heartbeats       int `json:"heartbeats"`
}

type statsCounter struct {
	mu    sync.Mutex
	stats Stats
}

func (s *statsCounter) update(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}

func (s *statsCounter) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
