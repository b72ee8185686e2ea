package net

import (
	"errors"
	"sort"
	"sync"
)

// ErrTransportShutdown is returned when operations on a transport are invoked
// after it's been terminated.
var ErrTransportShutdown = errors.New("transport shutdown")

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Listen starts delivering inbound messages. It blocks until Close for
	// transports that accept connections.
	Listen()

	// Consumer returns the channel of inbound messages.
	Consumer() <-chan *NetworkMessage

	// LocalID is the identifier of the node owning this transport.
	LocalID() string

	// Send delivers msg to one peer. It returns false when the peer is
	// unknown, partitioned away or unreachable.
	Send(receiverID string, msg *NetworkMessage) bool

	// Broadcast sends msg to every reachable peer and returns how many
	// accepted it.
	Broadcast(msg *NetworkMessage) int

	// SetAllowedPeers restricts outbound traffic to the given peers.
	SetAllowedPeers(peers []string)

	// Heal lifts the restriction set by SetAllowedPeers.
	Heal()

	// Partitioned reports whether a partition is in place.
	Partitioned() bool

	// Stats returns traffic counters.
	Stats() TrafficStats

	// Close permanently closes a transport, stopping any associated
	// goroutines and freeing other resources.
	Close() error
}

// TrafficStats counts messages through a transport.
type TrafficStats struct {
	Sent     int `json:"messages_sent"`
	Received int `json:"messages_received"`
	Dropped  int `json:"messages_dropped"`
}

// partition is the allowed-peer set shared by all transports. It has its own
// lock so that scenario timers never contend with the node.
type partition struct {
	sync.RWMutex
	localID     string
	partitioned bool
	allowed     map[string]struct{}
}

func newPartition(localID string) *partition {
	return &partition{localID: localID}
}

func (p *partition) set(peers []string) {
	allowed := make(map[string]struct{}, len(peers))
	for _, id := range peers {
		if id != p.localID {
			allowed[id] = struct{}{}
		}
	}
	p.Lock()
	p.partitioned = true
	p.allowed = allowed
	p.Unlock()
}

func (p *partition) heal() {
	p.Lock()
	p.partitioned = false
	p.allowed = nil
	p.Unlock()
}

func (p *partition) active() bool {
	p.RLock()
	defer p.RUnlock()
	return p.partitioned
}

func (p *partition) allows(id string) bool {
	p.RLock()
	defer p.RUnlock()
	if !p.partitioned {
		return true
	}
	_, ok := p.allowed[id]
	return ok
}

// trafficCounter is embedded by transports to implement Stats.
type trafficCounter struct {
	mu    sync.Mutex
	stats TrafficStats
}

func (c *trafficCounter) sent() {
	c.mu.Lock()
	c.stats.Sent++
	c.mu.Unlock()
}

func (c *trafficCounter) received() {
	c.mu.Lock()
	c.stats.Received++
	c.mu.Unlock()
}

func (c *trafficCounter) dropped() {
	c.mu.Lock()
	c.stats.Dropped++
	c.mu.Unlock()
}

// Stats implements the Transport interface.
func (c *trafficCounter) Stats() TrafficStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func sortedKeys(m map[string]string) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
