package net

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultInmemBuffer is the capacity of an InmemTransport inbox.
const DefaultInmemBuffer = 1024

// NewInmemAddr returns a random identifier for a transport created without
// one.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemTransport Implements the Transport interface, to allow nodes to be
// simulated in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	trafficCounter

	consumerCh chan *NetworkMessage
	localID    string
	peers      map[string]*InmemTransport
	partition  *partition
	delay      DelayFunc

	shutdown   bool
	shutdownCh chan struct{}

	logger *logrus.Entry
}

// NewInmemTransport is used to initialize a new transport and generates a
// random local identifier if none is specified.
func NewInmemTransport(id string, logger *logrus.Entry) (string, *InmemTransport) {
	if id == "" {
		id = NewInmemAddr()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	trans := &InmemTransport{
		consumerCh: make(chan *NetworkMessage, DefaultInmemBuffer),
		localID:    id,
		peers:      make(map[string]*InmemTransport),
		partition:  newPartition(id),
		shutdownCh: make(chan struct{}),
		logger:     logger.WithField("transport", "inmem"),
	}
	return id, trans
}

// SetDelay installs a per-message delivery delay. nil delivers immediately.
func (i *InmemTransport) SetDelay(delay DelayFunc) {
	i.Lock()
	defer i.Unlock()
	i.delay = delay
}

// Listen implements the Transport interface. Delivery needs no listener.
func (i *InmemTransport) Listen() {
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan *NetworkMessage {
	return i.consumerCh
}

// LocalID implements the Transport interface.
func (i *InmemTransport) LocalID() string {
	return i.localID
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(receiverID string, msg *NetworkMessage) bool {
	if !i.partition.allows(receiverID) {
		i.logger.WithField("to", receiverID).Debug("Not sending, partitioned")
		return false
	}

	i.RLock()
	peer, ok := i.peers[receiverID]
	delay := i.delay
	shutdown := i.shutdown
	i.RUnlock()

	if !ok || shutdown {
		return false
	}

	if delay != nil {
		if d := delay(); d > 0 {
			time.AfterFunc(d, func() {
				if !peer.deliver(msg) {
					i.dropped()
				}
			})
			i.sent()
			return true
		}
	}

	if !peer.deliver(msg) {
		i.dropped()
		return false
	}
	i.sent()
	return true
}

// deliver pushes msg into the inbox without blocking. A full or closed inbox
// drops the message.
func (i *InmemTransport) deliver(msg *NetworkMessage) bool {
	i.RLock()
	defer i.RUnlock()
	if i.shutdown {
		return false
	}
	select {
	case i.consumerCh <- msg:
		i.received()
		return true
	default:
		i.logger.WithField("type", msg.Type).Warn("Inbox full, dropping message")
		return false
	}
}

// Broadcast implements the Transport interface.
func (i *InmemTransport) Broadcast(msg *NetworkMessage) int {
	i.RLock()
	ids := make([]string, 0, len(i.peers))
	for id := range i.peers {
		ids = append(ids, id)
	}
	i.RUnlock()

	count := 0
	for _, id := range ids {
		if i.Send(id, msg) {
			count++
		}
	}
	return count
}

// SetAllowedPeers implements the Transport interface.
func (i *InmemTransport) SetAllowedPeers(peers []string) {
	i.partition.set(peers)
	i.logger.WithField("allowed", peers).Info("Partition set")
}

// Heal implements the Transport interface.
func (i *InmemTransport) Heal() {
	i.partition.heal()
	i.logger.Info("Partition healed")
}

// Partitioned implements the Transport interface.
func (i *InmemTransport) Partitioned() bool {
	return i.partition.active()
}

// Connect is used to connect this transport to another transport for a given
// peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport. The inbox is not closed
// so that delayed deliveries in flight never panic.
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	if !i.shutdown {
		i.shutdown = true
		close(i.shutdownCh)
		i.peers = make(map[string]*InmemTransport)
	}
	return nil
}

// ConnectAll wires every transport to every other one.
func ConnectAll(transports []*InmemTransport) {
	for _, a := range transports {
		for _, b := range transports {
			if a != b {
				a.Connect(b.LocalID(), b)
			}
		}
	}
}
