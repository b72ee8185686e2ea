package net

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	bufSize = 64 << 10

	// DefaultInboxSize is the capacity of the consumer channel.
	DefaultInboxSize = 1024
)

/*
NetworkTransport provides a network based transport that can be used to
communicate with forkchain nodes on remote machines. It requires an underlying
stream layer to provide a stream abstraction, which can be simple TCP, TLS,
etc.

Messages are streamed over pooled connections as consecutive JSON encoded
NetworkMessages. There is no response: delivery is one way, and a successful
write is all that Send reports.
*/
type NetworkTransport struct {
	trafficCounter

	logger *logrus.Entry

	localID   string
	peersLock sync.RWMutex
	peers     map[string]string
	partition *partition
	delay     DelayFunc

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	consumeCh chan *NetworkMessage

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
	enc    *json.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. peers maps node identifiers to their addresses. The maxPool controls
// how many connections we will pool (per target). The timeout is used to apply
// I/O deadlines.
func NewNetworkTransport(
	stream StreamLayer,
	localID string,
	peers map[string]string,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	peerCopy := make(map[string]string, len(peers))
	for id, addr := range peers {
		if id != localID {
			peerCopy[id] = addr
		}
	}

	trans := &NetworkTransport{
		connPool:   make(map[string][]*netConn),
		consumeCh:  make(chan *NetworkMessage, DefaultInboxSize),
		localID:    localID,
		peers:      peerCopy,
		partition:  newPartition(localID),
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.connPoolLock.Lock()
		for _, conns := range n.connPool {
			for _, c := range conns {
				c.Release()
			}
		}
		n.connPool = make(map[string][]*netConn)
		n.connPoolLock.Unlock()

		n.shutdown = true
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan *NetworkMessage {
	return n.consumeCh
}

// LocalID implements the Transport interface.
func (n *NetworkTransport) LocalID() string {
	return n.localID
}

// LocalAddr returns the address the stream is bound to.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr returns the address where other peers can reach us.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// SetPeer registers or updates the address of a peer.
func (n *NetworkTransport) SetPeer(id, addr string) {
	if id == n.localID {
		return
	}
	n.peersLock.Lock()
	defer n.peersLock.Unlock()
	n.peers[id] = addr
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// dialConn opens a new connection to target.
func (n *NetworkTransport) dialConn(target string) (*netConn, error) {
	conn, err := n.stream.Dial(target, n.timeout)
	if err != nil {
		return nil, err
	}

	netConn := &netConn{
		target: target,
		conn:   conn,
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	netConn.enc = json.NewEncoder(netConn.w)

	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// SetDelay installs a per-message send delay. nil sends immediately.
func (n *NetworkTransport) SetDelay(delay DelayFunc) {
	n.peersLock.Lock()
	defer n.peersLock.Unlock()
	n.delay = delay
}

// Send implements the Transport interface.
func (n *NetworkTransport) Send(receiverID string, msg *NetworkMessage) bool {
	if n.IsShutdown() {
		return false
	}

	if !n.partition.allows(receiverID) {
		n.logger.WithField("to", receiverID).Debug("Not sending, partitioned")
		return false
	}

	n.peersLock.RLock()
	target, ok := n.peers[receiverID]
	delay := n.delay
	n.peersLock.RUnlock()
	if !ok {
		n.logger.WithField("to", receiverID).Error("Unknown receiver")
		return false
	}

	if delay != nil {
		if d := delay(); d > 0 {
			time.AfterFunc(d, func() {
				if !n.IsShutdown() {
					n.send(receiverID, target, msg)
				}
			})
			return true
		}
	}

	return n.send(receiverID, target, msg)
}

func (n *NetworkTransport) send(receiverID, target string, msg *NetworkMessage) bool {
	// A pooled connection may have been closed by the peer; retry once on a
	// fresh one.
	if conn := n.getPooledConn(target); conn != nil {
		if n.write(conn, msg) == nil {
			n.sent()
			return true
		}
	}

	conn, err := n.dialConn(target)
	if err != nil {
		n.dropped()
		n.logger.WithFields(logrus.Fields{
			"to":    receiverID,
			"error": err,
		}).Debug("Failed to connect")
		return false
	}

	if err := n.write(conn, msg); err != nil {
		n.dropped()
		n.logger.WithFields(logrus.Fields{
			"to":    receiverID,
			"error": err,
		}).Debug("Failed to send")
		return false
	}

	n.sent()
	return true
}

func (n *NetworkTransport) write(conn *netConn, msg *NetworkMessage) error {
	if n.timeout > 0 {
		conn.conn.SetWriteDeadline(time.Now().Add(n.timeout))
	}
	if err := conn.enc.Encode(msg); err != nil {
		conn.Release()
		return err
	}
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	n.returnConn(conn)
	return nil
}

// Broadcast implements the Transport interface.
func (n *NetworkTransport) Broadcast(msg *NetworkMessage) int {
	n.peersLock.RLock()
	ids := sortedKeys(n.peers)
	n.peersLock.RUnlock()

	count := 0
	for _, id := range ids {
		if n.Send(id, msg) {
			count++
		}
	}
	return count
}

// SetAllowedPeers implements the Transport interface.
func (n *NetworkTransport) SetAllowedPeers(peers []string) {
	n.partition.set(peers)
	n.logger.WithField("allowed", peers).Info("Partition set")
}

// Heal implements the Transport interface.
func (n *NetworkTransport) Heal() {
	n.partition.heal()
	n.logger.Info("Partition healed")
}

// Partitioned implements the Transport interface.
func (n *NetworkTransport) Partitioned() bool {
	return n.partition.active()
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn decodes messages from an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	dec := json.NewDecoder(r)

	for {
		msg := new(NetworkMessage)
		if err := dec.Decode(msg); err != nil {
			if err != io.EOF && !n.IsShutdown() {
				n.logger.WithField("error", err).Error("Failed to decode message")
			}
			return
		}

		if !msg.Type.Valid() {
			n.logger.WithField("type", msg.Type).Error("Unknown message type")
			continue
		}

		select {
		case n.consumeCh <- msg:
			n.received()
		case <-n.shutdownCh:
			return
		}
	}
}
