package net

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultRedisPrefix is prepended to node identifiers to form channel names.
const DefaultRedisPrefix = "forkchain:node:"

// RedisTransport implements the Transport interface over Redis pub/sub. Every
// node subscribes to its own channel; sending publishes to the receiver's.
type RedisTransport struct {
	trafficCounter

	localID   string
	prefix    string
	peersLock sync.RWMutex
	peers     map[string]struct{}
	partition *partition
	delay     DelayFunc

	client  *redis.Client
	pubsub  *redis.PubSub
	timeout time.Duration

	consumeCh chan *NetworkMessage

	ctx    context.Context
	cancel context.CancelFunc

	shutdownLock sync.Mutex
	shutdown     bool

	logger *logrus.Entry
}

// RedisConfig holds the connection parameters of a RedisTransport.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
}

// NewRedisTransport connects to Redis and subscribes to the channel of
// localID. peers lists the identifiers of the other nodes.
func NewRedisTransport(conf RedisConfig, localID string, peers []string, logger *logrus.Entry) (*RedisTransport, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	if conf.Prefix == "" {
		conf.Prefix = DefaultRedisPrefix
	}
	if conf.Timeout <= 0 {
		conf.Timeout = time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		DialTimeout:  conf.Timeout,
		ReadTimeout:  conf.Timeout,
		WriteTimeout: conf.Timeout,
	})

	ctx, cancel := context.WithCancel(context.Background())

	pingCtx, pingCancel := context.WithTimeout(ctx, conf.Timeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %v", conf.Addr, err)
	}

	pubsub := client.Subscribe(ctx, conf.Prefix+localID)
	if _, err := pubsub.Receive(pingCtx); err != nil {
		cancel()
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("subscribing to %s: %v", conf.Prefix+localID, err)
	}

	peerSet := make(map[string]struct{}, len(peers))
	for _, id := range peers {
		if id != localID {
			peerSet[id] = struct{}{}
		}
	}

	return &RedisTransport{
		localID:   localID,
		prefix:    conf.Prefix,
		peers:     peerSet,
		partition: newPartition(localID),
		client:    client,
		pubsub:    pubsub,
		timeout:   conf.Timeout,
		consumeCh: make(chan *NetworkMessage, DefaultInboxSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.WithField("transport", "redis"),
	}, nil
}

// Listen implements the Transport interface. It forwards published messages
// to the consumer channel until Close.
func (r *RedisTransport) Listen() {
	ch := r.pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg := new(NetworkMessage)
			if err := msg.Unmarshal([]byte(m.Payload)); err != nil {
				r.logger.WithError(err).Error("Failed to decode message")
				continue
			}
			select {
			case r.consumeCh <- msg:
				r.received()
			case <-r.ctx.Done():
				return
			}
		}
	}
}

// Consumer implements the Transport interface.
func (r *RedisTransport) Consumer() <-chan *NetworkMessage {
	return r.consumeCh
}

// LocalID implements the Transport interface.
func (r *RedisTransport) LocalID() string {
	return r.localID
}

// SetDelay installs a per-message send delay. nil sends immediately.
func (r *RedisTransport) SetDelay(delay DelayFunc) {
	r.peersLock.Lock()
	defer r.peersLock.Unlock()
	r.delay = delay
}

// Send implements the Transport interface. It reports true when at least one
// subscriber received the publication.
func (r *RedisTransport) Send(receiverID string, msg *NetworkMessage) bool {
	if r.ctx.Err() != nil {
		return false
	}
	if !r.partition.allows(receiverID) {
		r.logger.WithField("to", receiverID).Debug("Not sending, partitioned")
		return false
	}

	r.peersLock.RLock()
	_, known := r.peers[receiverID]
	delay := r.delay
	r.peersLock.RUnlock()
	if !known {
		r.logger.WithField("to", receiverID).Error("Unknown receiver")
		return false
	}

	if delay != nil {
		if d := delay(); d > 0 {
			time.AfterFunc(d, func() {
				r.publish(receiverID, msg)
			})
			return true
		}
	}

	return r.publish(receiverID, msg)
}

func (r *RedisTransport) publish(receiverID string, msg *NetworkMessage) bool {
	if r.ctx.Err() != nil {
		return false
	}

	data, err := msg.Marshal()
	if err != nil {
		r.logger.WithError(err).Error("Failed to encode message")
		return false
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	n, err := r.client.Publish(ctx, r.prefix+receiverID, data).Result()
	if err != nil || n == 0 {
		r.dropped()
		r.logger.WithFields(logrus.Fields{
			"to":          receiverID,
			"subscribers": n,
			"error":       err,
		}).Debug("Message not delivered")
		return false
	}

	r.sent()
	return true
}

// Broadcast implements the Transport interface.
func (r *RedisTransport) Broadcast(msg *NetworkMessage) int {
	r.peersLock.RLock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.peersLock.RUnlock()
	sort.Strings(ids)

	count := 0
	for _, id := range ids {
		if r.Send(id, msg) {
			count++
		}
	}
	return count
}

// SetAllowedPeers implements the Transport interface.
func (r *RedisTransport) SetAllowedPeers(peers []string) {
	r.partition.set(peers)
	r.logger.WithField("allowed", peers).Info("Partition set")
}

// Heal implements the Transport interface.
func (r *RedisTransport) Heal() {
	r.partition.heal()
	r.logger.Info("Partition healed")
}

// Partitioned implements the Transport interface.
func (r *RedisTransport) Partitioned() bool {
	return r.partition.active()
}

// Close implements the Transport interface.
func (r *RedisTransport) Close() error {
	r.shutdownLock.Lock()
	defer r.shutdownLock.Unlock()

	if r.shutdown {
		return nil
	}
	r.shutdown = true
	r.cancel()

	if err := r.pubsub.Close(); err != nil {
		r.client.Close()
		return err
	}
	return r.client.Close()
}
