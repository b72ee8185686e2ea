package scenario

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Partitioner is the part of a node the partition timers act on.
type Partitioner interface {
	ID() string
	SetPartition(peers []string)
	HealPartition()
}

// PartitionSchedule applies a partition after a delay and heals it after a
// duration. It runs on its own goroutine and never touches ledger state.
type PartitionSchedule struct {
	targets  []Partitioner
	groups   [][]string
	after    time.Duration
	duration time.Duration
	logger   *logrus.Entry

	startOnce sync.Once

	mu      sync.Mutex
	split   bool
	healed  bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPartitionSchedule prepares a schedule. Start must be called to arm it.
func NewPartitionSchedule(targets []Partitioner, groups [][]string, after, duration time.Duration, logger *logrus.Entry) *PartitionSchedule {
	return &PartitionSchedule{
		targets:  targets,
		groups:   groups,
		after:    after,
		duration: duration,
		logger:   logger.WithField("scenario", Partition.String()),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start arms the timers.
func (p *PartitionSchedule) Start() {
	p.startOnce.Do(func() { go p.run() })
}

func (p *PartitionSchedule) run() {
	defer close(p.doneCh)

	select {
	case <-time.After(p.after):
	case <-p.stopCh:
		return
	}
	p.Split()

	select {
	case <-time.After(p.duration):
	case <-p.stopCh:
		return
	}
	p.Heal()
}

// Split applies the partition now.
func (p *PartitionSchedule) Split() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.split {
		return
	}
	p.split = true

	for _, t := range p.targets {
		if g := GroupOf(t.ID(), p.groups); g != nil {
			t.SetPartition(g)
		}
	}
	p.logger.WithField("groups", p.groups).Info("Network partition created")
}

// Heal lifts the partition on every target that was split.
func (p *PartitionSchedule) Heal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.split || p.healed {
		return
	}
	p.healed = true

	for _, t := range p.targets {
		if GroupOf(t.ID(), p.groups) != nil {
			t.HealPartition()
		}
	}
	p.logger.Info("Network partition healed")
}

// State reports whether the split and the heal have happened.
func (p *PartitionSchedule) State() (split, healed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.split, p.healed
}

// Stop cancels pending timers and waits for the schedule goroutine. It does
// not heal an active partition.
func (p *PartitionSchedule) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()
	p.startOnce.Do(func() { close(p.doneCh) })
	<-p.doneCh
}
