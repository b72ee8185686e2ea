package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPowMiningInterval is the pause between mining attempts under
	// proof-of-work.
	DefaultPowMiningInterval = 500 * time.Millisecond
	// DefaultHybridMiningInterval is the pause between mining attempts under
	// hybrid consensus. Light proofs are cheap, so it polls faster.
	DefaultHybridMiningInterval = 300 * time.Millisecond
	DefaultPollTimeout          = 100 * time.Millisecond
	DefaultMaxTxPerBlock        = 10
)

// Config holds the runtime parameters of a Node.
type Config struct {
	// MiningInterval overrides the per-consensus default when non-zero.
	MiningInterval time.Duration `mapstructure:"mining-interval"`

	PollTimeout   time.Duration `mapstructure:"poll-timeout"`
	MaxTxPerBlock int           `mapstructure:"max-tx-per-block"`

	// HeartbeatInterval enables periodic tip announcements. Zero disables
	// them.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`

	// ValidateInbound runs the consensus block check on proposals received
	// from peers before they reach the blockchain.
	ValidateInbound bool `mapstructure:"validate-inbound"`

	Logger *logrus.Logger
}

// DefaultConfig returns the default node configuration.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		PollTimeout:     DefaultPollTimeout,
		MaxTxPerBlock:   DefaultMaxTxPerBlock,
		ValidateInbound: true,
		Logger:          logger,
	}
}

// NewTestConfig returns a configuration whose logger writes through t.Log.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := DefaultConfig()
	config.MiningInterval = 20 * time.Millisecond
	config.PollTimeout = 10 * time.Millisecond
	config.Logger = common.NewTestLogger(t, level)
	return config
}

// MiningIntervalFor returns the mining cadence for a consensus kind, honouring
// an explicit MiningInterval.
func (c *Config) MiningIntervalFor(kind consensus.Kind) time.Duration {
	if c.MiningInterval > 0 {
		return c.MiningInterval
	}
	if kind == consensus.HybridKind {
		return DefaultHybridMiningInterval
	}
	return DefaultPowMiningInterval
}
