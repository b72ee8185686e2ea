package scenario

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects a scenario.
type Kind int

const (
	// Delays injects random per-message delivery delays.
	Delays Kind = iota
	// Partition splits the network and heals it later.
	Partition
)

func (k Kind) String() string {
	switch k {
	case Delays:
		return "delays"
	case Partition:
		return "partition"
	default:
		return "unknown"
	}
}

// ParseKind parses "delays" or "partition".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "delays":
		return Delays, nil
	case "partition":
		return Partition, nil
	default:
		return 0, fmt.Errorf("unknown scenario %q", s)
	}
}

// Default scenario parameters.
const (
	DefaultMinDelay          = 10 * time.Millisecond
	DefaultMaxDelay          = 100 * time.Millisecond
	DefaultPartitionAfter    = 2 * time.Second
	DefaultPartitionDuration = 5 * time.Second
	DefaultTxInterval        = 3 * time.Second
	DefaultTxProbability     = 0.3
	DefaultMinAmount         = 1.0
	DefaultMaxAmount         = 10.0
	DefaultBurstSize         = 10
)

// Config parameterizes a scenario run.
type Config struct {
	Kind Kind
	Seed int64

	MinDelay time.Duration `mapstructure:"min-delay"`
	MaxDelay time.Duration `mapstructure:"max-delay"`

	PartitionAfter    time.Duration `mapstructure:"partition-after"`
	PartitionDuration time.Duration `mapstructure:"partition-duration"`
	// Groups lists node IDs per side of the partition. Nodes absent from
	// every group are left untouched.
	Groups [][]string

	TxInterval    time.Duration `mapstructure:"tx-interval"`
	TxProbability float64       `mapstructure:"tx-probability"`
	MinAmount     float64       `mapstructure:"min-amount"`
	MaxAmount     float64       `mapstructure:"max-amount"`

	// BurstSize is the number of transactions submitted at the start of the
	// delays scenario.
	BurstSize int `mapstructure:"burst-size"`
}

// NewDefaultConfig returns the defaults for kind. Groups is the 3|2 split of
// the five node network.
func NewDefaultConfig(kind Kind, seed int64) *Config {
	return &Config{
		Kind:              kind,
		Seed:              seed,
		MinDelay:          DefaultMinDelay,
		MaxDelay:          DefaultMaxDelay,
		PartitionAfter:    DefaultPartitionAfter,
		PartitionDuration: DefaultPartitionDuration,
		Groups:            [][]string{{"0", "1", "2"}, {"3", "4"}},
		TxInterval:        DefaultTxInterval,
		TxProbability:     DefaultTxProbability,
		MinAmount:         DefaultMinAmount,
		MaxAmount:         DefaultMaxAmount,
		BurstSize:         DefaultBurstSize,
	}
}

// SingleNodeGroups is the 2|3 split used when each node runs in its own
// process.
func SingleNodeGroups() [][]string {
	return [][]string{{"0", "1"}, {"2", "3", "4"}}
}

// GroupOf returns the group containing id, or nil.
func GroupOf(id string, groups [][]string) []string {
	for _, g := range groups {
		for _, member := range g {
			if member == id {
				return g
			}
		}
	}
	return nil
}
