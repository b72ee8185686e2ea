package blockchain

import (
	"testing"

	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultFinalityDepth is the number of confirmations before a block is
	// final.
	DefaultFinalityDepth = 4
	// DefaultMaxBufferedBlocks caps blocks waiting for an unknown parent.
	DefaultMaxBufferedBlocks = 4096
	// DefaultMaxForkBranches caps the maximal chains enumerated on a fork.
	DefaultMaxForkBranches = 1024
	// DefaultMaxChainDepth caps the length of an enumerated chain.
	DefaultMaxChainDepth = 1000000
)

// Config holds the ledger parameters. Every node of a network must use the
// same InitialBalances.
type Config struct {
	FinalityDepth     int
	InitialBalances   map[string]float64
	MaxBufferedBlocks int
	MaxForkBranches   int
	MaxChainDepth     int
	Logger            *logrus.Entry
}

// NewDefaultConfig returns a Config with default values and no genesis
// allocations.
func NewDefaultConfig() *Config {
	return &Config{
		FinalityDepth:     DefaultFinalityDepth,
		InitialBalances:   map[string]float64{},
		MaxBufferedBlocks: DefaultMaxBufferedBlocks,
		MaxForkBranches:   DefaultMaxForkBranches,
		MaxChainDepth:     DefaultMaxChainDepth,
		Logger:            logrus.NewEntry(logrus.New()),
	}
}

// NewTestConfig returns a default Config that logs through t.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	conf := NewDefaultConfig()
	conf.Logger = common.NewTestEntry(t, level)
	return conf
}
