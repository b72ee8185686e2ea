package consensus

import (
	"strings"
	"time"

	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/sirupsen/logrus"
)

// Kind identifies one of the closed set of consensus algorithms.
type Kind uint8

const (
	// ProofOfWorkKind is competitive proof of work.
	ProofOfWorkKind Kind = iota
	// HybridKind is stake-weighted leader election with light proof of work.
	HybridKind
)

// String returns the configuration name of the Kind.
func (k Kind) String() string {
	switch k {
	case ProofOfWorkKind:
		return "pow"
	case HybridKind:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseKind parses a configuration name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pow":
		return ProofOfWorkKind, nil
	case "hybrid":
		return HybridKind, nil
	default:
		return 0, NewConfigurationError("unknown consensus type %q", s)
	}
}

// Algorithm is the capability every consensus variant provides. The interface
// is sealed; ProofOfWork and Hybrid are its only implementations.
type Algorithm interface {
	// Kind tells which variant this is.
	Kind() Kind

	// CanPropose reports whether proposerID may produce the block at height.
	CanPropose(proposerID string, height int) bool

	// CreateBlock builds a block satisfying the algorithm's proof requirement.
	// When the proof budget runs out, the block is returned together with a
	// ProofIncompleteError.
	CreateBlock(height int, prevHash string, txs []*ledger.Transaction, proposerID string) (*ledger.Block, error)

	// ValidateBlock re-derives whether the block is acceptable.
	ValidateBlock(block *ledger.Block, proposerID string) bool

	// SelectBestChain picks the winning chain among candidates. The boolean is
	// false when no candidate passes validation.
	SelectBestChain(chains [][]*ledger.Block) ([]*ledger.Block, bool)

	// BlockTimeMs is the nominal target spacing between blocks.
	BlockTimeMs() int

	sealed()
}

// Default consensus parameters.
const (
	DefaultType                    = "pow"
	DefaultDifficulty              = 4
	DefaultMaxMiningTime           = 2000 * time.Millisecond
	DefaultDifficultyWindow        = 10
	DefaultBlockTime               = 1000 * time.Millisecond
	DefaultLightDifficulty         = 2
	DefaultLightAttempts           = 100000
	DefaultLeaderTimeout           = 1000 * time.Millisecond
	DefaultMaxBackupLeaders        = 2
	DefaultBackupTimeoutMultiplier = 0.5
	DefaultSeed                    = 42
	DefaultLeaderCacheWindow       = 1000
)

// DefaultStakes is the stake table of the default five node network.
var DefaultStakes = []int{200, 300, 150, 250, 100}

// Config gathers the parameters of both algorithms. Only the ones relevant to
// Type are used.
type Config struct {
	Type string

	// BlockTime is the nominal block spacing, used by difficulty adjustment.
	BlockTime time.Duration

	// ProofOfWork
	Difficulty    int
	MaxMiningTime time.Duration

	// AdjustDifficulty turns on retargeting every DifficultyWindow blocks.
	AdjustDifficulty bool
	DifficultyWindow int

	// Hybrid
	Stakes                  []int
	LightDifficulty         int
	LightAttempts           int64
	LeaderTimeout           time.Duration
	MaxBackupLeaders        int
	BackupTimeoutMultiplier float64
	Seed                    int64
	StrictBackupTiming      bool
	LeaderCacheWindow       int
}

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() Config {
	stakes := make([]int, len(DefaultStakes))
	copy(stakes, DefaultStakes)
	return Config{
		Type:                    DefaultType,
		BlockTime:               DefaultBlockTime,
		Difficulty:              DefaultDifficulty,
		MaxMiningTime:           DefaultMaxMiningTime,
		DifficultyWindow:        DefaultDifficultyWindow,
		Stakes:                  stakes,
		LightDifficulty:         DefaultLightDifficulty,
		LightAttempts:           DefaultLightAttempts,
		LeaderTimeout:           DefaultLeaderTimeout,
		MaxBackupLeaders:        DefaultMaxBackupLeaders,
		BackupTimeoutMultiplier: DefaultBackupTimeoutMultiplier,
		Seed:                    DefaultSeed,
		LeaderCacheWindow:       DefaultLeaderCacheWindow,
	}
}

// New builds the Algorithm named by conf.Type.
func New(conf Config, logger *logrus.Entry) (Algorithm, error) {
	kind, err := ParseKind(conf.Type)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	logger = logger.WithField("consensus", kind.String())

	switch kind {
	case ProofOfWorkKind:
		return NewProofOfWork(conf, logger)
	case HybridKind:
		return NewHybrid(conf, logger)
	}

	return nil, NewConfigurationError("unsupported consensus kind %d", kind)
}

// linked reports whether chain starts at genesis and every later block links
// to, and sits one height above, its predecessor.
func linked(chain []*ledger.Block) bool {
	if len(chain) == 0 {
		return false
	}
	if !chain[0].IsGenesis() || chain[0].Hash != ledger.GenesisHash() {
		return false
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].PrevHash != chain[i-1].Hash || chain[i].Height != chain[i-1].Height+1 {
			return false
		}
	}
	return true
}

func tipHash(chain []*ledger.Block) string {
	if len(chain) == 0 {
		return ""
	}
	return chain[len(chain)-1].Hash
}
