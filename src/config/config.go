package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/net"
	"github.com/mosaicnetworks/forkchain/src/node"
	"github.com/mosaicnetworks/forkchain/src/scenario"
	"github.com/mosaicnetworks/forkchain/src/simulator"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Transports a node process can use.
const (
	TCPTransport   = "tcp"
	RedisTransport = "redis"
)

// Default configuration values.
const (
	DefaultLogLevel     = "info"
	DefaultConfigDir    = "config"
	DefaultScenario     = "delays"
	DefaultTransport    = TCPTransport
	DefaultHost         = "127.0.0.1"
	DefaultBasePort     = 9000
	DefaultServiceAddr  = "127.0.0.1:8000"
	DefaultTCPTimeout   = 1000 * time.Millisecond
	DefaultMaxPool      = 2
	DefaultRedisAddr    = "127.0.0.1:6379"
)

// Config contains all the configuration properties of a forkchain node or
// simulation.
type Config struct {
	// DataDir is the top-level directory for logs.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogToFile mirrors the log to <datadir>/logs/node_<id>.log.
	LogToFile bool `mapstructure:"log-file"`

	// ConfigDir holds the optional JSON parameter files.
	ConfigDir string `mapstructure:"config-dir"`

	// NodeID is the index of this node. It is also its stake table index.
	NodeID int `mapstructure:"node-id"`

	// Nodes is the size of the network.
	Nodes int `mapstructure:"nodes"`

	Consensus string `mapstructure:"consensus"`
	Scenario  string `mapstructure:"scenario"`
	Seed      int64  `mapstructure:"seed"`

	// Duration bounds the run. Zero runs until interrupted.
	Duration time.Duration `mapstructure:"duration"`

	// Transport is "tcp" or "redis".
	Transport  string        `mapstructure:"transport"`
	Host       string        `mapstructure:"host"`
	BasePort   int           `mapstructure:"base-port"`
	TCPTimeout time.Duration `mapstructure:"timeout"`
	MaxPool    int           `mapstructure:"max-pool"`

	RedisAddr     string `mapstructure:"redis-addr"`
	RedisPassword string `mapstructure:"redis-password"`
	RedisDB       int    `mapstructure:"redis-db"`

	// NoService disables the HTTP API service.
	NoService   bool   `mapstructure:"no-service"`
	ServiceAddr string `mapstructure:"service-listen"`

	// Ledger
	FinalityDepth   int       `mapstructure:"finality-depth"`
	InitialBalances []float64 `mapstructure:"initial-balances"`

	// Consensus parameters
	BlockTime          time.Duration `mapstructure:"block-time"`
	Difficulty         int           `mapstructure:"difficulty"`
	MaxMiningTime      time.Duration `mapstructure:"max-mining-time"`
	Stakes             []int         `mapstructure:"stakes"`
	LightDifficulty    int           `mapstructure:"light-difficulty"`
	LeaderTimeout      time.Duration `mapstructure:"leader-timeout"`
	StrictBackupTiming bool          `mapstructure:"strict-backup-timing"`
	AdjustDifficulty   bool          `mapstructure:"adjust-difficulty"`

	// Node loop parameters
	MiningInterval    time.Duration `mapstructure:"mining-interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`
	MaxTxPerBlock     int           `mapstructure:"max-tx-per-block"`

	// Scenario parameters
	PartitionAfter    time.Duration `mapstructure:"partition-after"`
	PartitionDuration time.Duration `mapstructure:"partition-duration"`
	MinDelay          time.Duration `mapstructure:"min-delay"`
	MaxDelay          time.Duration `mapstructure:"max-delay"`
	TxInterval        time.Duration `mapstructure:"tx-interval"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	cons := consensus.NewDefaultConfig()
	sc := scenario.NewDefaultConfig(scenario.Delays, cons.Seed)

	balances := make([]float64, simulator.DefaultNodes)
	for i := range balances {
		balances[i] = simulator.DefaultInitialBalance
	}

	config := &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		ConfigDir:         DefaultConfigDir,
		Nodes:             simulator.DefaultNodes,
		Consensus:         cons.Type,
		Scenario:          DefaultScenario,
		Seed:              cons.Seed,
		Duration:          simulator.DefaultDuration,
		Transport:         DefaultTransport,
		Host:              DefaultHost,
		BasePort:          DefaultBasePort,
		TCPTimeout:        DefaultTCPTimeout,
		MaxPool:           DefaultMaxPool,
		RedisAddr:         DefaultRedisAddr,
		ServiceAddr:       DefaultServiceAddr,
		FinalityDepth:     blockchain.DefaultFinalityDepth,
		InitialBalances:   balances,
		BlockTime:         cons.BlockTime,
		Difficulty:        cons.Difficulty,
		MaxMiningTime:     cons.MaxMiningTime,
		Stakes:            cons.Stakes,
		LightDifficulty:   cons.LightDifficulty,
		LeaderTimeout:     cons.LeaderTimeout,
		MaxTxPerBlock:     node.DefaultMaxTxPerBlock,
		PartitionAfter:    sc.PartitionAfter,
		PartitionDuration: sc.PartitionDuration,
		MinDelay:          sc.MinDelay,
		MaxDelay:          sc.MaxDelay,
		TxInterval:        sc.TxInterval,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// ID is the node identifier derived from NodeID.
func (c *Config) ID() string {
	return strconv.Itoa(c.NodeID)
}

// ConsensusConfig assembles the consensus parameters.
func (c *Config) ConsensusConfig() consensus.Config {
	conf := consensus.NewDefaultConfig()
	conf.Type = c.Consensus
	conf.Seed = c.Seed
	conf.BlockTime = c.BlockTime
	conf.Difficulty = c.Difficulty
	conf.MaxMiningTime = c.MaxMiningTime
	conf.LightDifficulty = c.LightDifficulty
	conf.LeaderTimeout = c.LeaderTimeout
	conf.StrictBackupTiming = c.StrictBackupTiming
	conf.AdjustDifficulty = c.AdjustDifficulty
	if len(c.Stakes) > 0 {
		conf.Stakes = append([]int(nil), c.Stakes...)
	}
	return conf
}

// InitialBalanceMap maps node IDs to their genesis allocation.
func (c *Config) InitialBalanceMap() map[string]float64 {
	res := make(map[string]float64, c.Nodes)
	for i := 0; i < c.Nodes; i++ {
		amount := simulator.DefaultInitialBalance
		if i < len(c.InitialBalances) {
			amount = c.InitialBalances[i]
		}
		res[strconv.Itoa(i)] = amount
	}
	return res
}

// ChainConfig assembles the ledger parameters.
func (c *Config) ChainConfig() *blockchain.Config {
	conf := blockchain.NewDefaultConfig()
	conf.FinalityDepth = c.FinalityDepth
	conf.InitialBalances = c.InitialBalanceMap()
	conf.Logger = c.Logger()
	return conf
}

// NodeConfig assembles the node loop parameters.
func (c *Config) NodeConfig() *node.Config {
	conf := node.DefaultConfig()
	conf.MiningInterval = c.MiningInterval
	conf.HeartbeatInterval = c.HeartbeatInterval
	if c.MaxTxPerBlock > 0 {
		conf.MaxTxPerBlock = c.MaxTxPerBlock
	}
	conf.Logger = c.Logger().Logger
	return conf
}

// ScenarioConfig assembles the scenario parameters. groups is the partition
// layout to use.
func (c *Config) ScenarioConfig(groups [][]string) (*scenario.Config, error) {
	kind, err := scenario.ParseKind(c.Scenario)
	if err != nil {
		return nil, err
	}
	conf := scenario.NewDefaultConfig(kind, c.Seed)
	conf.PartitionAfter = c.PartitionAfter
	conf.PartitionDuration = c.PartitionDuration
	conf.MinDelay = c.MinDelay
	conf.MaxDelay = c.MaxDelay
	conf.TxInterval = c.TxInterval
	if groups != nil {
		conf.Groups = groups
	}
	return conf, nil
}

// SimulatorConfig assembles an in-process simulation.
func (c *Config) SimulatorConfig() (*simulator.Config, error) {
	sc, err := c.ScenarioConfig(nil)
	if err != nil {
		return nil, err
	}
	return &simulator.Config{
		Nodes:           c.Nodes,
		InitialBalances: c.InitialBalances,
		FinalityDepth:   c.FinalityDepth,
		Duration:        c.Duration,
		CheckInterval:   simulator.DefaultCheckInterval,
		SettleTime:      simulator.DefaultSettleTime,
		Consensus:       c.ConsensusConfig(),
		Node:            c.NodeConfig(),
		Scenario:        sc,
		Logger:          c.Logger().Logger,
	}, nil
}

// Peers returns the TCP addresses of every other node.
func (c *Config) Peers() map[string]string {
	addrs := net.NodeAddresses(c.Host, c.BasePort, c.Nodes)
	delete(addrs, c.ID())
	return addrs
}

// BindAddr is the TCP address of this node.
func (c *Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.BasePort+c.NodeID)
}

// PeerIDs lists the IDs of every other node.
func (c *Config) PeerIDs() []string {
	ids := make([]string, 0, c.Nodes)
	for i := 0; i < c.Nodes; i++ {
		if i != c.NodeID {
			ids = append(ids, strconv.Itoa(i))
		}
	}
	return ids
}

// RedisConfig assembles the redis transport parameters.
func (c *Config) RedisConfig() net.RedisConfig {
	return net.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Prefix:   net.DefaultRedisPrefix,
		Timeout:  c.TCPTimeout,
	}
}

// LogFile returns the path of the node log file.
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "logs", fmt.Sprintf("node_%d.log", c.NodeID))
}

// Logger returns a formatted logrus Entry, with prefix set to "forkchain".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogToFile {
			c.addFileHook()
		}
	}
	return c.logger.WithField("prefix", "forkchain")
}

func (c *Config) addFileHook() {
	path := c.LogFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		c.logger.WithError(err).Warn("Cannot create log directory, logging to stderr only")
		return
	}

	pathMap := lfshook.PathMap{}
	for _, level := range logrus.AllLevels {
		pathMap[level] = path
	}

	c.logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{DisableColors: true},
	))
}

// DefaultDataDir return the default directory name for top-level forkchain
// data based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Forkchain")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Forkchain")
		} else {
			return filepath.Join(home, ".forkchain")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug", "DEBUG":
		return logrus.DebugLevel
	case "info", "INFO":
		return logrus.InfoLevel
	case "warn", "warning", "WARNING":
		return logrus.WarnLevel
	case "error", "ERROR":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
