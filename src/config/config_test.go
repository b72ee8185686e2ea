package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/scenario"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, LogLevel("debug"))
	assert.Equal(t, logrus.InfoLevel, LogLevel("INFO"))
	assert.Equal(t, logrus.WarnLevel, LogLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, LogLevel("error"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("nonsense"))
}

func TestDefaultBuilders(t *testing.T) {
	conf := NewTestConfig(t, logrus.InfoLevel)
	conf.Consensus = "hybrid"
	conf.NodeID = 2

	cons := conf.ConsensusConfig()
	assert.Equal(t, "hybrid", cons.Type)
	assert.Equal(t, consensus.DefaultStakes, cons.Stakes)

	chain := conf.ChainConfig()
	assert.Len(t, chain.InitialBalances, 5)
	assert.Equal(t, 1000.0, chain.InitialBalances["4"])

	sc, err := conf.ScenarioConfig(scenario.SingleNodeGroups())
	require.NoError(t, err)
	assert.Equal(t, scenario.Delays, sc.Kind)
	assert.Equal(t, scenario.SingleNodeGroups(), sc.Groups)

	assert.Equal(t, "2", conf.ID())
	assert.Equal(t, []string{"0", "1", "3", "4"}, conf.PeerIDs())
	assert.Len(t, conf.Peers(), 4)
	assert.NotContains(t, conf.Peers(), "2")
	assert.Equal(t, "127.0.0.1:9002", conf.BindAddr())
}

func TestScenarioConfigUnknown(t *testing.T) {
	conf := NewTestConfig(t, logrus.InfoLevel)
	conf.Scenario = "earthquake"

	_, err := conf.ScenarioConfig(nil)
	assert.Error(t, err)

	_, err = conf.SimulatorConfig()
	assert.Error(t, err)
}

func TestSimulatorConfig(t *testing.T) {
	conf := NewTestConfig(t, logrus.InfoLevel)
	conf.Scenario = "partition"
	conf.FinalityDepth = 7
	conf.Duration = 12 * time.Second

	sim, err := conf.SimulatorConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, sim.FinalityDepth)
	assert.Equal(t, 12*time.Second, sim.Duration)
	assert.Equal(t, scenario.Partition, sim.Scenario.Kind)
	assert.Equal(t, conf.Nodes, sim.Nodes)
}

func TestLoadParameterFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pow_config.json", `{
		"difficulty": 3,
		"mining": {"max_mining_time_ms": 1500},
		"block_time_ms": 800,
		"finality_depth": 6,
		"initial_balances": [500, 600, 700, 800, 900],
		"simulation": {"duration_seconds": 45},
		"network": {}
	}`)
	writeFile(t, dir, "network_config.json", `{
		"partition_duration_ms": 4000,
		"min_delay_ms": 20,
		"max_delay_ms": 200
	}`)

	conf := NewTestConfig(t, logrus.InfoLevel)
	conf.ConfigDir = dir
	require.NoError(t, conf.LoadParameterFiles())

	assert.Equal(t, 3, conf.Difficulty)
	assert.Equal(t, 1500*time.Millisecond, conf.MaxMiningTime)
	assert.Equal(t, 800*time.Millisecond, conf.BlockTime)
	assert.Equal(t, 6, conf.FinalityDepth)
	assert.Equal(t, []float64{500, 600, 700, 800, 900}, conf.InitialBalances)
	assert.Equal(t, 45*time.Second, conf.Duration)
	assert.Equal(t, 4*time.Second, conf.PartitionDuration)
	assert.Equal(t, 20*time.Millisecond, conf.MinDelay)
	assert.Equal(t, 200*time.Millisecond, conf.MaxDelay)
}

func TestLoadParametersHybrid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hybrid_config.json", `{
		"light_difficulty": 1,
		"stakes": [10, 20, 30],
		"leader_timeout_ms": 250
	}`)

	conf := NewTestConfig(t, logrus.InfoLevel)
	conf.Consensus = "hybrid"
	conf.ConfigDir = dir
	require.NoError(t, conf.LoadParameterFiles())

	assert.Equal(t, 1, conf.LightDifficulty)
	assert.Equal(t, []int{10, 20, 30}, conf.Stakes)
	assert.Equal(t, 250*time.Millisecond, conf.LeaderTimeout)
	assert.Equal(t, []int{10, 20, 30}, conf.ConsensusConfig().Stakes)
}

func TestLoadParametersMissing(t *testing.T) {
	conf := NewTestConfig(t, logrus.InfoLevel)
	conf.ConfigDir = t.TempDir()
	before := *conf

	require.NoError(t, conf.LoadParameterFiles())
	assert.Equal(t, before.Difficulty, conf.Difficulty)
	assert.Equal(t, before.Duration, conf.Duration)
}

func TestLoadParametersMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pow_config.json", `{"difficulty": `)

	conf := NewTestConfig(t, logrus.InfoLevel)
	conf.ConfigDir = dir
	assert.Error(t, conf.LoadParameterFiles())
}

func TestLogFileHook(t *testing.T) {
	conf := NewDefaultConfig()
	conf.DataDir = t.TempDir()
	conf.LogToFile = true
	conf.NodeID = 3

	conf.Logger().Info("hello")

	data, err := os.ReadFile(filepath.Join(conf.DataDir, "logs", "node_3.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
