package commands

import (
	"strconv"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//AddConfigFlags adds the flags shared by the Run and Simulate commands
func AddConfigFlags(cmd *cobra.Command) {
	c := &_config.Forkchain

	cmd.Flags().String("datadir", c.DataDir, "Top-level directory for configuration and logs")
	cmd.Flags().String("log", c.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Bool("log-file", c.LogToFile, "Mirror the log to <datadir>/logs/node_<id>.log")
	cmd.Flags().String("config-dir", c.ConfigDir, "Directory of <consensus>_config.json and network_config.json")

	// Simulation
	cmd.Flags().String("consensus", c.Consensus, "Consensus algorithm: pow or hybrid")
	cmd.Flags().String("scenario", c.Scenario, "Network scenario: delays or partition")
	cmd.Flags().Int64("seed", c.Seed, "Random seed")
	cmd.Flags().Duration("duration", c.Duration, "Length of the run, 0 runs until interrupted")
	cmd.Flags().Int("nodes", c.Nodes, "Number of nodes in the network")
	cmd.Flags().StringSlice("initial-balances", floatStrings(c.InitialBalances), "Genesis balance of each node")

	// Ledger and consensus
	cmd.Flags().Int("finality-depth", c.FinalityDepth, "Confirmations before a block is final")
	cmd.Flags().Duration("block-time", c.BlockTime, "Target time between blocks")
	cmd.Flags().Int("difficulty", c.Difficulty, "Leading zero hex digits of a proof-of-work hash")
	cmd.Flags().Duration("max-mining-time", c.MaxMiningTime, "Proof-of-work search budget")
	cmd.Flags().StringSlice("stakes", intStrings(c.Stakes), "Hybrid stake of each node")
	cmd.Flags().Int("light-difficulty", c.LightDifficulty, "Leading zero hex digits of a hybrid light proof")
	cmd.Flags().Duration("leader-timeout", c.LeaderTimeout, "Hybrid leader timeout before backups may propose")
	cmd.Flags().Bool("strict-backup-timing", c.StrictBackupTiming, "Reject backup blocks proposed before their timeout")
	cmd.Flags().Bool("adjust-difficulty", c.AdjustDifficulty, "Retarget proof-of-work difficulty to the block time")

	// Node
	cmd.Flags().Duration("mining-interval", c.MiningInterval, "Pause between mining attempts, 0 uses the consensus default")
	cmd.Flags().Duration("heartbeat", c.HeartbeatInterval, "Tip announcement period, 0 disables heartbeats")
	cmd.Flags().Int("max-tx-per-block", c.MaxTxPerBlock, "Transactions per block")

	// Scenario
	cmd.Flags().Duration("partition-after", c.PartitionAfter, "Delay before the partition")
	cmd.Flags().Duration("partition-duration", c.PartitionDuration, "How long the partition lasts")
	cmd.Flags().Duration("min-delay", c.MinDelay, "Minimum injected message delay")
	cmd.Flags().Duration("max-delay", c.MaxDelay, "Maximum injected message delay")
	cmd.Flags().Duration("tx-interval", c.TxInterval, "Period of the random transaction generator")
}

// loadConfig reads flags, the optional [datadir]/forkchain config file and
// the parameter files. Explicit flags take precedence over the
// parameter files.
func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	if err := _config.Forkchain.LoadParameterFiles(); err != nil {
		return err
	}

	if err := applyChangedFlags(cmd); err != nil {
		return err
	}

	c := &_config.Forkchain
	c.Logger().WithFields(logrus.Fields{
		"forkchain.DataDir":       c.DataDir,
		"forkchain.ConfigDir":     c.ConfigDir,
		"forkchain.LogLevel":      c.LogLevel,
		"forkchain.Consensus":     c.Consensus,
		"forkchain.Scenario":      c.Scenario,
		"forkchain.Seed":          c.Seed,
		"forkchain.Duration":      c.Duration,
		"forkchain.Nodes":         c.Nodes,
		"forkchain.FinalityDepth": c.FinalityDepth,
		"forkchain.Difficulty":    c.Difficulty,
		"forkchain.Stakes":        c.Stakes,
		"forkchain.Transport":     c.Transport,
		"forkchain.NodeID":        c.NodeID,
	}).Debug("CONFIG")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/forkchain.toml (.json, .yaml also work)
	viper.SetConfigName("forkchain")                // name of config file (without extension)
	viper.AddConfigPath(_config.Forkchain.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Forkchain.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Forkchain.Logger().Debugf("No config file found in: %s", _config.Forkchain.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// applyChangedFlags decodes the flags set on the command line over the
// current configuration.
func applyChangedFlags(cmd *cobra.Command) error {
	changed := map[string]interface{}{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = viper.Get(f.Name)
	})
	if len(changed) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           _config,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(changed)
}

func intStrings(values []int) []string {
	res := make([]string, len(values))
	for i, v := range values {
		res[i] = strconv.Itoa(v)
	}
	return res
}

func floatStrings(values []float64) []string {
	res := make([]string, len(values))
	for i, v := range values {
		res[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return res
}
