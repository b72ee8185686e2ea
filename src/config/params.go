package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// NetworkConfigName is the base name of the shared network parameter file.
const NetworkConfigName = "network_config"

// ParameterFileName returns the base name of the parameter file of a
// consensus type.
func ParameterFileName(consensus string) string {
	return fmt.Sprintf("%s_config", consensus)
}

// LoadParameterFiles reads <consensus>_config.json and network_config.json
// from c.ConfigDir and overrides the matching fields. The network file is
// merged into the "network" section of the consensus file. Missing files are
// not an error; malformed ones are.
func (c *Config) LoadParameterFiles() error {
	v := viper.New()
	v.SetConfigType("json")

	found, err := readJSON(v, c.ConfigDir, ParameterFileName(c.Consensus))
	if err != nil {
		return err
	}

	nv := viper.New()
	nv.SetConfigType("json")
	nfound, err := readJSON(nv, c.ConfigDir, NetworkConfigName)
	if err != nil {
		return err
	}
	if nfound {
		if err := v.MergeConfigMap(map[string]interface{}{"network": nv.AllSettings()}); err != nil {
			return err
		}
	}

	if !found && !nfound {
		c.Logger().WithField("dir", c.ConfigDir).Debug("No parameter files")
		return nil
	}

	c.applyParameters(v)
	return nil
}

func readJSON(v *viper.Viper, dir, name string) (bool, error) {
	v.SetConfigName(name)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %v", filepath.Join(dir, name+".json"), err)
	}
	return true, nil
}

func millis(v *viper.Viper, key string) (time.Duration, bool) {
	if !v.IsSet(key) {
		return 0, false
	}
	return time.Duration(v.GetInt64(key)) * time.Millisecond, true
}

func (c *Config) applyParameters(v *viper.Viper) {
	if v.IsSet("difficulty") {
		c.Difficulty = v.GetInt("difficulty")
	}
	if d, ok := millis(v, "mining.max_mining_time_ms"); ok {
		c.MaxMiningTime = d
	}
	if v.IsSet("light_difficulty") {
		c.LightDifficulty = v.GetInt("light_difficulty")
	}
	if v.IsSet("stakes") {
		c.Stakes = cast.ToIntSlice(v.Get("stakes"))
	}
	if d, ok := millis(v, "leader_timeout_ms"); ok {
		c.LeaderTimeout = d
	}
	if v.IsSet("finality_depth") {
		c.FinalityDepth = v.GetInt("finality_depth")
	}
	if d, ok := millis(v, "block_time_ms"); ok {
		c.BlockTime = d
	}
	if v.IsSet("initial_balances") {
		c.InitialBalances = floatSlice(v.Get("initial_balances"))
	}
	if v.IsSet("simulation.duration_seconds") {
		c.Duration = time.Duration(v.GetInt64("simulation.duration_seconds")) * time.Second
	}
	if d, ok := millis(v, "network.partition_duration_ms"); ok {
		c.PartitionDuration = d
	}
	if d, ok := millis(v, "network.partition_after_ms"); ok {
		c.PartitionAfter = d
	}
	if d, ok := millis(v, "network.min_delay_ms"); ok {
		c.MinDelay = d
	}
	if d, ok := millis(v, "network.max_delay_ms"); ok {
		c.MaxDelay = d
	}
}

func floatSlice(raw interface{}) []float64 {
	items := cast.ToSlice(raw)
	res := make([]float64, 0, len(items))
	for _, it := range items {
		f, err := cast.ToFloat64E(it)
		if err != nil {
			continue
		}
		res = append(res, f)
	}
	return res
}
