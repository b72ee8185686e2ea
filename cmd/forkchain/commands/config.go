package commands

import (
	"github.com/mosaicnetworks/forkchain/src/config"
)

//CLIConfig contains configuration for the Run and Simulate commands
type CLIConfig struct {
	Forkchain  config.Config `mapstructure:",squash"`
	ReportFile string        `mapstructure:"report"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Forkchain: *config.NewDefaultConfig(),
	}
}
