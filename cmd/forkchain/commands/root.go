package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for forkchain
var RootCmd = &cobra.Command{
	Use:              "forkchain",
	Short:            "forkchain ledger simulator",
	TraverseChildren: true,
}
