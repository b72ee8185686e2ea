package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mosaicnetworks/forkchain/src/simulator"
	"github.com/spf13/cobra"
	"github.com/ugorji/go/codec"
)

//NewSimulateCmd returns the command that runs a whole network in-process
func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Simulate a network of nodes in a single process",
		PreRunE: loadConfig,
		RunE:    runSimulation,
	}
	AddSimulateFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runSimulation(cmd *cobra.Command, args []string) error {
	c := &_config.Forkchain
	if c.Duration <= 0 {
		c.Duration = simulator.DefaultDuration
	}

	simConf, err := c.SimulatorConfig()
	if err != nil {
		return err
	}

	sim, err := simulator.New(simConf)
	if err != nil {
		c.Logger().Error("Cannot initialize simulator: ", err)
		return err
	}

	report := sim.Run()

	printReport(os.Stdout, report)

	if _config.ReportFile != "" {
		if err := writeReport(_config.ReportFile, report); err != nil {
			return err
		}
	}

	if !report.InvariantsHeld() {
		return fmt.Errorf("%d invariant violations", len(report.Violations))
	}
	return nil
}

func printReport(w io.Writer, r *simulator.Report) {
	title := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	warn := color.New(color.FgYellow)

	title.Fprintf(w, "Simulation %s / %s (seed %d) finished in %v\n",
		r.Consensus, r.Scenario, r.Seed, r.Elapsed.Round(time.Millisecond))

	for _, n := range r.Nodes {
		fmt.Fprintf(w, "  node %s: height %d, final %d, balance %.2f, mined %d, received %d, rejected %d, reorgs %d",
			n.ID,
			n.Info.LatestHeight,
			n.Info.FinalityHeight,
			n.Info.Balance,
			n.BlocksMined,
			n.BlocksReceived,
			n.BlocksRejected,
			n.Info.Reorgs)
		if n.Info.RefusedReorgs > 0 {
			warn.Fprintf(w, ", refused reorgs %d", n.Info.RefusedReorgs)
		}
		fmt.Fprintln(w)
	}

	if r.Converged {
		good.Fprintln(w, "Converged on a single tip")
	} else {
		warn.Fprintln(w, "Nodes ended on different tips")
	}
	fmt.Fprintf(w, "Common final height: %d\n", r.CommonFinalHeight)

	if r.InvariantsHeld() {
		good.Fprintln(w, "All invariants held")
		return
	}
	bad.Fprintf(w, "%d invariant violations:\n", len(r.Violations))
	for _, v := range r.Violations {
		bad.Fprintf(w, "  %s\n", v)
	}
}

func writeReport(path string, r *simulator.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	jh := new(codec.JsonHandle)
	jh.Indent = 2
	return codec.NewEncoder(f, jh).Encode(r)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddSimulateFlags adds flags to the Simulate command
func AddSimulateFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)

	cmd.Flags().String("report", _config.ReportFile, "Write the JSON report to this file")
}
