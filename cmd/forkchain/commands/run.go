package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/config"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/net"
	"github.com/mosaicnetworks/forkchain/src/node"
	"github.com/mosaicnetworks/forkchain/src/scenario"
	"github.com/mosaicnetworks/forkchain/src/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//NewRunCmd returns the command that starts a single forkchain node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNode(cmd *cobra.Command, args []string) error {
	c := &_config.Forkchain
	logger := c.Logger()

	if c.NodeID < 0 || c.NodeID >= c.Nodes {
		return fmt.Errorf("node-id %d out of range for %d nodes", c.NodeID, c.Nodes)
	}

	consConf := c.ConsensusConfig()
	kind, err := consensus.ParseKind(consConf.Type)
	if err != nil {
		return err
	}
	if kind == consensus.HybridKind && c.NodeID >= len(consConf.Stakes) {
		return consensus.NewConfigurationError("no stake for node %d", c.NodeID)
	}

	algo, err := consensus.New(consConf, logger)
	if err != nil {
		logger.Error("Cannot initialize consensus: ", err)
		return err
	}

	chain := blockchain.NewBlockchain(c.ChainConfig(), algo)

	trans, err := newTransport(c, logger)
	if err != nil {
		logger.Error("Cannot initialize transport: ", err)
		return err
	}

	n := node.NewNode(c.ID(), c.NodeConfig(), algo, chain, trans)

	if !c.NoService {
		svc := service.NewService(c.ServiceAddr, n, logger)
		go svc.Serve()
		defer svc.Close()
	}

	sc, err := c.ScenarioConfig(scenario.SingleNodeGroups())
	if err != nil {
		return err
	}

	n.RunAsync()
	defer n.Shutdown()

	switch sc.Kind {
	case scenario.Delays:
		if d, ok := trans.(scenario.Delayer); ok {
			scenario.ApplyDelay(d, sc.MinDelay, sc.MaxDelay, sc.Seed+int64(c.NodeID))
		}
	case scenario.Partition:
		schedule := scenario.NewPartitionSchedule(
			[]scenario.Partitioner{n},
			sc.Groups,
			sc.PartitionAfter,
			sc.PartitionDuration,
			logger)
		schedule.Start()
		defer schedule.Stop()
	}

	ids := append(c.PeerIDs(), c.ID())
	generator := scenario.NewTxGenerator(n, ids, sc, sc.Seed+int64(c.NodeID), logger)
	generator.Start()
	defer generator.Stop()

	waitForEnd(c.Duration, logger)

	return nil
}

func newTransport(c *config.Config, logger *logrus.Entry) (net.Transport, error) {
	switch c.Transport {
	case config.TCPTransport:
		return net.NewTCPTransport(
			c.BindAddr(),
			"",
			c.ID(),
			c.Peers(),
			c.MaxPool,
			c.TCPTimeout,
			logger,
		)
	case config.RedisTransport:
		return net.NewRedisTransport(c.RedisConfig(), c.ID(), c.PeerIDs(), logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
}

// waitForEnd blocks until duration elapses or the process is interrupted. A
// zero duration waits for the interrupt only.
func waitForEnd(duration time.Duration, logger *logrus.Entry) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	var timeout <-chan time.Time
	if duration > 0 {
		timeout = time.After(duration)
	}

	select {
	case <-signalCh:
		logger.Info("Received an interrupt, stopping node")
	case <-timeout:
		logger.WithField("duration", duration).Info("Run finished")
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)

	c := &_config.Forkchain

	cmd.Flags().IntP("node-id", "i", c.NodeID, "Index of this node")

	// Network
	cmd.Flags().String("transport", c.Transport, "Transport: tcp or redis")
	cmd.Flags().String("host", c.Host, "Host of every node, node i listens on base-port+i")
	cmd.Flags().Int("base-port", c.BasePort, "Port of node 0")
	cmd.Flags().DurationP("timeout", "t", c.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", c.MaxPool, "Connection pool size max")

	// Redis
	cmd.Flags().String("redis-addr", c.RedisAddr, "Redis server address")
	cmd.Flags().String("redis-password", c.RedisPassword, "Redis password")
	cmd.Flags().Int("redis-db", c.RedisDB, "Redis database")

	// Service
	cmd.Flags().Bool("no-service", c.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", c.ServiceAddr, "Listen IP:Port for HTTP service")
}
