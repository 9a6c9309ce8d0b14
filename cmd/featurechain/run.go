package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loomnetwork/featurechain/db"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/rpc"
)

type runFlags struct {
	Preactivate []string
	Activate    []string
	Propose     []string
	NumBlocks   int
	Pprof       bool
}

func newRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the block producer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseConfig()
			if err != nil {
				return err
			}
			if err := log.Setup(cfg.LogLevel, cfg.LogDestination); err != nil {
				return err
			}
			logger := log.Root.With("module", "featurechain")

			n, err := openNode(cfg, logger)
			if err != nil {
				return err
			}
			defer n.close()
			if err := n.schedule(flags); err != nil {
				return err
			}

			prometheus.MustRegister(db.NewStatsCollector(cfg.DBName, n.db))
			qs := rpc.NewInstrumentingMiddleware(&rpc.QueryServer{StateProvider: n.chain})
			listener, err := rpc.RPCServer(qs, logger.With("interface", "rpc"), cfg.QueryServerHost, flags.Pprof)
			if err != nil {
				return err
			}
			defer listener.Close()

			stop := make(chan struct{})
			termChan := make(chan os.Signal, 1)
			signal.Notify(termChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			go func() {
				<-termChan
				close(stop)
			}()
			n.run(cfg.BlockIntervalDuration(), flags.NumBlocks, stop)
			return nil
		},
	}
	cmdFlags := cmd.Flags()
	cmdFlags.StringSliceVar(&flags.Preactivate, "preactivate", nil, "Features to preactivate in the first block")
	cmdFlags.StringSliceVar(&flags.Propose, "propose", nil, "Builtin producer-only features to activate in the first block")
	cmdFlags.StringSliceVar(
		&flags.Activate, "activate", nil,
		"Features to activate in the first block without preactivation (requires Features.AllowBypass)",
	)
	cmdFlags.IntVarP(&flags.NumBlocks, "blocks", "n", 0, "Stop after producing this many blocks (0 runs forever)")
	cmdFlags.BoolVar(&flags.Pprof, "pprof", false, "Serve pprof on the query server")
	return cmd
}

func (n *node) schedule(flags runFlags) error {
	proposed, err := n.lookup(flags.Propose)
	if err != nil {
		return err
	}
	n.chain.ScheduleActivation(proposed...)

	bypassed, err := n.lookup(flags.Activate)
	if err != nil {
		return err
	}
	if len(bypassed) > 0 {
		if err := n.chain.ScheduleWithoutPreactivation(bypassed...); err != nil {
			return err
		}
	}

	n.preactivations, err = n.lookup(flags.Preactivate)
	return err
}

// run produces a block every interval until stop is closed, or until numBlocks blocks have been
// produced if numBlocks is positive.
func (n *node) run(interval time.Duration, numBlocks int, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	produced := 0
	for {
		select {
		case <-stop:
			n.logger.Info("Stopping block producer", "height", n.chain.Head().Header.Height)
			return
		case now := <-ticker.C:
			b, err := n.produceBlock(now)
			if err != nil {
				n.logger.Error("Failed to produce block", "err", err)
				continue
			}
			n.logger.Info("Committed block", "height", b.Header.Height, "hash", b.HashString(),
				"features", len(b.Header.NewFeatures))
			produced++
			if numBlocks > 0 && produced >= numBlocks {
				return
			}
		}
	}
}
