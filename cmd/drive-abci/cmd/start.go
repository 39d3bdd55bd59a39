package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blockberries/drive/config"
	"github.com/blockberries/drive/logging"
	"github.com/blockberries/drive/node"
)

const shutdownTimeout = 10 * time.Second

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the node and serve the consensus engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	config.InitializeFlags(cmd.Flags(), config.DefaultConfig())
	return cmd
}

// run starts a node and blocks until ctx is done.
func run(ctx context.Context, cfg config.Config) error {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	n, err := node.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		_ = n.Stop(context.Background())
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return n.Stop(shutdownCtx)
}
