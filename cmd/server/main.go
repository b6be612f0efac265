package main

import (
	"dtn_chat/internal/config"
	"dtn_chat/internal/service/bridge"
	"dtn_chat/internal/service/server"
	"dtn_chat/internal/utils/log"
	"dtn_chat/internal/wire"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	logLevel   string
)

func main() {
	err := rootCmd().Execute()
	log.Sync()
	if err != nil {
		os.Exit(bridge.ExitCode(err))
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dtn-chat-server [flags] <local_name> <session_address> <revocation_status> <secret> <peer_name> <key> <peer_issuance_date> <peer_validity_hash> <fake_date> <pipe_name> <port>",
		Short: "Bridge a websocket chat client to a DTN forwarding agent",
		Args: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(config.PositionalArgs)(cmd, args)
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, cleanup, err := wire.Build(ctx, cfg)
			defer cleanup()
			if err != nil {
				return err
			}

			log.Info("bridge configured",
				zap.String("agent_id", b.Config().AgentID()),
				zap.String("peer", b.Config().Peer.Destination()),
				zap.String("session", cfg.SessionAddress))

			err = server.NewHttpServer(b, cfg.ListenAddr()).Run(ctx)
			if err != nil {
				log.Error("server stopped", zap.Error(err), zap.Int("exit_code", bridge.ExitCode(err)))
			}
			return err
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file used instead of positional arguments")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(statusCmd(), peerCmd())
	return root
}

func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Resolve(configPath, args)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := log.Init(cfg.Logging.Level, cfg.Logging.Development, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
