package main

import (
	"context"
	"dtn_chat/internal/config"
	"dtn_chat/internal/service/app"
	"dtn_chat/internal/service/bot"
	"dtn_chat/internal/service/bridge"
	"dtn_chat/internal/utils/log"
	"dtn_chat/internal/wire"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	botMode    bool
	botReply   string
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
		Use:   "dtn-chat [flags] <local_name> <session_address> <revocation_status> <secret> <peer_name> <key> <peer_issuance_date> <peer_validity_hash> <fake_date> <pipe_name> <port>",
		Short: "Chat with a peer over a DTN forwarding agent",
		Args: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(config.PositionalArgs)(cmd, args)
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(configPath, args)
			if err != nil {
				return err
			}
			// The terminal UI owns stderr, so only log when a file is set.
			if botMode || cfg.Logging.File != "" {
				if err := log.Init(cfg.Logging.Level, cfg.Logging.Development, cfg.Logging.File); err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, cleanup, err := wire.Build(ctx, cfg)
			defer cleanup()
			if err != nil {
				return err
			}

			if botMode {
				reply := cfg.BotReply
				if cmd.Flags().Changed("reply") {
					reply = botReply
				}
				return b.Run(ctx, bot.NewResponder(reply))
			}
			return runTerminal(ctx, stop, b, cfg)
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file used instead of positional arguments")
	root.Flags().BoolVar(&botMode, "bot", false, "answer every message automatically instead of opening the terminal UI")
	root.Flags().StringVar(&botReply, "reply", "ack", "reply sent by --bot")

	root.AddCommand(attachCmd())
	return root
}

func runTerminal(ctx context.Context, stop context.CancelFunc, b *bridge.Bridge, cfg *config.Config) error {
	ui := app.NewApp(cfg.LocalName, cfg.PeerName)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(ctx, ui)
	}()

	uiErr := ui.Run()
	stop()
	err := <-errCh
	if err != nil {
		fmt.Fprintf(os.Stderr, "bridge stopped: %v\n", err)
	}
	return errors.Join(err, uiErr)
}

func attachCmd() *cobra.Command {
	var localName, peerName string

	cmd := &cobra.Command{
		Use:          "attach <ws_url>",
		Short:        "Open the terminal UI against a bridge served by dtn-chat-server",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := app.NewApp(localName, peerName)
			if err := ui.Attach(cmd.Context(), args[0]); err != nil {
				log.Error("connect failed", zap.String("url", args[0]), zap.Error(err))
				return err
			}
			return ui.Run()
		},
	}
	cmd.Flags().StringVar(&localName, "local", "me", "name shown for your own lines")
	cmd.Flags().StringVar(&peerName, "peer", "peer", "name shown in the window title")
	return cmd
}
