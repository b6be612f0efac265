package main

import (
	"dtn_chat/internal/config"
	"dtn_chat/internal/model"
	"dtn_chat/internal/repository/peer"
	"dtn_chat/internal/service/status"
	"dtn_chat/internal/wire"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	defaults := config.Default()
	redisCfg := defaults.Redis

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Manage the revocation status seed shared with running bridges",
	}
	cmd.PersistentFlags().StringVar(&redisCfg.Addr, "redis-addr", "localhost:6379", "redis address")
	cmd.PersistentFlags().StringVar(&redisCfg.Password, "redis-password", "", "redis password")
	cmd.PersistentFlags().IntVar(&redisCfg.DB, "redis-db", 0, "redis database")
	cmd.PersistentFlags().StringVar(&redisCfg.StatusKey, "key", defaults.Redis.StatusKey, "redis key holding the seed")

	publish := &cobra.Command{
		Use:          "publish <status_hex>",
		Short:        "Rotate the seed attached to outbound messages",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := wire.NewRedis(cmd.Context(), redisCfg)
			if err != nil {
				return err
			}
			defer rs.Close()

			if err := status.NewRedisProvider(rs, redisCfg.StatusKey, "").Publish(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("published revocation status under %s\n", redisCfg.StatusKey)
			return nil
		},
	}

	show := &cobra.Command{
		Use:          "show",
		Short:        "Print the seed running bridges currently use",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := wire.NewRedis(cmd.Context(), redisCfg)
			if err != nil {
				return err
			}
			defer rs.Close()

			current, err := status.NewRedisProvider(rs, redisCfg.StatusKey, "").Current(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(current)
			return nil
		},
	}

	cmd.AddCommand(publish, show)
	return cmd
}

func peerCmd() *cobra.Command {
	defaults := config.Default()
	mongoCfg := defaults.Mongo

	var (
		localName string
		issued    string
		hashHex   string
	)

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage stored peer identities",
	}
	cmd.PersistentFlags().StringVar(&mongoCfg.URI, "mongo-uri", "mongodb://localhost:27017", "mongo connection string")
	cmd.PersistentFlags().StringVar(&mongoCfg.Database, "database", defaults.Mongo.Database, "mongo database")

	put := &cobra.Command{
		Use:          "put <peer_name>",
		Short:        "Store the certificate issuance date and validity hash of a peer",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			issuedAt, err := config.ParseISO(issued)
			if err != nil {
				return err
			}
			hash, err := hex.DecodeString(hashHex)
			if err != nil {
				return fmt.Errorf("validity hash: %w", err)
			}

			client, err := wire.NewMongo(cmd.Context(), mongoCfg)
			if err != nil {
				return err
			}
			defer client.Disconnect(cmd.Context())

			p := model.NewPeerIdentity(localName, args[0], issuedAt, hash)
			if err := peer.NewPeerRepo(client.Database(mongoCfg.Database)).Upsert(cmd.Context(), &p); err != nil {
				return err
			}
			fmt.Printf("stored %s (%s)\n", p.DisplayName, p.Destination())
			return nil
		},
	}
	put.Flags().StringVar(&localName, "local", "", "local user name the peer talks to")
	put.Flags().StringVar(&issued, "issued", "", "peer certificate issuance date (ISO 8601)")
	put.Flags().StringVar(&hashHex, "hash", "", "peer validity hash (hex)")
	_ = put.MarkFlagRequired("local")
	_ = put.MarkFlagRequired("issued")
	_ = put.MarkFlagRequired("hash")

	cmd.AddCommand(put)
	return cmd
}
