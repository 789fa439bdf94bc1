package main

import (
	"fmt"
	"log/slog"

	"github.com/ggoodman/rpc-router-go/catalog"
	"github.com/ggoodman/rpc-router-go/catalog/redis"
	"github.com/ggoodman/rpc-router-go/examples/calculator"
	"github.com/ggoodman/rpc-router-go/stdio"
	"github.com/spf13/cobra"
)

func newRootCmd(cfg Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "rpcrouter",
		Short:        "Serve and describe the sample calculator RPC router",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")

	logger := func(cmd *cobra.Command) (*slog.Logger, error) {
		return newLogger(cfg, cmd.ErrOrStderr())
	}

	root.AddCommand(
		newServeCmd(logger),
		newCatalogCmd(),
		newPublishCmd(&cfg, logger),
	)
	return root
}

type loggerFunc func(cmd *cobra.Command) (*slog.Logger, error)

func newServeCmd(logger loggerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Dispatch one JSON request per line from stdin, writing responses to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := logger(cmd)
			if err != nil {
				return err
			}
			h := stdio.NewHandler(calculator.New(l),
				stdio.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
				stdio.WithLogger(l),
			)
			return h.Serve(cmd.Context())
		},
	}
}

func newCatalogCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the method catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := catalog.ParseFormat(format)
			if err != nil {
				return err
			}
			return catalog.Encode(cmd.OutOrStdout(), calculator.New(nil).JSONSchemaRoutes(), f)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format (json, yaml, toml)")
	return cmd
}

func newPublishCmd(cfg *Config, logger loggerFunc) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the method catalog to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := logger(cmd)
			if err != nil {
				return err
			}
			f, err := catalog.ParseFormat(format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := redis.Dial(ctx, cfg.RedisAddr, cfg.CatalogPrefix)
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := catalog.Publish(ctx, store, cfg.CatalogName, calculator.New(l).JSONSchemaRoutes(), f, catalog.WithTTL(cfg.CatalogTTL))
			if err != nil {
				return err
			}
			l.InfoContext(ctx, "published catalog",
				slog.String("name", cfg.CatalogName),
				slog.String("format", string(doc.Format)),
				slog.String("digest", doc.Digest),
				slog.Int("bytes", len(doc.Data)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s %s\n", cfg.CatalogPrefix, cfg.CatalogName, doc.Digest)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "document format (json, yaml, toml)")
	cmd.Flags().StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	cmd.Flags().StringVar(&cfg.CatalogPrefix, "prefix", cfg.CatalogPrefix, "Redis key prefix")
	cmd.Flags().StringVar(&cfg.CatalogName, "name", cfg.CatalogName, "catalog document name")
	cmd.Flags().DurationVar(&cfg.CatalogTTL, "ttl", cfg.CatalogTTL, "expiry of the published document (0 for none)")
	return cmd
}
