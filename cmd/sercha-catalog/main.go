package main

// @title           Sercha Catalog API
// @version         1.0
// @description     Search indexing, lineage and data-quality tracing for a metadata catalog.

// @contact.name   Sercha OSS
// @contact.url    https://github.com/custodia-labs/sercha-catalog/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	_ "github.com/custodia-labs/sercha-catalog/docs"
	"github.com/custodia-labs/sercha-catalog/internal/config"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:           "sercha-catalog",
		Short:         "Catalog search indexer and lineage service",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Without a subcommand the process runs in RUN_MODE.
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cfg.RunMode)
		},
	}

	flags := root.PersistentFlags()
	flags.Int("port", 8080, "HTTP listen port")
	flags.String("database-url", "", "PostgreSQL connection string")
	flags.String("redis-url", "", "Redis URL; enables the redis queue, lock and quality cache")
	flags.String("index-backend", config.BackendVespa, "Index backend (vespa or memory)")
	flags.String("vespa-url", "", "Vespa container endpoint")
	flags.String("cluster-alias", "", "Prefix applied to index names and aliases")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	bindFlags(v, root, map[string]string{
		"port":          "port",
		"database_url":  "database-url",
		"redis_url":     "redis-url",
		"index_backend": "index-backend",
		"vespa_url":     "vespa-url",
		"cluster_alias": "cluster-alias",
		"log_level":     "log-level",
	})

	root.AddCommand(
		newModeCmd(v, config.ModeAPI, "Run the HTTP API"),
		newModeCmd(v, config.ModeWorker, "Run the task worker and scheduler"),
		newModeCmd(v, config.ModeAll, "Run the HTTP API and the worker in one process"),
		newReindexCmd(v),
		newCreateIndexesCmd(v),
		newVersionCmd(),
	)
	return root
}

// bindFlags binds persistent flags to config keys. Flags only override the
// environment when set explicitly.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		_ = v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag))
	}
}

func newModeCmd(v *viper.Viper, mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   mode,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v.Set("run_mode", mode)
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, mode)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "sercha-catalog %s\n", version)
			return err
		},
	}
}
