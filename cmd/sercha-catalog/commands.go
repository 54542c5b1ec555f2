package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/custodia-labs/sercha-catalog/internal/adapters/driven/vespa"
	"github.com/custodia-labs/sercha-catalog/internal/config"
	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

func newReindexCmd(v *viper.Viper) *cobra.Command {
	var (
		types    []string
		recreate bool
		async    bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild search documents from the entity store",
		Long: `Rebuilds the search documents of the given entity types (all mapped
types when none are named). With --async the run is enqueued for a worker
instead of running in this process.`,
		Example: `  sercha-catalog reindex
  sercha-catalog reindex --types table,topic --recreate
  sercha-catalog reindex --async`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if async {
				task, err := a.services.Admin.TriggerReindex(cmd.Context(), types, recreate)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued task %s\n", task.ID)
				return err
			}

			results, err := a.reindexer.ReindexAll(cmd.Context(), types, recreate)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}
			printReindexResults(cmd.OutOrStdout(), results)
			for _, r := range results {
				if !r.Success {
					return fmt.Errorf("reindex failed for %s: %s", r.EntityType, r.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&types, "types", nil, "Entity types to reindex (default: all)")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and recreate each index first")
	cmd.Flags().BoolVar(&async, "async", false, "Enqueue the reindex for a worker")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func newCreateIndexesCmd(v *viper.Viper) *cobra.Command {
	var (
		types  []string
		deploy bool
	)

	cmd := &cobra.Command{
		Use:   "create-indexes",
		Short: "Create missing indexes for the mapped entity types",
		Example: `  sercha-catalog create-indexes
  sercha-catalog create-indexes --deploy --vespa-config-url http://vespa:19071`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			if deploy && cfg.IndexBackend == config.BackendVespa {
				deployer, err := vespa.NewDeployer(cfg.VespaConfigURL, cfg.Logger())
				if err != nil {
					return err
				}
				if err := deployer.Deploy(cmd.Context()); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deployed application package to %s\n", cfg.VespaConfigURL)
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses, err := a.services.Admin.CreateIndexes(cmd.Context(), types...)
			if err != nil {
				return err
			}
			printIndexStatuses(cmd.OutOrStdout(), statuses)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&types, "types", nil, "Entity types to create indexes for (default: all)")
	cmd.Flags().BoolVar(&deploy, "deploy", false, "Deploy the Vespa application package first")
	cmd.Flags().String("vespa-config-url", "", "Vespa config server endpoint")
	_ = v.BindPFlag("vespa_config_url", cmd.Flags().Lookup("vespa-config-url"))
	return cmd
}

func printReindexResults(w io.Writer, results []*domain.ReindexResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TYPE\tINDEXED\tERRORS\tDURATION\tSTATUS")
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = r.Error
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.1fs\t%s\n", r.EntityType, r.Stats.Indexed, r.Stats.Errors, r.Duration, status)
	}
	_ = tw.Flush()
}

func printIndexStatuses(w io.Writer, statuses []domain.IndexStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TYPE\tINDEX\tEXISTS")
	for _, s := range statuses {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\n", s.EntityType, s.IndexName, s.Exists)
	}
	_ = tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
