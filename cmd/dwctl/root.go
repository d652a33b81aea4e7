package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/warehouse-ai/internal/app"
	"github.com/seanankenbruck/warehouse-ai/internal/config"
	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

type globalOptions struct {
	schemaPath string
	logLevel   string
	asJSON     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "dwctl",
		Short: "Inspect and exercise the data warehouse question pipeline",
		Long: `dwctl loads the same configuration as the query processor and runs single
steps of the pipeline from the terminal: build the catalog index, retrieve schema objects
for a question, generate the validated SQL, or answer a question end to end.`,
	}

	root.PersistentFlags().StringVar(&opts.schemaPath, "schema", "", "catalog file (overrides SCHEMA_PATH)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for pipeline logs")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")

	root.AddCommand(
		newIndexCmd(opts),
		newRetrieveCmd(opts),
		newSQLCmd(opts),
		newAskCmd(opts),
		newSnapshotCmd(opts),
		newCheckCmd(opts),
	)
	return root
}

// loadConfig reads the environment and applies command line overrides
func (o *globalOptions) loadConfig(ctx context.Context) (*config.Config, error) {
	observability.SetDefaultLevel(observability.ParseLevel(o.logLevel))

	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		return nil, err
	}
	if o.schemaPath != "" {
		cfg.Catalog.Path = o.schemaPath
	}
	return cfg, nil
}

// newApp builds the pipeline. Warehouse and history are only opened when needed.
func (o *globalOptions) newApp(cmd *cobra.Command, needWarehouse bool) (*app.App, error) {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	cfg, err := o.loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.New(ctx, cfg, app.Options{
		SkipWarehouse: !needWarehouse,
		SkipHistory:   true,
	})
}

func (o *globalOptions) printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}
