package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/vanshika/iamgraph/internal/bootstrap"
	"github.com/vanshika/iamgraph/internal/console"
	"github.com/vanshika/iamgraph/internal/graph"
)

type setupOptions struct {
	database      string
	schemaFile    string
	dataFile      string
	expectedCount int64
}

func (o *setupOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&o.database, "database", "", "Database to replace (defaults to graph.database)")
	flags.StringVar(&o.schemaFile, "schema-file", "", "Schema script (defaults to bootstrap.schema_file)")
	flags.StringVar(&o.dataFile, "data-file", "", "Data script (defaults to bootstrap.data_file)")
	flags.Int64Var(&o.expectedCount, "expected-count", 0, "Users expected after loading (defaults to bootstrap.expected_count)")
}

// plan layers explicitly set flags over the loaded configuration.
func (o *setupOptions) plan(cmd *cobra.Command, a *app) bootstrap.Plan {
	plan := bootstrap.Plan{
		Database:      a.cfg.Graph.Database,
		SchemaFile:    a.cfg.Bootstrap.SchemaFile,
		DataFile:      a.cfg.Bootstrap.DataFile,
		ExpectedCount: a.cfg.Bootstrap.ExpectedCount,
	}
	if o.database != "" {
		plan.Database = o.database
	}
	if o.schemaFile != "" {
		plan.SchemaFile = o.schemaFile
	}
	if o.dataFile != "" {
		plan.DataFile = o.dataFile
	}
	if cmd.Flags().Changed("expected-count") {
		plan.ExpectedCount = o.expectedCount
	}
	return plan
}

func newSetupCmd(a *app) *cobra.Command {
	opts := &setupOptions{}
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Replace the database, load the IAM schema and dataset, and verify the load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			drv, release, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			return runSetup(cmd.Context(), a, drv, opts.plan(cmd, a), cmd.OutOrStdout())
		},
	}
	opts.register(cmd)
	return cmd
}

func runSetup(ctx context.Context, a *app, drv graph.Driver, plan bootstrap.Plan, out io.Writer) error {
	rep := console.NewReporter(out, a.colored())
	if err := bootstrap.Run(ctx, drv, plan, rep); err != nil {
		a.logger.Error("setup failed", "database", plan.Database, "error", err)
		return err
	}
	rep.Success("Database setup complete.")
	return nil
}
