package main

import (
	"github.com/spf13/cobra"

	"github.com/vanshika/iamgraph/internal/repository"
	"github.com/vanshika/iamgraph/internal/service"
)

func newQueriesCmd(a *app) *cobra.Command {
	opts := &setupOptions{}
	var skipSetup bool

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Run the six sample requests against the IAM database",
		Long: `queries runs setup first, then fetches all users, inserts a user, lists the files
Kevin Morrison may view with and without inference, renames a file and deletes it.
Each result is checked against the sizes expected from the shipped dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			drv, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()

			plan := opts.plan(cmd, a)
			if !skipSetup {
				if err := runSetup(ctx, a, drv, plan, cmd.OutOrStdout()); err != nil {
					return err
				}
			}

			repo := repository.New(drv, plan.Database, a.logger)
			runner := service.NewSampleRunner(repo, cmd.OutOrStdout(), service.DefaultExpectations(), a.logger)
			return runner.Run(ctx)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&skipSetup, "skip-setup", false, "Query the existing database without reloading it")
	return cmd
}
