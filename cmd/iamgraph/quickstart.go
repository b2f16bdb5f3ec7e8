package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vanshika/iamgraph/internal/service"
)

func newQuickstartCmd(a *app) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "quickstart",
		Short: "Create a small Person database, insert two people and read them back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			drv, release, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			names, err := service.Quickstart(cmd.Context(), drv, database)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(out, "Person: %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&database, "database", service.QuickstartDatabase, "Database to recreate")
	return cmd
}
