package main

import (
	"github.com/spf13/cobra"

	"github.com/vanshika/iamgraph/internal/repository"
	"github.com/vanshika/iamgraph/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the IAM read API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			drv, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()

			database := a.cfg.Graph.Database
			repo := repository.New(drv, database, a.logger)
			router := server.NewRouter(a.logger, server.RouterDependencies{
				Database: database,
				Health:   server.GraphHealthService{Driver: drv},
				API:      server.NewAPIHandlers(a.logger, repo),
				CORS: server.CORSPolicy{
					AllowedOrigins:   a.cfg.HTTP.AllowedOrigins(),
					AllowCredentials: a.cfg.HTTP.AllowCredentials,
				},
			})

			if err := server.New(a.logger, a.cfg.HTTP, router).Run(ctx); err != nil {
				return WrapError(ExitError, "server stopped unexpectedly", err)
			}
			return nil
		},
	}
}
