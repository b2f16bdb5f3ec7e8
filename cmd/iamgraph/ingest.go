package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vanshika/iamgraph/internal/repository"
	"github.com/vanshika/iamgraph/internal/service"
)

var errEmptyDataset = errors.New("users dataset is empty")

func newIngestCmd(a *app) *cobra.Command {
	var (
		usersPath string
		workers   int
		database  string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Insert users from a JSON file, one write transaction per user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := loadUserInputs(usersPath)
			if err != nil {
				return WrapError(ExitError, "failed to load users", err)
			}
			if len(users) == 0 {
				return WrapError(ExitError, "nothing to ingest", fmt.Errorf("%w: %s", errEmptyDataset, usersPath))
			}

			ctx := cmd.Context()
			drv, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()

			if database == "" {
				database = a.cfg.Graph.Database
			}
			repo := repository.New(drv, database, a.logger)
			ingestor := service.NewBulkIngestor(repo, workers, a.logger)

			start := time.Now()
			a.logger.Info("ingesting users", "count", len(users), "workers", workers, "database", database)
			inserted, err := ingestor.IngestUsers(ctx, users)
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d of %d users.\n", inserted, len(users))
			if err != nil {
				return err
			}
			a.logger.Info("ingestion complete", "duration", time.Since(start).String(), "users", inserted)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&usersPath, "users", "", "Path to a JSON array of {fullName, email} objects")
	flags.IntVar(&workers, "workers", 4, "Number of concurrent write transactions")
	flags.StringVar(&database, "database", "", "Target database (defaults to graph.database)")
	_ = cmd.MarkFlagRequired("users")
	return cmd
}

func loadUserInputs(path string) ([]service.UserInput, error) {
	var users []service.UserInput
	if err := loadJSON(path, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func loadJSON(path string, target any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
