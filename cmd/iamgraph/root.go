package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vanshika/iamgraph/internal/config"
	"github.com/vanshika/iamgraph/internal/graph"
	"github.com/vanshika/iamgraph/internal/logging"
)

// app carries the state shared by all subcommands once the configuration is loaded.
type app struct {
	configFile string
	verbose    bool
	noColor    bool

	cfg    config.Config
	logger *slog.Logger

	// newDriver opens the graph connection; tests replace it with an in-memory driver.
	newDriver func(ctx context.Context, a *app) (graph.Driver, error)
}

func newApp() *app {
	return &app{
		logger:    slog.Default(),
		newDriver: connectNeo4j,
	}
}

func (a *app) colored() bool {
	return !a.noColor && !color.NoColor
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "iamgraph",
		Short: "IAM sample database on Neo4j",
		Long: `iamgraph replaces a Neo4j database with the IAM sample schema and dataset,
verifies the load and runs the sample access queries against it.`,
		PersistentPreRunE: a.loadConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to a YAML configuration file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newSetupCmd(a),
		newQueriesCmd(a),
		newQuickstartCmd(a),
		newIngestCmd(a),
		newDatagenCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs root with a context cancelled on SIGINT or SIGTERM.
func Execute(ctx context.Context, root *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return root.ExecuteContext(ctx)
}

func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	cfg, err := config.Load(a.configFile)
	if err != nil {
		return WrapError(ExitConfigError, "failed to load configuration", err)
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg
	a.logger = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging).With("command", cmd.Name())
	return nil
}
