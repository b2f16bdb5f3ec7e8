package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vanshika/iamgraph/internal/generator"
)

func newDatagenCmd(a *app) *cobra.Command {
	def := generator.DefaultConfig()
	var (
		genCfg      = def
		outputDir   string
		writeStdout bool
	)

	cmd := &cobra.Command{
		Use:   "datagen",
		Short: "Generate a larger IAM schema and dataset as Cypher scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			genCfg.MembershipChance = clampProbability(genCfg.MembershipChance)
			genCfg.GrantChance = clampProbability(genCfg.GrantChance)
			genCfg.DirectGrantChance = clampProbability(genCfg.DirectGrantChance)

			gen := generator.New(genCfg)
			dataset, err := gen.Generate(cmd.Context())
			if err != nil {
				return WrapError(ExitError, "generation failed", err)
			}

			out := cmd.OutOrStdout()
			if writeStdout {
				_, err := fmt.Fprint(out, generator.DataScript(dataset, gen.Config().BatchSize))
				return err
			}

			if err := generator.WriteDataset(dataset, outputDir, gen.Config().BatchSize); err != nil {
				return WrapError(ExitError, "failed to write dataset", err)
			}
			a.logger.Debug("dataset generated", "seed", gen.Config().Seed, "dir", outputDir)
			fmt.Fprintf(out, "Generated %d users, %d groups, %d directories and %d files into %s\n",
				len(dataset.Users), len(dataset.Groups), len(dataset.Directories), len(dataset.Files), outputDir)
			fmt.Fprintf(out, "Load it with: iamgraph setup --schema-file %s/%s --data-file %s/%s --expected-count %d\n",
				outputDir, generator.SchemaFileName, outputDir, generator.DataFileName, len(dataset.Users))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&genCfg.NumUsers, "users", def.NumUsers, "Number of users to generate")
	flags.IntVar(&genCfg.NumGroups, "groups", def.NumGroups, "Number of user groups")
	flags.IntVar(&genCfg.NumDirectories, "directories", def.NumDirectories, "Number of nested directories below the group directories")
	flags.IntVar(&genCfg.FilesPerDirectory, "files-per-directory", def.FilesPerDirectory, "Files created in every directory")
	flags.Float64Var(&genCfg.MembershipChance, "membership-chance", def.MembershipChance, "Probability of a user joining a second group")
	flags.Float64Var(&genCfg.GrantChance, "grant-chance", def.GrantChance, "Probability of a group receiving an extra directory grant")
	flags.Float64Var(&genCfg.DirectGrantChance, "direct-grant-chance", def.DirectGrantChance, "Probability of a user receiving a direct file grant")
	flags.IntVar(&genCfg.BatchSize, "batch-size", def.BatchSize, "Rows per UNWIND statement")
	flags.Int64Var(&genCfg.Seed, "seed", def.Seed, "Random seed for deterministic generation (0 picks one)")
	flags.StringVar(&outputDir, "output-dir", "data/generated", "Directory to write the schema, data and users.json")
	flags.BoolVar(&writeStdout, "stdout", false, "Write the data script to stdout instead of files")
	return cmd
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
