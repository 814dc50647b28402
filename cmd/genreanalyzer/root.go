package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/genre-analyzer/internal/config"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	envFile    string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "genreanalyzer",
		Short: "Keyword-based text genre probability service.",
		Long: `genreanalyzer scores stored texts against candidate genres by keyword matching
and reports the per-genre probabilities to the calling service through a callback.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadEnvFile(opts.envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "path to a .env file loaded before config")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newScoreCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
