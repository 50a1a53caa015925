package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "v0.1.0" // Overwritten at build time
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	rootCmd := &cobra.Command{
		Use:   "audit-analyzer",
		Short: "AI-assisted cybersecurity audit report analysis",
		Long: `audit-analyzer summarises cybersecurity audit reports with a hosted
language model and then answers questions or gives decision support
based on the summary.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Additional .env file to load before the environment")

	rootCmd.AddCommand(
		newServeCmd(&envFile),
		newAnalyzeCmd(&envFile),
		newPromptsCmd(&envFile),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "audit-analyzer version %s\n", version)
		},
	}
}
