package main

import (
	"github.com/spf13/cobra"

	"audit-analyzer/internal/config"
	"audit-analyzer/internal/prompts"
)

func newPromptsCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "Print the effective system prompts as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(*envFile)
			t, err := prompts.Load(cfg.PromptsFile)
			if err != nil {
				return err
			}
			b, err := t.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
