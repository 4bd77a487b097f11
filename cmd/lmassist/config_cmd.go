package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/langmartai/lmassist/internal/cli"
	"github.com/langmartai/lmassist/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the current configuration and settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
	cmd.AddCommand(configProfileCmd())
	return cmd
}

func runConfigShow() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	settings := config.LoadSettings()

	cli.Header("lmassist config")
	fmt.Printf("  data dir:        %s\n", config.DataDir())
	fmt.Printf("  http addr:       %s\n", cfg.HTTP.Addr)
	fmt.Printf("  embedding:       %s / %s\n", cfg.Embedding.Provider, cfg.Embedding.Model)
	fmt.Printf("  hub url:         %s\n", orNone(cfg.Hub.URL))
	fmt.Printf("  inject knowledge: %v (top %d)\n", settings.ContextInjectKnowledge, settings.ContextInjectKnowledgeCount)
	fmt.Printf("  inject milestones: %v (top %d)\n", settings.ContextInjectMilestones, settings.ContextInjectMilestoneCount)
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(not configured)"
	}
	return s
}

func configProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <minimal|default|thorough>",
		Short: "Apply a built-in context-injection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ApplyProfile(args[0]); err != nil {
				return err
			}
			cli.Footer(fmt.Sprintf("applied profile %q", args[0]))
			return nil
		},
	}
	return cmd
}
