package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidekick-bot/sidekick/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath()

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}

			fmt.Printf("🔧 Wrote default configuration to %s\n", path)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  1. Set github.token and github.webhook_secret (or export")
			fmt.Println("     SIDEKICK_GITHUB_TOKEN and SIDEKICK_WEBHOOK_SECRET)")
			fmt.Println("  2. Point a GitHub webhook at /webhooks/github")
			fmt.Println("  3. Run: sidekick start")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
