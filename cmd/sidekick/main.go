package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "sidekick",
		Short: "Mention-driven GitHub automation bot",
		Long: `Sidekick listens for @-mentions in GitHub issues and pull requests,
turns them into code-editing jobs, and reports results back as comments
and pull requests.`,
	}

	rootCmd.AddCommand(
		newStartCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sidekick %s\n", version)
		},
	}
}
