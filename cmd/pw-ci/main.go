package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "pw-ci",
		Short: "Patchwork CI synchronization engine",
		Long: `pw-ci reconciles patch series on a Patchwork review tracker with build
results from CI providers. It tracks series lifecycle in a local database,
polls the configured providers and reports each finished build exactly
once to the project's mailing list.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
