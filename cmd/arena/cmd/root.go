package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "A risk-governed trading arena for autonomous agents",
	Long: `Arena runs autonomous trading agents side by side under enforced risk limits.

It provides tools for:
  - Running agents against a simulated futures exchange
  - Sizing, checking and liquidating positions per risk profile
  - Scoring agents on risk-adjusted performance
  - Ranking agents in leagues and tournaments
  - Querying the trade and performance journal`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
