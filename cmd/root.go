package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "examrun",
	Short: "Run timed multi-part language test modules",
	Long: `examrun runs one module of a language test in the terminal. It sequences
the module's question sets, keeps the module and per-question timers, and
stores the attempt for later review.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides EXAMRUN_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (overrides EXAMRUN_CONFIG env var)")
	rootCmd.PersistentFlags().String("data", "", "Directory holding question set files (overrides EXAMRUN_DATA_DIR)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(retakeCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
