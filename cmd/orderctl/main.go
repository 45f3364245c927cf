package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configEnv string
	configDir string
	rootCmd   = &cobra.Command{
		Use:   "orderctl",
		Short: "Operations tool for the order flow service",
		Long: `orderctl runs database migrations, replays failed outbox events
and inspects order completion state against the configured PostgreSQL.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configEnv, "env", "", "config environment (defaults to CONFIG_ENV or local)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (defaults to CONFIG_DIR or ./config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
