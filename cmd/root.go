package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jjenkins/billtracker/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "billtracker",
	Short: "Track New Mexico legislative bills",
	Long: `billtracker fetches bill pages from the New Mexico Legislature's website,
stores what it finds, and tells each user which of their tracked bills
changed since they last looked.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		slog.SetDefault(cfg.Logger())
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
