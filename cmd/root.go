package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geolocator",
	Short: "Geocode consolidation pipeline",
	Long:  "Dispatches address-normalisation queries to multiple geocoding providers, consolidates the resulting candidates through a ranked decision procedure, and resolves the winner to internal locality identifiers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
