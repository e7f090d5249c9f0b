package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configPrintCmd dumps the fully-resolved configuration (env overrides
// applied) back out as YAML, for operators diagnosing a misbehaving
// worker without having to reconstruct viper's merge order by hand.
var configPrintCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved worker configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		redacted := *cfg
		redacted.Locator.APIKey = redactedIfSet(redacted.Locator.APIKey)
		redacted.Locator.AWSSecret = redactedIfSet(redacted.Locator.AWSSecret)
		redacted.Locator.AWSSession = redactedIfSet(redacted.Locator.AWSSession)

		out, err := yaml.Marshal(redacted)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

// redactedIfSet replaces a non-empty secret value with a fixed placeholder
// so `geolocator config` is safe to paste into a bug report.
func redactedIfSet(v string) string {
	if v == "" {
		return ""
	}
	return "<redacted>"
}

func init() { rootCmd.AddCommand(configPrintCmd) }
