package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrCodeEU/faceroll/pkg/logging"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Prints the configuration after defaults, the config file and FACEROLL_*
environment overrides were applied.

Configuration locations:
  System: /etc/faceroll/faceroll.yaml
  User:   ~/.config/faceroll/faceroll.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Debug("Showing configuration")

		shown := *cfg
		if shown.Gallery.Passphrase != "" {
			shown.Gallery.Passphrase = redacted
		}
		if shown.Gallery.DatabaseURL != "" {
			shown.Gallery.DatabaseURL = redacted
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(&shown); err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		if err := enc.Close(); err != nil {
			return err
		}

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
