package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceroll/pkg/config"
	"github.com/MrCodeEU/faceroll/pkg/logging"
)

const version = "0.2.0"

var (
	cfg        *config.Config
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "faceroll",
	Short: "Classroom attendance from group photos",
	Long: `faceroll builds a gallery of enrolled identities from a folder of labeled
photos and recognizes those identities in group photos.

Recognition prints exactly one JSON object to stdout. Logs go to stderr.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.SetVersionTemplate(`{{printf "faceroll v%s\n" .Version}}`)
}

func initConfig() {
	// .env file is optional
	_ = godotenv.Load()

	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	logging.Debugf("faceroll v%s starting", version)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
