// Package commands provides the turnwire CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/turnwire/turnwire/internal/config"
	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/pkg/types"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel   string
	prettyLogs bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "turnwire",
	Short: "turnwire - streaming session coordinator",
	Long: `turnwire drives conversational turns against a generative-response
service, correlating the multiplexed event stream per request, tracking
concurrent tool executions, and measuring first-token latency.

Run 'turnwire serve' to host the coordinator API, or 'turnwire send' to
drive a single turn from the command line.`,
	Version:           Version,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", false, "Human-readable log output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (overrides discovery)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("turnwire %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
}

// setup loads .env and config, then initializes logging. Flags win over
// the config file.
func setup(cmd *cobra.Command, args []string) error {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	if configPath != "" {
		os.Setenv("TURNWIRE_CONFIG", configPath)
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	appConfig = cfg

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(level),
		Pretty: prettyLogs || cfg.Log.Pretty,
	})

	return nil
}

// appConfig is the loaded configuration, available to every subcommand
// after setup.
var appConfig *types.Config

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
