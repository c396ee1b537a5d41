package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bevie/chatclient/internal/config"
	"github.com/bevie/chatclient/internal/logging"
)

// Version information
const Version = "0.1.0"

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bevie",
	Short: "Terminal chat client for the Bevie calendar assistant",
	Long: `bevie keeps one WebSocket session with the assistant backend and shows
the conversation in the terminal. Calendar links sent by the backend's tools
are attached to the next reply, and replies that schedule something get an
event card.

Run without arguments to start chatting.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logCfg := cfg.Logging
		if cmd != cmd.Root() {
			// Subcommands have no UI to draw over, so log to the terminal.
			logCfg.File = ""
		}
		logger, err = logging.New(logCfg, verbose)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Serve the diagnostics endpoint the client posts to",
	Long: `Accepts POST /log with {"message","level"} bodies and writes each entry to
the log at its level. Also serves /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollector(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bevie version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(collectorCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "bevie", "config.yaml")
	}
	return "config.yaml"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
