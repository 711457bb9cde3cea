// Package cli implements the spof command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/build-flow-labs/spof/internal/spof/config"
)

// Version is the released version of the tool.
const Version = "0.1.0"

var (
	configPath string
	debug      bool
	logFile    string

	logger  = slog.Default()
	logSink io.Closer
)

// RootCmd is the spof command.
var RootCmd = &cobra.Command{
	Use:   "spof",
	Short: "Find the open-source dependencies your organization cannot afford to lose",
	Long: `spof inventories the dependencies of an organization's GitHub repositories,
enriches them with ecosystem health signals from GitHub and deps.dev, and ranks
them by a 0-100 single-point-of-failure score with a recommendation.

Run "spof init" to write a configuration file, then "spof analyze".`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			logSink.Close()
		}
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the configuration file")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	RootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")

	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(cacheCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(versionCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var w io.Writer = cmd.ErrOrStderr()
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		logSink = f
		w = io.MultiWriter(w, f)
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig reads the configuration file. A missing file yields the
// defaults when allowMissing is set.
func loadConfig(allowMissing bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		if allowMissing {
			def := config.Default()
			return &def, nil
		}
		return nil, fmt.Errorf("config file %s not found; run \"spof init\" to create one", configPath)
	}
	return nil, err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "spof %s\n", Version)
	},
}
