package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"droneops-swarm/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string
	logFile    string
	logJSON    bool

	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "droneops-swarm",
	Short:         "Fault-tolerant quadcopter swarm coordinator",
	Long:          "droneops-swarm coordinates a fleet of quadcopters as one swarm: formations, synchronized flight and motor-stop recovery.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd, logging.Options{Level: logLevel, File: logFile, JSON: logJSON})
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// setupLogging builds the logger and stores it in the command context.
func setupLogging(cmd *cobra.Command, opts logging.Options) error {
	log, closer, err := logging.NewWithOptions(opts)
	if err != nil {
		return err
	}
	if logCloser != nil {
		_ = logCloser.Close()
	}
	logCloser = closer
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.NewContext(ctx, log))
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "config/swarm.yaml", "Path to swarm configuration YAML")
	pf.StringVar(&schemaPath, "schema", "schemas/swarm.cue", "Path to CUE schema file")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&logFile, "log-file", "", "Write logs to this size-rotated file instead of STDOUT")
	pf.BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(replayCmd)
}
