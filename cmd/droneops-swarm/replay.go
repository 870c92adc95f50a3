package main

import (
	"github.com/spf13/cobra"

	"droneops-swarm/internal/config"
	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/sink"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a swarm event log",
	Long:  "replay feeds swarm events from a JSONL log back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.FromContext(ctx)
		// Only the environment matters here; the config file may be absent.
		cfg := config.Default()
		w, err := replayWriter(cfg.Sink, replayPrintOnly, log)
		if err != nil {
			return err
		}
		n, err := sink.ReplayLogFile(ctx, replayInput, w, replaySpeed)
		log.Info("replay finished", "input", replayInput, "events", n)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to swarm event log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 = as fast as possible)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print events to STDOUT instead of writing to DB")
	_ = replayCmd.MarkFlagRequired("input")
}
