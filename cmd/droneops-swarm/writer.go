package main

import (
	"log/slog"

	"droneops-swarm/internal/config"
	"droneops-swarm/internal/sink"
)

// newWriters assembles the configured event and health sinks. The returned
// MultiWriter accepts more writers later; cleanup closes any log files.
func newWriters(cfg config.Sink, printOnly bool, log *slog.Logger) (*sink.MultiWriter, func(), error) {
	cleanup := func() {}
	mw := sink.NewMultiWriter()

	if printOnly || cfg.Stdout {
		mw.Add(sink.NewJSONStdoutWriter())
	}
	if cfg.Greptime || cfg.GreptimeEndpoint != "" {
		if cfg.GreptimeEndpoint == "" {
			log.Warn("greptime sink enabled but GREPTIMEDB_ENDPOINT is unset, skipping")
		} else if !printOnly {
			gw, err := sink.NewGreptimeDBWriter(cfg.GreptimeEndpoint, cfg.GreptimeDatabase, log)
			if err != nil {
				return nil, nil, err
			}
			log.Info("recording to greptimedb", "endpoint", cfg.GreptimeEndpoint, "database", cfg.GreptimeDatabase)
			mw.Add(gw)
		}
	}
	if cfg.EventLog != "" || cfg.HealthLog != "" {
		fw, err := sink.NewFileWriter(cfg.EventLog, cfg.HealthLog)
		if err != nil {
			return nil, nil, err
		}
		log.Info("recording to files", "event_log", cfg.EventLog, "health_log", cfg.HealthLog)
		mw.Add(fw)
		cleanup = func() { _ = fw.Close() }
	}
	return mw, cleanup, nil
}

// replayWriter picks the destination for a replay: GreptimeDB when an
// endpoint is configured, STDOUT otherwise.
func replayWriter(cfg config.Sink, printOnly bool, log *slog.Logger) (sink.EventWriter, error) {
	if printOnly || cfg.GreptimeEndpoint == "" {
		return sink.NewJSONStdoutWriter(), nil
	}
	return sink.NewGreptimeDBWriter(cfg.GreptimeEndpoint, cfg.GreptimeDatabase, log)
}
