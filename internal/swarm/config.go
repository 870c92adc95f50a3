package swarm

import (
	"time"

	"droneops-swarm/internal/config"
	"droneops-swarm/internal/recovery"
)

// Config holds the coordinator tunables. Zero fields take the defaults of
// DefaultConfig.
type Config struct {
	SwarmID             string
	MaxUnits            int
	WorkerPoolSize      int
	Quorum              float64 // fraction of dispatched units that must succeed
	EscalationThreshold float64 // active fraction below which an emergency stops everything
	CriticalBattery     int

	Stagger          time.Duration
	CommandDelay     time.Duration
	BatteryPoll      time.Duration
	HealthInterval   time.Duration
	DegradedAutoExit time.Duration // 0 keeps degraded exit explicit

	ConnectTimeout     time.Duration
	CommandTimeout     time.Duration
	EmergencyTimeout   time.Duration
	ConvergenceTimeout time.Duration

	MaxStep            float64
	Tolerance          float64
	CyclePause         time.Duration
	CollisionThreshold float64
	Speed              float64
	Altitude           float64

	Recovery recovery.Policy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SwarmID:             "swarm-1",
		MaxUnits:            10,
		WorkerPoolSize:      10,
		Quorum:              0.8,
		EscalationThreshold: 0.5,
		CriticalBattery:     10,
		Stagger:             500 * time.Millisecond,
		CommandDelay:        100 * time.Millisecond,
		BatteryPoll:         10 * time.Second,
		HealthInterval:      5 * time.Second,
		ConnectTimeout:      10 * time.Second,
		CommandTimeout:      30 * time.Second,
		EmergencyTimeout:    3 * time.Second,
		ConvergenceTimeout:  60 * time.Second,
		MaxStep:             100,
		Tolerance:           30,
		CyclePause:          2 * time.Second,
		CollisionThreshold:  50,
		Speed:               50,
		Altitude:            100,
		Recovery:            recovery.DefaultPolicy(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	fill(&c.SwarmID, d.SwarmID)
	fill(&c.MaxUnits, d.MaxUnits)
	fill(&c.WorkerPoolSize, d.WorkerPoolSize)
	fill(&c.Quorum, d.Quorum)
	fill(&c.EscalationThreshold, d.EscalationThreshold)
	fill(&c.CriticalBattery, d.CriticalBattery)
	fill(&c.Stagger, d.Stagger)
	fill(&c.CommandDelay, d.CommandDelay)
	fill(&c.BatteryPoll, d.BatteryPoll)
	fill(&c.HealthInterval, d.HealthInterval)
	fill(&c.ConnectTimeout, d.ConnectTimeout)
	fill(&c.CommandTimeout, d.CommandTimeout)
	fill(&c.EmergencyTimeout, d.EmergencyTimeout)
	fill(&c.ConvergenceTimeout, d.ConvergenceTimeout)
	fill(&c.MaxStep, d.MaxStep)
	fill(&c.Tolerance, d.Tolerance)
	fill(&c.CyclePause, d.CyclePause)
	fill(&c.CollisionThreshold, d.CollisionThreshold)
	fill(&c.Speed, d.Speed)
	fill(&c.Altitude, d.Altitude)
	return c
}

// FromConfig maps a loaded configuration file onto coordinator settings.
func FromConfig(c *config.SwarmConfig) Config {
	return Config{
		SwarmID:             c.SwarmID,
		MaxUnits:            c.MaxUnits,
		WorkerPoolSize:      c.WorkerPoolSize,
		Quorum:              c.Quorum,
		EscalationThreshold: c.EscalationThreshold,
		CriticalBattery:     c.CriticalBattery,
		Stagger:             c.Stagger,
		CommandDelay:        c.CommandDelay,
		BatteryPoll:         c.BatteryPoll,
		HealthInterval:      c.HealthInterval,
		DegradedAutoExit:    c.DegradedAutoExit,
		ConnectTimeout:      c.Timeouts.Connect,
		CommandTimeout:      c.Timeouts.Command,
		EmergencyTimeout:    c.Timeouts.Emergency,
		ConvergenceTimeout:  c.Timeouts.Convergence,
		MaxStep:             c.Formation.MaxStep,
		Tolerance:           c.Formation.Tolerance,
		CyclePause:          c.Formation.CyclePause,
		CollisionThreshold:  c.Formation.CollisionThreshold,
		Speed:               c.Formation.Speed,
		Altitude:            c.Formation.Altitude,
		Recovery:            c.Recovery,
	}
}

func fill[T comparable](field *T, v T) {
	var zero T
	if *field == zero {
		*field = v
	}
}
