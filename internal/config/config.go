// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"droneops-swarm/internal/recovery"
)

// Behavior defines how the simulated units of a fleet misbehave.
type Behavior struct {
	MotorStopRate      float64       `yaml:"motor_stop_rate"`
	TransportFaultRate float64       `yaml:"transport_fault_rate"`
	CommandFailureRate float64       `yaml:"command_failure_rate"`
	ConnectFailureRate float64       `yaml:"connect_failure_rate"`
	DropoutRate        float64       `yaml:"dropout_rate"`
	BatteryDrainRate   float64       `yaml:"battery_drain_rate"` // percent per command, 0 uses the model default
	InitialBattery     int           `yaml:"initial_battery"`
	CommandLatency     time.Duration `yaml:"command_latency"`
}

// Fleet is a group of identical units. Unit ids are "<name>-<n>".
type Fleet struct {
	Name     string   `yaml:"name"`
	Model    string   `yaml:"model"`
	Count    int      `yaml:"count"`
	Behavior Behavior `yaml:"behavior"`
}

// Timeouts bound the coordinator's waits.
type Timeouts struct {
	Connect     time.Duration `yaml:"connect"`
	Command     time.Duration `yaml:"command"`
	Emergency   time.Duration `yaml:"emergency"`
	Convergence time.Duration `yaml:"convergence"`
}

// Formation holds convergence tunables.
type Formation struct {
	MaxStep            float64       `yaml:"max_step"`
	Tolerance          float64       `yaml:"tolerance"`
	CyclePause         time.Duration `yaml:"cycle_pause"`
	CollisionThreshold float64       `yaml:"collision_threshold"`
	Speed              float64       `yaml:"speed"`
	Altitude           float64       `yaml:"altitude"`
}

// Sink selects where events and health snapshots are recorded.
type Sink struct {
	Stdout           bool   `yaml:"stdout"`
	EventLog         string `yaml:"event_log"`
	HealthLog        string `yaml:"health_log"`
	Greptime         bool   `yaml:"greptime"`
	GreptimeEndpoint string `yaml:"-"`
	GreptimeDatabase string `yaml:"-"`
}

// Admin configures the HTTP admin surface.
type Admin struct {
	Addr string `yaml:"addr"`
}

// SwarmConfig is the root configuration.
type SwarmConfig struct {
	SwarmID             string          `yaml:"swarm_id"`
	MaxUnits            int             `yaml:"max_units"`
	WorkerPoolSize      int             `yaml:"worker_pool_size"`
	Quorum              float64         `yaml:"quorum"`
	EscalationThreshold float64         `yaml:"escalation_threshold"`
	CriticalBattery     int             `yaml:"critical_battery"`
	Stagger             time.Duration   `yaml:"stagger"`
	CommandDelay        time.Duration   `yaml:"command_delay"`
	BatteryPoll         time.Duration   `yaml:"battery_poll"`
	HealthInterval      time.Duration   `yaml:"health_interval"`
	DegradedAutoExit    time.Duration   `yaml:"degraded_auto_exit"`
	Timeouts            Timeouts        `yaml:"timeouts"`
	Formation           Formation       `yaml:"formation"`
	Recovery            recovery.Policy `yaml:"recovery"`
	Sink                Sink            `yaml:"sink"`
	Admin               Admin           `yaml:"admin"`
	Fleets              []Fleet         `yaml:"fleets"`
}

// Default returns a configuration with one healthy four-unit fleet and the
// environment overrides applied.
func Default() *SwarmConfig {
	cfg := &SwarmConfig{
		Fleets: []Fleet{{Name: "alpha", Model: "tello", Count: 4}},
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

// Load loads YAML config and validates it against a CUE schema.
func Load(configPath, cueSchemaPath string) (*SwarmConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML without schema validation, then applies defaults and
// environment overrides and checks the result.
func Parse(data []byte) (*SwarmConfig, error) {
	var cfg SwarmConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SwarmConfig) applyDefaults() {
	setDefault(&c.SwarmID, "swarm-1")
	setDefault(&c.MaxUnits, 10)
	setDefault(&c.WorkerPoolSize, 10)
	setDefault(&c.Quorum, 0.8)
	setDefault(&c.EscalationThreshold, 0.5)
	setDefault(&c.CriticalBattery, 10)
	setDefault(&c.Stagger, 500*time.Millisecond)
	setDefault(&c.BatteryPoll, 10*time.Second)
	setDefault(&c.HealthInterval, 5*time.Second)
	setDefault(&c.Timeouts.Connect, 10*time.Second)
	setDefault(&c.Timeouts.Command, 30*time.Second)
	setDefault(&c.Timeouts.Emergency, 3*time.Second)
	setDefault(&c.Timeouts.Convergence, 60*time.Second)
	setDefault(&c.Formation.MaxStep, 100.0)
	setDefault(&c.Formation.Tolerance, 30.0)
	setDefault(&c.Formation.CyclePause, 2*time.Second)
	setDefault(&c.Formation.CollisionThreshold, 50.0)
	setDefault(&c.Formation.Speed, 50.0)
	setDefault(&c.Formation.Altitude, 100.0)
	for i := range c.Fleets {
		setDefault(&c.Fleets[i].Model, "tello")
		setDefault(&c.Fleets[i].Behavior.InitialBattery, 100)
	}
}

func (c *SwarmConfig) applyEnv() {
	if v := os.Getenv("SWARM_ID"); v != "" {
		c.SwarmID = v
	}
	c.Sink.GreptimeEndpoint = os.Getenv("GREPTIMEDB_ENDPOINT")
	c.Sink.GreptimeDatabase = os.Getenv("GREPTIMEDB_DATABASE")
	if c.Sink.GreptimeDatabase == "" {
		c.Sink.GreptimeDatabase = "public"
	}
}

// UnitIDs lists every configured unit id in fleet order.
func (c *SwarmConfig) UnitIDs() []string {
	var ids []string
	for _, f := range c.Fleets {
		for i := 1; i <= f.Count; i++ {
			ids = append(ids, UnitID(f.Name, i))
		}
	}
	return ids
}

// UnitID names the n-th unit of a fleet.
func UnitID(fleet string, n int) string {
	return fmt.Sprintf("%s-%d", fleet, n)
}

func setDefault[T comparable](field *T, v T) {
	var zero T
	if *field == zero {
		*field = v
	}
}
