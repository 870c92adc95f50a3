package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const schemaPath = "../../schemas/swarm.cue"

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTemp(t, `
swarm_id: test
stagger: 250ms
recovery:
  max_retries: 3
  cooldown: 10s
fleets:
  - name: fleet-x
    model: small-fpv
    count: 2
    behavior:
      motor_stop_rate: 0.5
`)
	cfg, err := Load(path, schemaPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.Fleets) != 1 || cfg.Fleets[0].Name != "fleet-x" {
		t.Errorf("unexpected fleet data: %+v", cfg.Fleets)
	}
	if cfg.Stagger != 250*time.Millisecond || cfg.Recovery.Cooldown != 10*time.Second {
		t.Errorf("durations not decoded: %+v", cfg)
	}
	if cfg.MaxUnits != 10 || cfg.Quorum != 0.8 || cfg.Formation.CyclePause != 2*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if got := cfg.UnitIDs(); strings.Join(got, ",") != "fleet-x-1,fleet-x-2" {
		t.Errorf("UnitIDs = %v", got)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("../../config/swarm.yaml", schemaPath)
	if err != nil {
		t.Fatalf("shipped config invalid: %v", err)
	}
	if len(cfg.UnitIDs()) != 6 {
		t.Errorf("units = %v", cfg.UnitIDs())
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"rate above one": `
fleets:
  - name: a
    count: 1
    behavior:
      motor_stop_rate: 1.5
`,
		"unknown key": `
colour: red
fleets:
  - name: a
    count: 1
`,
		"bad duration": `
stagger: soon
fleets:
  - name: a
    count: 1
`,
		"no fleets": `
swarm_id: lonely
fleets: []
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, body), schemaPath); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateCapacity(t *testing.T) {
	cfg := Default()
	cfg.Fleets = append(cfg.Fleets, Fleet{Name: "bravo", Count: 7})
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "at most 10") {
		t.Fatalf("err = %v", err)
	}
	cfg.Fleets[1].Name = "alpha"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate fleet") {
		t.Fatalf("err = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SWARM_ID", "from-env")
	t.Setenv("GREPTIMEDB_ENDPOINT", "db:4001")
	cfg, err := Parse([]byte("fleets:\n  - name: a\n    count: 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SwarmID != "from-env" || cfg.Sink.GreptimeEndpoint != "db:4001" || cfg.Sink.GreptimeDatabase != "public" {
		t.Fatalf("env not applied: %+v", cfg.Sink)
	}
}
