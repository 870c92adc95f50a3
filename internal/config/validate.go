// CUE schema validation code
package config

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// SchemaDefinition is the CUE definition a configuration must satisfy.
const SchemaDefinition = "#SwarmConfig"

// ValidateWithCue validates a YAML configuration file using a CUE schema file.
func ValidateWithCue(configFile, cueFile string) error {
	yamlBytes, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	schemaBytes, err := os.ReadFile(cueFile)
	if err != nil {
		return fmt.Errorf("cannot read CUE schema: %w", err)
	}
	return ValidateBytes(configFile, yamlBytes, schemaBytes)
}

// ValidateBytes validates YAML data against CUE schema source.
func ValidateBytes(name string, yamlBytes, schemaBytes []byte) error {
	ctx := cuecontext.New()

	file, err := cueyaml.Extract(name, yamlBytes)
	if err != nil {
		return fmt.Errorf("cannot parse YAML config: %w", err)
	}
	configVal := ctx.BuildFile(file)
	if configVal.Err() != nil {
		return fmt.Errorf("cannot build YAML config: %w", configVal.Err())
	}

	schemaVal := ctx.CompileBytes(schemaBytes, cue.Filename("schema.cue"))
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}
	def := schemaVal.LookupPath(cue.ParsePath(SchemaDefinition))
	if !def.Exists() {
		return fmt.Errorf("CUE schema lacks %s", SchemaDefinition)
	}

	final := def.Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// Validate checks semantic constraints the schema cannot express.
func (c *SwarmConfig) Validate() error {
	var errs []error
	if len(c.Fleets) == 0 {
		errs = append(errs, errors.New("at least one fleet is required"))
	}
	names := map[string]bool{}
	total := 0
	for _, f := range c.Fleets {
		if f.Name == "" {
			errs = append(errs, errors.New("fleet name must not be empty"))
		}
		if names[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate fleet %q", f.Name))
		}
		names[f.Name] = true
		if f.Count < 1 {
			errs = append(errs, fmt.Errorf("fleet %q: count must be positive", f.Name))
		}
		total += f.Count
		b := f.Behavior
		for name, rate := range map[string]float64{
			"motor_stop_rate":      b.MotorStopRate,
			"transport_fault_rate": b.TransportFaultRate,
			"command_failure_rate": b.CommandFailureRate,
			"connect_failure_rate": b.ConnectFailureRate,
			"dropout_rate":         b.DropoutRate,
		} {
			if rate < 0 || rate > 1 {
				errs = append(errs, fmt.Errorf("fleet %q: %s must be within [0, 1]", f.Name, name))
			}
		}
	}
	if total > c.MaxUnits {
		errs = append(errs, fmt.Errorf("%d units configured, swarm holds at most %d", total, c.MaxUnits))
	}
	if c.Quorum <= 0 || c.Quorum > 1 {
		errs = append(errs, fmt.Errorf("quorum %g must be within (0, 1]", c.Quorum))
	}
	if c.Formation.Speed < 10 || c.Formation.Speed > 100 {
		errs = append(errs, fmt.Errorf("formation speed %g must be within [10, 100]", c.Formation.Speed))
	}
	return errors.Join(errs...)
}
