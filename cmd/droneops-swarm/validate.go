package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"droneops-swarm/internal/config"
	"droneops-swarm/internal/scenario"
)

var validateCmd = &cobra.Command{
	Use:   "validate [scenario...]",
	Short: "Check the configuration and any scenario files",
	Long:  "validate checks the configuration against its CUE schema and semantic rules, then parses each scenario argument (built-in name or path).",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validate(cmd.OutOrStdout(), configPath, schemaPath, args)
	},
}

func validate(w io.Writer, cfgPath, cuePath string, scenarios []string) error {
	cfg, err := config.Load(cfgPath, cuePath)
	if err != nil {
		return fmt.Errorf("%s: %w", cfgPath, err)
	}
	fmt.Fprintf(w, "%s: ok, swarm %s with %d units in %d fleets\n", cfgPath, cfg.SwarmID, len(cfg.UnitIDs()), len(cfg.Fleets))

	var errs []error
	for _, name := range scenarios {
		sc, err := scenario.Resolve(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		fmt.Fprintf(w, "%s: ok, %d steps\n", name, len(sc.Steps))
	}
	return errors.Join(errs...)
}
