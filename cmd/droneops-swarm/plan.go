package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"droneops-swarm/internal/config"
	"droneops-swarm/internal/formation"
	"droneops-swarm/internal/geom"
)

type planOptions struct {
	Type   string
	Units  int
	Params formation.Params
	Rotate float64
	Scale  float64
}

var planOpts planOptions

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview formation targets and collision risks without flying",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, schemaPath)
		if err != nil {
			return err
		}
		f, err := buildPlan(cfg, planOpts)
		if err != nil {
			return err
		}
		renderPlan(cmd.OutOrStdout(), f, cfg.Formation.CollisionThreshold)
		return nil
	},
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planOpts.Type, "type", "diamond", "Formation type: line, circle, diamond, v or grid")
	f.IntVar(&planOpts.Units, "units", 0, "Plan for the first N configured units (0 = all)")
	f.Float64Var(&planOpts.Params.Spacing, "spacing", 0, "Spacing between units in cm (line, v, grid)")
	f.Float64Var(&planOpts.Params.Radius, "radius", 0, "Circle radius in cm")
	f.Float64Var(&planOpts.Params.Size, "size", 0, "Diamond size in cm")
	f.Float64Var(&planOpts.Params.Angle, "angle", 0, "V half-angle in degrees")
	f.IntVar(&planOpts.Params.Rows, "rows", 0, "Grid rows")
	f.IntVar(&planOpts.Params.Cols, "cols", 0, "Grid columns")
	f.Float64Var(&planOpts.Rotate, "rotate", 0, "Rotate the planned formation by degrees")
	f.Float64Var(&planOpts.Scale, "scale", 0, "Scale the planned formation radially")
}

func buildPlan(cfg *config.SwarmConfig, opts planOptions) (*formation.Formation, error) {
	t, err := formation.ParseType(opts.Type)
	if err != nil {
		return nil, err
	}
	ids := cfg.UnitIDs()
	if opts.Units > 0 && opts.Units < len(ids) {
		ids = ids[:opts.Units]
	}
	f, err := formation.New(t, ids, geom.Vec3{Z: cfg.Formation.Altitude}, opts.Params)
	if err != nil {
		return nil, err
	}
	if opts.Rotate != 0 {
		f = f.Rotated(opts.Rotate)
	}
	if opts.Scale != 0 {
		if f, err = f.Scaled(opts.Scale, cfg.Formation.CollisionThreshold); err != nil {
			return nil, err
		}
	}
	return f, nil
}

var (
	planTitle = lipgloss.NewStyle().Bold(true)
	planWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	planRisk  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	planOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func renderPlan(w io.Writer, f *formation.Formation, threshold float64) {
	fmt.Fprintln(w, planTitle.Render(fmt.Sprintf("%s formation, %d units, center (%.0f, %.0f, %.0f)",
		f.Type, len(f.UnitIDs), f.Center.X, f.Center.Y, f.Center.Z)))

	rows := make([][]string, 0, len(f.UnitIDs))
	for _, id := range f.SortedIDs() {
		p := f.Targets[id]
		rows = append(rows, []string{id,
			fmt.Sprintf("%.1f", p.X), fmt.Sprintf("%.1f", p.Y), fmt.Sprintf("%.1f", p.Z),
			fmt.Sprintf("%.1f", p.Dist(f.Center))})
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("unit", "x (cm)", "y (cm)", "z (cm)", "from center").
		Rows(rows...)
	fmt.Fprintln(w, tbl.String())

	for _, warn := range f.Warnings {
		fmt.Fprintln(w, planWarn.Render("warning: "+warn))
	}
	risks := formation.CollisionRisk(f.Targets, threshold)
	if len(risks) == 0 {
		fmt.Fprintln(w, planOK.Render(fmt.Sprintf("no pairs closer than %.0f cm", threshold)))
		return
	}
	for _, r := range risks {
		fmt.Fprintln(w, planRisk.Render(fmt.Sprintf("collision risk: %s and %s %.1f cm apart", r.A, r.B, r.Distance)))
	}
}
