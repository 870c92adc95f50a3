package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"droneops-swarm/internal/admin"
	"droneops-swarm/internal/config"
	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/scenario"
	"droneops-swarm/internal/sim"
	"droneops-swarm/internal/swarm"
	"droneops-swarm/internal/tui"
)

const (
	tuiLogFile      = "droneops-swarm.log"
	shutdownTimeout = 30 * time.Second
)

type runOptions struct {
	Scenario  string
	Seed      int64
	PrintOnly bool
	TUI       string
	Admin     string
	Hold      bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fly the configured swarm",
	Long: "run connects the configured (simulated) fleet, optionally plays a choreography, " +
		"and keeps coordinating until interrupted. An interrupt stops every unit in flight.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, schemaPath)
		if err != nil {
			return err
		}
		useTUI, err := runOpts.tuiEnabled()
		if err != nil {
			return err
		}
		if useTUI && logFile == "" {
			// The dashboard owns the terminal.
			if err := setupLogging(cmd, logging.Options{Level: logLevel, File: tuiLogFile, JSON: logJSON}); err != nil {
				return err
			}
		}
		return runSwarm(cmd.Context(), cfg, runOpts, useTUI, cmd.OutOrStdout())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.Scenario, "scenario", "", "Built-in choreography name or path to a scenario YAML")
	f.Int64Var(&runOpts.Seed, "seed", 0, "Seed for simulated faults (0 = random)")
	f.BoolVar(&runOpts.PrintOnly, "print-only", false, "Print events and health to STDOUT instead of the configured sinks")
	f.StringVar(&runOpts.TUI, "tui", "auto", "Operator dashboard: auto, on or off")
	f.StringVar(&runOpts.Admin, "admin", "", "Admin listen address, overrides the config (\"off\" disables)")
	f.BoolVar(&runOpts.Hold, "hold", false, "Keep coordinating after the scenario until interrupted")
}

func (o runOptions) tuiEnabled() (bool, error) {
	switch o.TUI {
	case "", "auto":
		return !o.PrintOnly && term.IsTerminal(int(os.Stdout.Fd())), nil
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("--tui must be auto, on or off, got %q", o.TUI)
}

func runSwarm(ctx context.Context, cfg *config.SwarmConfig, opts runOptions, useTUI bool, out io.Writer) error {
	log := logging.FromContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sc *scenario.Scenario
	if opts.Scenario != "" {
		var err error
		if sc, err = scenario.Resolve(opts.Scenario); err != nil {
			return err
		}
	}

	mw, cleanup, err := newWriters(cfg.Sink, opts.PrintOnly && !useTUI, log)
	if err != nil {
		return err
	}
	defer cleanup()

	s := swarm.New(swarm.FromConfig(cfg), swarm.WithSink(mw))
	defer installSignalHook(ctx, s, cancel)()

	fleet := sim.NewFleet(cfg, opts.Seed)
	for _, q := range fleet {
		if _, err := s.AddUnit(ctx, q.ID(), q); err != nil {
			return err
		}
	}

	var dash *tui.Dashboard
	if useTUI {
		dash = tui.New(ctx, s)
		mw.Add(dash)
		go func() {
			if err := dash.Run(); err != nil {
				log.Error("dashboard failed", "err", err)
			}
			cancel()
		}()
	}

	if addr := adminAddr(opts.Admin, cfg.Admin.Addr); addr != "" {
		srv := admin.NewServer(s, chaosToggle(fleet))
		go func() {
			if err := srv.Start(ctx, addr); err != nil {
				log.Error("admin server failed", "addr", addr, "err", err)
			}
		}()
	}

	go s.Run(ctx)

	var runErr error
	if _, err := s.InitializeSwarm(ctx, cfg.Timeouts.Connect); err != nil {
		runErr = err
	} else {
		if sc != nil {
			results, err := scenario.NewRunner(s).Run(ctx, sc)
			if !useTUI {
				printResults(out, sc, results)
			}
			if err != nil && ctx.Err() == nil {
				runErr = err
			}
		}
		if (sc == nil || opts.Hold) && ctx.Err() == nil {
			log.Info("coordinating, interrupt to land and exit")
			<-ctx.Done()
		}
	}

	sctx, scancel := context.WithTimeout(logging.NewContext(context.Background(), log), shutdownTimeout)
	defer scancel()
	if err := s.Shutdown(sctx); err != nil {
		log.Error("shutdown failed", "err", err)
	}
	if dash != nil {
		_ = dash.Close()
	}
	return runErr
}

// installSignalHook stops every unit in flight on SIGINT or SIGTERM and
// cancels the run. The returned func detaches the hook.
func installSignalHook(ctx context.Context, s *swarm.Swarm, cancel context.CancelFunc) func() {
	log := logging.FromContext(ctx)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			log.Warn("signal received", "signal", sig.String(), "flying", s.Flying())
			if s.Flying() {
				ectx, ecancel := context.WithTimeout(logging.NewContext(context.Background(), log), s.Config().EmergencyTimeout+time.Second)
				s.EmergencyStopAll(ectx)
				ecancel()
			}
			cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func adminAddr(flag, configured string) string {
	addr := configured
	if flag != "" {
		addr = flag
	}
	if addr == "off" {
		return ""
	}
	return addr
}

// chaosToggle flips fault injection on every simulated unit together.
func chaosToggle(fleet []*sim.Quad) func() bool {
	return func() bool {
		on := false
		for _, q := range fleet {
			on = q.ToggleChaos()
		}
		return on
	}
}

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func printResults(w io.Writer, sc *scenario.Scenario, results []scenario.StepResult) {
	fmt.Fprintf(w, "scenario %s: %d/%d steps run\n", sc.Name, len(results), len(sc.Steps))
	for i, r := range results {
		mark := passStyle.Render("ok  ")
		if r.Err != nil {
			mark = failStyle.Render("FAIL")
		}
		line := fmt.Sprintf("%2d %s %-16s %-10s %8s", i+1, mark, r.Step, r.Action, r.Duration.Round(time.Millisecond))
		if r.Report != nil && r.Report.Attempted > 0 {
			line += fmt.Sprintf("  %d/%d units", r.Report.Succeeded, r.Report.Attempted)
		}
		if r.Err != nil {
			line += "  " + r.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
}
