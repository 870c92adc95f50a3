package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"droneops-swarm/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
	Run() (tea.Model, error)
}

// Dashboard is a bubbletea program that also acts as a sink.Writer: swarm
// events land in its log pane, health rows trigger a table refresh.
type Dashboard struct {
	program teaProgram
	done    chan struct{}
}

// Option customizes a Dashboard.
type Option func(*options)

type options struct {
	refresh time.Duration
	teaOpts []tea.ProgramOption
}

// WithRefresh sets the status polling interval.
func WithRefresh(d time.Duration) Option {
	return func(o *options) { o.refresh = d }
}

// WithProgramOptions passes options through to bubbletea.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(o *options) { o.teaOpts = append(o.teaOpts, opts...) }
}

// New builds the dashboard over src. The program stops when ctx is done.
func New(ctx context.Context, src Source, opts ...Option) *Dashboard {
	o := options{teaOpts: []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}}
	for _, fn := range opts {
		fn(&o)
	}
	p := tea.NewProgram(newModel(ctx, src, o.refresh), o.teaOpts...)
	return &Dashboard{program: p, done: make(chan struct{})}
}

// Run blocks until the operator quits or the context ends.
func (d *Dashboard) Run() error {
	defer close(d.done)
	_, err := d.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Done is closed when Run returns.
func (d *Dashboard) Done() <-chan struct{} { return d.done }

// WriteSwarmEvent implements sink.EventWriter.
func (d *Dashboard) WriteSwarmEvent(row telemetry.SwarmEventRow) error {
	d.send(eventMsg{row: row})
	return nil
}

// WriteHealth implements sink.HealthWriter.
func (d *Dashboard) WriteHealth(telemetry.UnitHealthRow) error {
	d.send(refreshMsg{})
	return nil
}

// WriteHealthBatch refreshes once per snapshot instead of once per unit.
func (d *Dashboard) WriteHealthBatch([]telemetry.UnitHealthRow) error {
	d.send(refreshMsg{})
	return nil
}

// send is a no-op once the program has exited.
func (d *Dashboard) send(msg tea.Msg) {
	d.program.Send(msg)
}

// Close asks the program to quit and waits for Run to return. Run must have
// been started.
func (d *Dashboard) Close() error {
	d.send(tea.Quit())
	<-d.done
	return nil
}
