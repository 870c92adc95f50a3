package scenario

import (
	"context"
	"fmt"
	"time"

	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/recovery"
	"droneops-swarm/internal/swarm"
)

// StepResult records how one step ended.
type StepResult struct {
	Step     string        `json:"step"`
	Action   Action        `json:"action"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Report   *swarm.Report `json:"report,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Runner plays scenarios against a Controller.
type Runner struct {
	c     Controller
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithSleep replaces the wait-step sleep.
func WithSleep(fn func(context.Context, time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = fn }
}

// WithClock replaces the clock used for step durations.
func WithClock(fn func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = fn }
}

func NewRunner(c Controller, opts ...RunnerOption) *Runner {
	r := &Runner{c: c, sleep: recovery.Sleep, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes the steps in order. It stops at the first failing step unless
// that step sets continue_on_error, and returns the results so far together
// with the stopping error.
func (r *Runner) Run(ctx context.Context, sc *Scenario) ([]StepResult, error) {
	log := logging.FromContext(ctx).With("scenario", sc.Name)
	log.Info("scenario started", "steps", len(sc.Steps))
	results := make([]StepResult, 0, len(sc.Steps))
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		start := r.now()
		rep, err := r.step(ctx, st)
		res := StepResult{Step: st.label(), Action: st.Action, Err: err, Report: rep, Duration: r.now().Sub(start)}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)

		slog := log.With("step", i+1, "name", st.label())
		if err == nil {
			slog.Info("step done", "took", res.Duration)
			continue
		}
		if st.ContinueOnError {
			slog.Warn("step failed, continuing", "err", err)
			continue
		}
		slog.Error("step failed, scenario aborted", "err", err)
		return results, fmt.Errorf("step %d (%s): %w", i+1, st.label(), err)
	}
	log.Info("scenario finished")
	return results, nil
}

func (r *Runner) step(ctx context.Context, st Step) (*swarm.Report, error) {
	opts := swarm.StaggerOptions{Stagger: st.Stagger, Synchronized: st.Synchronized}
	switch st.Action {
	case ActionTakeoff:
		rep, err := r.c.TakeoffAll(ctx, opts)
		return &rep, err
	case ActionLand:
		rep := r.c.LandAll(ctx, opts)
		return &rep, nil
	case ActionEmergency:
		rep := r.c.EmergencyStopAll(ctx)
		return &rep, nil
	case ActionFormation:
		_, err := r.c.CreateFormation(ctx, *st.Formation)
		return nil, err
	case ActionTransform:
		var err error
		switch {
		case st.Translate != nil:
			_, err = r.c.TranslateFormation(ctx, *st.Translate)
		case st.Rotate != 0:
			_, err = r.c.RotateFormation(ctx, st.Rotate)
		default:
			_, err = r.c.ScaleFormation(ctx, st.Scale)
		}
		return nil, err
	case ActionConverge:
		return nil, r.c.MoveToFormation(ctx, st.Speed, st.Timeout)
	case ActionMove:
		rep, err := r.c.MoveSwarmFormation(ctx, st.Offsets, st.Speed)
		return &rep, err
	case ActionCommand:
		cmd, err := st.Command.Command()
		if err != nil {
			return nil, err
		}
		rep, err := r.c.Execute(ctx, cmd)
		return &rep, err
	case ActionWait:
		return nil, r.sleep(ctx, st.Duration)
	}
	return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidStep, st.Action)
}
