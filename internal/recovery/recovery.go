package recovery

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"droneops-swarm/internal/link"
	"droneops-swarm/internal/logging"
)

// ErrMotorStopPersistent is returned once a command kept hitting motor stops
// past MaxRetries and the unit was put into degraded mode.
var ErrMotorStopPersistent = errors.New("motor_stop_persistent")

// Transition is raised when a unit enters or leaves degraded mode.
type Transition string

const (
	DegradedEntered Transition = "degraded_entered"
	DegradedExited  Transition = "degraded_exited"
)

// Target is the unit-side view recovery operates on.
type Target interface {
	ID() string
	ErrorState() State
	UpdateErrorState(func(*State))
	Notify(Transition)
}

// Reissuer sends cmd to the link again, including transport retries.
type Reissuer func(ctx context.Context, cmd link.Command) (link.Result, error)

// Outcome is the final result of a motor-stop recovery.
type Outcome struct {
	Command  link.Command // last command actually issued
	Result   link.Result
	Attempts int // reissues performed
	Err      error
}

// Recovery applies a Policy. It is safe for concurrent use across units.
type Recovery struct {
	policy Policy
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option customizes a Recovery.
type Option func(*Recovery)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recovery) { r.now = now }
}

// WithSleep overrides how backoff delays are waited out.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Recovery) { r.sleep = sleep }
}

// WithRand sets the jitter source.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Recovery) { r.rand = rnd }
}

// New creates a Recovery for p. Zero policy fields take their defaults.
func New(p Policy, opts ...Option) *Recovery {
	r := &Recovery{
		policy: p.withDefaults(),
		now:    time.Now,
		sleep:  Sleep,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Policy returns the effective policy.
func (r *Recovery) Policy() Policy { return r.policy }

// Backoff returns the jittered delay before retry number attempt.
func (r *Recovery) Backoff(attempt int) time.Duration {
	r.randMu.Lock()
	u := r.rand.Float64()*2 - 1
	r.randMu.Unlock()
	return r.policy.jittered(attempt, u)
}

// HandleMotorStop runs the backoff-and-reissue loop after cmd returned a
// motor stop on the given attempt. The unit's command lock must be held by
// the caller for the whole call.
func (r *Recovery) HandleMotorStop(ctx context.Context, t Target, cmd link.Command, reissue Reissuer, attempt int) Outcome {
	log := logging.FromContext(ctx)
	issued := cmd
	for {
		now := r.now()
		t.UpdateErrorState(func(s *State) {
			s.MotorStopCount++
			s.ConsecutiveFailures++
			s.TotalFailures++
			s.LastErrorTime = now
			s.Retrying = true
		})

		if attempt >= r.policy.MaxRetries {
			log.Error("motor stop persists, entering degraded mode", "unit_id", t.ID(), "attempt", attempt, "command", issued.String())
			r.EnterDegraded(ctx, t)
			return Outcome{Command: issued, Result: link.Result{Kind: link.ResultMotorStop}, Attempts: attempt, Err: ErrMotorStopPersistent}
		}

		delay := r.Backoff(attempt)
		log.Warn("motor stop, backing off", "unit_id", t.ID(), "attempt", attempt, "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			t.UpdateErrorState(func(s *State) { s.Retrying = false })
			return Outcome{Command: issued, Attempts: attempt, Err: err}
		}

		issued = cmd
		if t.ErrorState().Degraded {
			issued = Attenuate(cmd)
		}
		res, err := reissue(ctx, issued)
		if err != nil {
			t.UpdateErrorState(func(s *State) { s.Retrying = false })
			return Outcome{Command: issued, Attempts: attempt + 1, Err: err}
		}
		if res.Kind != link.ResultMotorStop {
			t.UpdateErrorState(func(s *State) { s.Retrying = false })
			log.Info("motor stop cleared", "unit_id", t.ID(), "attempts", attempt+1, "result", res.Kind.String())
			return Outcome{Command: issued, Result: res, Attempts: attempt + 1}
		}
		attempt++
	}
}

// EnterDegraded puts the target into degraded mode with a fresh cooldown.
func (r *Recovery) EnterDegraded(ctx context.Context, t Target) {
	until := r.now().Add(r.policy.Cooldown)
	factor := r.policy.DegradedDelayFactor
	t.UpdateErrorState(func(s *State) {
		s.Degraded = true
		s.Retrying = false
		s.CooldownUntil = until
		s.CommandDelay = time.Duration(float64(s.BaselineDelay) * factor)
	})
	logging.FromContext(ctx).Warn("unit degraded", "unit_id", t.ID(), "cooldown_until", until)
	t.Notify(DegradedEntered)
}

// ExitDegraded clears degraded mode and the error counters. It reports
// whether the target was degraded.
func (r *Recovery) ExitDegraded(ctx context.Context, t Target) bool {
	was := false
	t.UpdateErrorState(func(s *State) {
		was = s.Degraded
		s.Degraded = false
		s.Retrying = false
		s.MotorStopCount = 0
		s.ConsecutiveFailures = 0
		s.CooldownUntil = time.Time{}
		s.CommandDelay = s.BaselineDelay
	})
	if was {
		logging.FromContext(ctx).Info("unit left degraded mode", "unit_id", t.ID())
		t.Notify(DegradedExited)
	}
	return was
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
