package recovery

import "time"

// Mode is the coarse error state of a unit.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeRetrying Mode = "retrying"
	ModeDegraded Mode = "degraded"
)

// State is the per-unit error bookkeeping.
type State struct {
	MotorStopCount      int           `json:"motor_stop_count"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalFailures       int           `json:"total_failures"`
	TransportFaults     int           `json:"transport_faults"`
	LastErrorTime       time.Time     `json:"last_error_time"`
	Retrying            bool          `json:"retrying"`
	Degraded            bool          `json:"degraded"`
	CooldownUntil       time.Time     `json:"cooldown_until"`
	BaselineDelay       time.Duration `json:"baseline_delay"`
	CommandDelay        time.Duration `json:"command_delay"`
}

// NewState returns a normal state with the given inter-command delay.
func NewState(baseline time.Duration) State {
	return State{BaselineDelay: baseline, CommandDelay: baseline}
}

// Mode reports the state machine position.
func (s State) Mode() Mode {
	switch {
	case s.Degraded:
		return ModeDegraded
	case s.Retrying:
		return ModeRetrying
	}
	return ModeNormal
}

// InCooldown reports whether commands must be refused at now.
func (s State) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// RecordFailure notes an ordinary (non motor-stop) command failure.
func (s *State) RecordFailure(now time.Time) {
	s.ConsecutiveFailures++
	s.TotalFailures++
	s.LastErrorTime = now
}

// RecordTransportFault notes a command that failed after transport retries.
func (s *State) RecordTransportFault(now time.Time) {
	s.TransportFaults++
	s.RecordFailure(now)
}

// RecordSuccess clears the consecutive failure streak. Degraded mode is
// deliberately left untouched; only ExitDegraded clears it.
func (s *State) RecordSuccess() {
	s.ConsecutiveFailures = 0
	s.Retrying = false
}
