package swarm

import "errors"

var (
	ErrSwarmFull          = errors.New("swarm is at capacity")
	ErrDuplicateUnit      = errors.New("unit already in swarm")
	ErrUnknownUnit        = errors.New("unknown unit")
	ErrNoUnitsConnected   = errors.New("no unit connected")
	ErrQuorumNotMet       = errors.New("quorum not met")
	ErrConvergenceTimeout = errors.New("formation did not converge in time")
	ErrNoFormation        = errors.New("no formation defined")
	ErrShutdown           = errors.New("swarm is shut down")
	ErrTimeout            = errors.New("unit did not answer in time")
)
