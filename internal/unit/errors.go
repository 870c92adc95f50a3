package unit

import (
	"errors"
	"fmt"

	"droneops-swarm/internal/link"
)

// Precondition and outcome sentinels. Transport faults wrap link.ErrTransport
// and persistent motor stops wrap recovery.ErrMotorStopPersistent.
var (
	ErrNotConnected   = errors.New("unit not connected")
	ErrNotFlying      = errors.New("unit not flying")
	ErrAlreadyFlying  = errors.New("unit already flying")
	ErrCooldown       = errors.New("unit in degraded cooldown")
	ErrCommandFailed  = errors.New("command failed")
	ErrInvalidCommand = errors.New("invalid command")
)

// FaultKind tags why a command did not succeed.
type FaultKind string

const (
	FaultPrecondition FaultKind = "precondition"
	FaultCooldown     FaultKind = "cooldown"
	FaultTransport    FaultKind = "transport"
	FaultMotorStop    FaultKind = "motor_stop"
	FaultFailed       FaultKind = "failed"
	FaultAborted      FaultKind = "aborted"
)

// CommandError is returned by every command a unit rejects or fails.
type CommandError struct {
	UnitID  string
	Command link.Command
	Kind    FaultKind
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("unit %s: %s: %s: %v", e.UnitID, e.Command, e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Fault extracts the fault kind from err, if it carries one.
func Fault(err error) (FaultKind, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
