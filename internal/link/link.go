// Link abstraction between a swarm unit and one quadcopter
package link

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Limits accepted by the quadcopter command set.
const (
	MinDistance = 20.0  // cm
	MaxDistance = 500.0 // cm
	MinSpeed    = 10.0  // cm/s
	MaxSpeed    = 100.0 // cm/s
)

// ErrTransport marks a communication fault (timeout, garbled reply, socket
// error). Transport faults say nothing about the hardware state.
var ErrTransport = errors.New("link: transport fault")

// ResultKind distinguishes the three outcomes a command can have.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultFailed
	ResultMotorStop
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultFailed:
		return "failed"
	case ResultMotorStop:
		return "motor_stop"
	}
	return "unknown"
}

// Result is the decoded reply of a command.
type Result struct {
	Kind   ResultKind
	Detail string
}

// OK reports whether the command succeeded.
func (r Result) OK() bool { return r.Kind == ResultOK }

// ParseReply maps a raw textual reply to a Result. Replies containing
// "motor stop" are hardware faults, "ok" is success and anything else is an
// ordinary failure.
func ParseReply(reply string) Result {
	s := strings.ToLower(strings.TrimSpace(reply))
	switch {
	case strings.Contains(s, "motor stop"):
		return Result{Kind: ResultMotorStop, Detail: reply}
	case s == "ok":
		return Result{Kind: ResultOK}
	default:
		return Result{Kind: ResultFailed, Detail: reply}
	}
}

// EventType enumerates asynchronous notifications raised by a link.
type EventType string

const (
	EventBatteryLow     EventType = "battery_low"
	EventEmergency      EventType = "emergency"
	EventConnectionLost EventType = "connection_lost"
)

// Event is an asynchronous notification from the quadcopter.
type Event struct {
	Type    EventType
	Battery int
	Detail  string
	Time    time.Time
}

// Link is a connection to one quadcopter. Returned errors are transport
// faults; the Result carries the quadcopter's own verdict.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Takeoff(ctx context.Context) (Result, error)
	Land(ctx context.Context) (Result, error)
	Emergency(ctx context.Context) error
	Move(ctx context.Context, x, y, z, speed float64) (Result, error)
	MoveAxis(ctx context.Context, dir Direction, distance float64) (Result, error)
	Rotate(ctx context.Context, angle float64) (Result, error)
	Battery(ctx context.Context) (int, error)
	Events() <-chan Event
}
