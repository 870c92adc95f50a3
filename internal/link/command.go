package link

import (
	"context"
	"fmt"
	"strings"
)

// Direction is the axis and sense of a single-axis move.
type Direction string

const (
	Up      Direction = "up"
	Down    Direction = "down"
	Left    Direction = "left"
	Right   Direction = "right"
	Forward Direction = "forward"
	Back    Direction = "back"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right, Forward, Back:
		return true
	}
	return false
}

// CommandKind is the closed set of commands a unit can be asked to run.
type CommandKind int

const (
	CmdTakeoff CommandKind = iota + 1
	CmdLand
	CmdMove
	CmdMoveAxis
	CmdRotate
)

var kindNames = map[CommandKind]string{
	CmdTakeoff:  "takeoff",
	CmdLand:     "land",
	CmdMove:     "move",
	CmdMoveAxis: "move_axis",
	CmdRotate:   "rotate",
}

func (k CommandKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// ParseCommandKind resolves a command name as used in scenario files.
func ParseCommandKind(s string) (CommandKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

// Command is one instruction for a unit. Only the fields relevant to Kind
// are read.
type Command struct {
	Kind      CommandKind `json:"kind"`
	X         float64     `json:"x,omitempty"`
	Y         float64     `json:"y,omitempty"`
	Z         float64     `json:"z,omitempty"`
	Speed     float64     `json:"speed,omitempty"`
	Direction Direction   `json:"direction,omitempty"`
	Distance  float64     `json:"distance,omitempty"`
	Angle     float64     `json:"angle,omitempty"`
}

// Takeoff builds a takeoff command.
func Takeoff() Command { return Command{Kind: CmdTakeoff} }

// Land builds a land command.
func Land() Command { return Command{Kind: CmdLand} }

// Move builds a positional move by (x, y, z) centimeters at speed cm/s.
func Move(x, y, z, speed float64) Command {
	return Command{Kind: CmdMove, X: x, Y: y, Z: z, Speed: speed}
}

// MoveAxis builds a single-axis move.
func MoveAxis(dir Direction, distance float64) Command {
	return Command{Kind: CmdMoveAxis, Direction: dir, Distance: distance}
}

// Rotate builds a yaw rotation; positive is clockwise.
func Rotate(angle float64) Command {
	return Command{Kind: CmdRotate, Angle: angle}
}

func (c Command) String() string {
	switch c.Kind {
	case CmdMove:
		return fmt.Sprintf("move(%.0f,%.0f,%.0f@%.0f)", c.X, c.Y, c.Z, c.Speed)
	case CmdMoveAxis:
		return fmt.Sprintf("move_axis(%s %.0f)", c.Direction, c.Distance)
	case CmdRotate:
		return fmt.Sprintf("rotate(%.0f)", c.Angle)
	}
	return c.Kind.String()
}

// Apply issues cmd on l through the matching Link method.
func Apply(ctx context.Context, l Link, cmd Command) (Result, error) {
	switch cmd.Kind {
	case CmdTakeoff:
		return l.Takeoff(ctx)
	case CmdLand:
		return l.Land(ctx)
	case CmdMove:
		return l.Move(ctx, cmd.X, cmd.Y, cmd.Z, cmd.Speed)
	case CmdMoveAxis:
		return l.MoveAxis(ctx, cmd.Direction, cmd.Distance)
	case CmdRotate:
		return l.Rotate(ctx, cmd.Angle)
	}
	return Result{}, fmt.Errorf("unsupported command %s", cmd.Kind)
}
