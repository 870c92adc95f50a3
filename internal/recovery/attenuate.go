package recovery

import (
	"math"

	"droneops-swarm/internal/link"
)

const (
	degradedMoveScale  = 0.5
	degradedSpeedScale = 0.7
	degradedMaxSpeed   = 30.0
	degradedAxisScale  = 0.6
)

// Attenuate returns cmd with the parameters used while a unit is degraded:
// positional moves are halved and slowed, single-axis moves are shortened,
// rotations pass through. Distances never drop below link.MinDistance.
func Attenuate(cmd link.Command) link.Command {
	out := cmd
	switch cmd.Kind {
	case link.CmdMove:
		out.X = cmd.X * degradedMoveScale
		out.Y = cmd.Y * degradedMoveScale
		out.Z = cmd.Z * degradedMoveScale
		if m := largestComponent(out); m > 0 && m < link.MinDistance {
			f := link.MinDistance / m
			out.X, out.Y, out.Z = out.X*f, out.Y*f, out.Z*f
		}
		out.Speed = math.Min(cmd.Speed*degradedSpeedScale, degradedMaxSpeed)
		if out.Speed < link.MinSpeed {
			out.Speed = link.MinSpeed
		}
	case link.CmdMoveAxis:
		out.Distance = math.Max(cmd.Distance*degradedAxisScale, link.MinDistance)
	}
	return out
}

func largestComponent(c link.Command) float64 {
	return math.Max(math.Abs(c.X), math.Max(math.Abs(c.Y), math.Abs(c.Z)))
}
