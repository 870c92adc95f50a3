package formation

import (
	"fmt"
	"math"

	"droneops-swarm/internal/geom"
)

// Translate shifts every target and the center by d.
func Translate(targets map[string]geom.Vec3, center, d geom.Vec3) (map[string]geom.Vec3, geom.Vec3) {
	out := make(map[string]geom.Vec3, len(targets))
	for id, t := range targets {
		out[id] = t.Add(d).Round(roundPlaces)
	}
	return out, center.Add(d)
}

// Rotate turns every target about center in the XY plane by deg degrees,
// counter-clockwise. The center is unchanged.
func Rotate(targets map[string]geom.Vec3, center geom.Vec3, deg float64) (map[string]geom.Vec3, geom.Vec3) {
	out := make(map[string]geom.Vec3, len(targets))
	for id, t := range targets {
		out[id] = t.RotateXY(center, deg).Round(roundPlaces)
	}
	return out, center
}

// Scale moves every target radially about center by factor. A warning is
// returned when the smallest spacing ends up below threshold.
func Scale(targets map[string]geom.Vec3, center geom.Vec3, factor, threshold float64) (map[string]geom.Vec3, geom.Vec3, []string, error) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, center, nil, fmt.Errorf("%w: scale factor %g", ErrInvalidParams, factor)
	}
	out := make(map[string]geom.Vec3, len(targets))
	for id, t := range targets {
		out[id] = center.Add(t.Sub(center).Scale(factor)).Round(roundPlaces)
	}
	var warnings []string
	if threshold > 0 {
		if least := MinSpacing(out); least < threshold {
			warnings = append(warnings,
				fmt.Sprintf("scaled spacing %.1f cm is below the collision threshold %.1f cm", least, threshold))
		}
	}
	return out, center, warnings, nil
}

// MinSpacing returns the smallest pairwise distance, +Inf for fewer than two
// targets.
func MinSpacing(targets map[string]geom.Vec3) float64 {
	ids := sortedKeys(targets)
	least := math.Inf(1)
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if d := targets[ids[i]].Dist(targets[ids[j]]); d < least {
				least = d
			}
		}
	}
	return least
}
