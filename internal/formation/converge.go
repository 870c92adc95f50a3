package formation

import (
	"sort"

	"droneops-swarm/internal/geom"
)

// Move is one bounded step of a unit towards its target.
type Move struct {
	UnitID    string
	Delta     geom.Vec3
	Remaining float64 // distance to target before this step
}

// StepResult is the plan for one convergence cycle.
type StepResult struct {
	Moves      []Move
	InPosition []string
	Missing    []string // targets without a current position
}

// Converged reports whether every unit with a known position is in place.
func (r StepResult) Converged() bool { return len(r.Moves) == 0 }

// Step computes one convergence cycle from a snapshot of current positions.
// Units within tolerance of their target are in position; every other unit
// gets a delta whose length is clamped to maxStep.
func Step(current, targets map[string]geom.Vec3, maxStep, tolerance float64) StepResult {
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	var res StepResult
	for _, id := range sortedKeys(targets) {
		pos, ok := current[id]
		if !ok {
			res.Missing = append(res.Missing, id)
			continue
		}
		delta := targets[id].Sub(pos)
		dist := delta.Norm()
		if dist <= tolerance {
			res.InPosition = append(res.InPosition, id)
			continue
		}
		if dist > maxStep {
			delta = delta.Scale(maxStep / dist)
		}
		res.Moves = append(res.Moves, Move{UnitID: id, Delta: delta.Round(1), Remaining: dist})
	}
	return res
}

// Risk is a pair of units closer than the collision threshold.
type Risk struct {
	A        string  `json:"a"`
	B        string  `json:"b"`
	Distance float64 `json:"distance"`
}

// CollisionRisk lists every unordered pair closer than threshold, closest
// first. A is always lexically smaller than B.
func CollisionRisk(positions map[string]geom.Vec3, threshold float64) []Risk {
	ids := sortedKeys(positions)
	var risks []Risk
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			d := positions[ids[i]].Dist(positions[ids[j]])
			if d < threshold {
				risks = append(risks, Risk{A: ids[i], B: ids[j], Distance: d})
			}
		}
	}
	sort.SliceStable(risks, func(i, j int) bool { return risks[i].Distance < risks[j].Distance })
	return risks
}
