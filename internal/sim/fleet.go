package sim

import (
	"math/rand"

	"droneops-swarm/internal/config"
)

// NewFleet builds one Quad per configured unit, in config order. A non-zero
// seed makes every quadcopter's fault rolls reproducible.
func NewFleet(cfg *config.SwarmConfig, seed int64, opts ...Option) []*Quad {
	var quads []*Quad
	n := int64(0)
	for _, f := range cfg.Fleets {
		for i := 1; i <= f.Count; i++ {
			o := opts
			if seed != 0 {
				o = append([]Option{WithRand(rand.New(rand.NewSource(seed + n)))}, opts...)
			}
			quads = append(quads, NewQuad(config.UnitID(f.Name, i), f.Model, f.Behavior, o...))
			n++
		}
	}
	return quads
}
