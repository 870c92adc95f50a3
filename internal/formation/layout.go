package formation

import (
	"fmt"
	"math"
	"sort"

	"droneops-swarm/internal/geom"
)

// roundPlaces keeps generated targets free of float noise.
const roundPlaces = 6

// Plan dispatches to the generator for t.
func Plan(t Type, ids []string, center geom.Vec3, p Params) (Layout, error) {
	if len(ids) == 0 {
		return Layout{}, ErrNoUnits
	}
	if err := checkUnique(ids); err != nil {
		return Layout{}, err
	}
	if err := p.validate(); err != nil {
		return Layout{}, err
	}
	p = p.withDefaults()
	switch t {
	case Line:
		return lineLayout(ids, center, p), nil
	case Circle:
		return circleLayout(ids, center, p), nil
	case Diamond:
		return diamondLayout(ids, center, p)
	case V:
		return vLayout(ids, center, p)
	case Grid:
		return gridLayout(ids, center, p), nil
	case Custom:
		return customLayout(ids, center, p)
	}
	return Layout{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// LineLayout places ids at fixed spacing along the x axis rotated by
// p.Orientation, symmetric about center.
func LineLayout(ids []string, center geom.Vec3, p Params) (Layout, error) {
	return Plan(Line, ids, center, p)
}

// CircleLayout places ids evenly on a circle of p.Radius.
func CircleLayout(ids []string, center geom.Vec3, p Params) (Layout, error) {
	return Plan(Circle, ids, center, p)
}

// DiamondLayout places the first four ids at front, back, left and right.
func DiamondLayout(ids []string, center geom.Vec3, p Params) (Layout, error) {
	return Plan(Diamond, ids, center, p)
}

// VLayout places the leader at the apex with the rest trailing on two arms.
func VLayout(ids []string, center geom.Vec3, p Params) (Layout, error) {
	return Plan(V, ids, center, p)
}

// GridLayout places ids row-major in a rows x cols box.
func GridLayout(ids []string, center geom.Vec3, p Params) (Layout, error) {
	return Plan(Grid, ids, center, p)
}

// CustomLayout places every id at center plus its configured offset.
func CustomLayout(ids []string, center geom.Vec3, p Params) (Layout, error) {
	return Plan(Custom, ids, center, p)
}

func lineLayout(ids []string, center geom.Vec3, p Params) Layout {
	offsets := make([]geom.Vec3, len(ids))
	mid := float64(len(ids)-1) / 2
	for i := range ids {
		offsets[i] = geom.Vec3{X: (float64(i) - mid) * p.Spacing}
	}
	return place(ids, center, offsets, p.Orientation)
}

func circleLayout(ids []string, center geom.Vec3, p Params) Layout {
	offsets := make([]geom.Vec3, len(ids))
	if len(ids) > 1 {
		step := 360 / float64(len(ids))
		for i := range ids {
			s, c := math.Sincos(geom.Radians(float64(i) * step))
			offsets[i] = geom.Vec3{X: p.Radius * c, Y: p.Radius * s}
		}
	}
	return place(ids, center, offsets, p.Orientation)
}

func diamondLayout(ids []string, center geom.Vec3, p Params) (Layout, error) {
	if len(ids) < 4 {
		return Layout{}, fmt.Errorf("%w: diamond needs 4, got %d", ErrTooFewUnits, len(ids))
	}
	h := p.Size / 2
	offsets := make([]geom.Vec3, len(ids))
	offsets[0] = geom.Vec3{Y: h}  // front
	offsets[1] = geom.Vec3{Y: -h} // back
	offsets[2] = geom.Vec3{X: -h} // left
	offsets[3] = geom.Vec3{X: h}  // right
	l := place(ids, center, offsets, p.Orientation)
	if len(ids) > 4 {
		l.Warnings = append(l.Warnings,
			fmt.Sprintf("diamond holds 4 units, %d extra placed at center", len(ids)-4))
	}
	return l, nil
}

func vLayout(ids []string, center geom.Vec3, p Params) (Layout, error) {
	leader := leaderOf(ids, p)
	if !contains(ids, leader) {
		return Layout{}, fmt.Errorf("%w: %q", ErrLeaderMissing, leader)
	}
	ordered := make([]string, 0, len(ids))
	ordered = append(ordered, leader)
	for _, id := range ids {
		if id != leader {
			ordered = append(ordered, id)
		}
	}
	lateral, back := math.Sincos(geom.Radians(p.Angle / 2))
	offsets := make([]geom.Vec3, len(ordered))
	for i := 1; i < len(ordered); i++ {
		row := float64((i + 1) / 2)
		side := 1.0
		if i%2 == 1 {
			side = -1 // odd indices take the left arm
		}
		offsets[i] = geom.Vec3{
			X: side * p.Spacing * row * lateral,
			Y: -p.Spacing * row * back,
		}
	}
	return place(ordered, center, offsets, p.Orientation), nil
}

func gridLayout(ids []string, center geom.Vec3, p Params) Layout {
	n := len(ids)
	rows, cols := p.Rows, p.Cols
	switch {
	case rows == 0 && cols == 0:
		cols = int(math.Ceil(math.Sqrt(float64(n))))
		rows = (n + cols - 1) / cols
	case cols == 0:
		cols = (n + rows - 1) / rows
	case rows == 0:
		rows = (n + cols - 1) / cols
	}
	var warnings []string
	if n > rows*cols {
		warnings = append(warnings,
			fmt.Sprintf("grid %dx%d holds %d units, %d placed in overflow rows", rows, cols, rows*cols, n-rows*cols))
	}
	offsets := make([]geom.Vec3, n)
	midC := float64(cols-1) / 2
	midR := float64(rows-1) / 2
	for i := range ids {
		r, c := i/cols, i%cols
		offsets[i] = geom.Vec3{
			X: (float64(c) - midC) * p.Spacing,
			Y: (midR - float64(r)) * p.Spacing,
		}
	}
	l := place(ids, center, offsets, p.Orientation)
	l.Warnings = warnings
	return l
}

func customLayout(ids []string, center geom.Vec3, p Params) (Layout, error) {
	offsets := make([]geom.Vec3, len(ids))
	for i, id := range ids {
		off, ok := p.Offsets[id]
		if !ok {
			return Layout{}, fmt.Errorf("%w for %q", ErrMissingOffset, id)
		}
		offsets[i] = off
	}
	var warnings []string
	var extra []string
	for id := range p.Offsets {
		if !contains(ids, id) {
			extra = append(extra, id)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		warnings = append(warnings, fmt.Sprintf("offsets for units outside the formation ignored: %v", extra))
	}
	l := place(ids, center, offsets, p.Orientation)
	l.Warnings = warnings
	return l, nil
}

// place rotates offsets by orientation and anchors them at center.
func place(ids []string, center geom.Vec3, offsets []geom.Vec3, orientation float64) Layout {
	rot := geom.Rotator(orientation)
	targets := make(map[string]geom.Vec3, len(ids))
	for i, id := range ids {
		x, y := rot(offsets[i].X, offsets[i].Y)
		targets[id] = geom.Vec3{X: center.X + x, Y: center.Y + y, Z: center.Z + offsets[i].Z}.Round(roundPlaces)
	}
	return Layout{Targets: targets}
}

func leaderOf(ids []string, p Params) string {
	if p.Leader != "" {
		return p.Leader
	}
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func checkUnique(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateUnit, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
