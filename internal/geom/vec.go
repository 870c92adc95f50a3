// Vector helpers for swarm-origin coordinates
package geom

import "math"

// Vec3 is a position or offset in centimeters relative to the swarm origin.
// X grows to the right, Y grows forward and Z grows up.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Norm returns the euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Dist returns the distance between v and o.
func (v Vec3) Dist(o Vec3) float64 {
	return v.Sub(o).Norm()
}

// RotateXY rotates v about pivot in the XY plane by deg degrees
// (counter-clockwise). Z is preserved.
func (v Vec3) RotateXY(pivot Vec3, deg float64) Vec3 {
	rot := Rotator(deg)
	x, y := rot(v.X-pivot.X, v.Y-pivot.Y)
	return Vec3{X: pivot.X + x, Y: pivot.Y + y, Z: v.Z}
}

// Rotator returns a function that rotates 2D points by deg degrees.
func Rotator(deg float64) func(x, y float64) (float64, float64) {
	s, c := math.Sincos(Radians(deg))
	return func(x, y float64) (float64, float64) {
		return c*x - s*y, s*x + c*y
	}
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Centroid returns the mean of pts, or the zero vector when pts is empty.
func Centroid(pts []Vec3) Vec3 {
	if len(pts) == 0 {
		return Vec3{}
	}
	var sum Vec3
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(pts)))
}

// Round returns v with every component rounded to the given number of
// decimal places. Used to keep generated targets free of float noise.
func (v Vec3) Round(places int) Vec3 {
	p := math.Pow(10, float64(places))
	r := func(f float64) float64 {
		out := math.Round(f*p) / p
		if out == 0 {
			return 0 // normalize -0
		}
		return out
	}
	return Vec3{X: r(v.X), Y: r(v.Y), Z: r(v.Z)}
}
