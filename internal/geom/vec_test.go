package geom

import (
	"math"
	"testing"
)

func TestRotateXYQuarterTurn(t *testing.T) {
	p := Vec3{X: 100, Y: 0, Z: 50}
	got := p.RotateXY(Vec3{}, 90).Round(6)
	want := Vec3{X: 0, Y: 100, Z: 50}
	if got != want {
		t.Fatalf("RotateXY = %+v, want %+v", got, want)
	}
}

func TestRotateXYAboutPivot(t *testing.T) {
	pivot := Vec3{X: 10, Y: 10}
	p := Vec3{X: 20, Y: 10}
	got := p.RotateXY(pivot, 180).Round(6)
	if got.X != 0 || got.Y != 10 {
		t.Fatalf("RotateXY about pivot = %+v", got)
	}
}

func TestDistAndNorm(t *testing.T) {
	a := Vec3{X: 3, Y: 4}
	if a.Norm() != 5 {
		t.Fatalf("Norm = %f, want 5", a.Norm())
	}
	if d := a.Dist(Vec3{X: 3, Y: 4, Z: 12}); d != 12 {
		t.Fatalf("Dist = %f, want 12", d)
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid([]Vec3{{X: 0, Y: 0}, {X: 10, Y: 20, Z: 30}})
	if c != (Vec3{X: 5, Y: 10, Z: 15}) {
		t.Fatalf("Centroid = %+v", c)
	}
	if Centroid(nil) != (Vec3{}) {
		t.Fatalf("Centroid(nil) should be zero")
	}
}

func TestRoundNormalizesNegativeZero(t *testing.T) {
	v := Vec3{X: -1e-12}.Round(6)
	if math.Signbit(v.X) {
		t.Fatalf("expected +0, got %v", v.X)
	}
}
