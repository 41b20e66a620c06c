package geo

import (
	"errors"
	"math"
	"testing"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

func TestSegmentIntersection_Crossing(t *testing.T) {
	t1, hit := SegmentIntersection(
		geom.XY{X: 0, Y: 0}, geom.XY{X: 10, Y: 0},
		geom.XY{X: 5, Y: -5}, geom.XY{X: 5, Y: 5},
	)
	if !hit {
		t.Fatal("expected intersection")
	}
	if math.Abs(t1-0.5) > 1e-9 {
		t.Errorf("expected t=0.5, got %f", t1)
	}
}

func TestSegmentIntersection_Miss(t *testing.T) {
	_, hit := SegmentIntersection(
		geom.XY{X: 0, Y: 0}, geom.XY{X: 10, Y: 0},
		geom.XY{X: 5, Y: 1}, geom.XY{X: 5, Y: 5},
	)
	if hit {
		t.Error("expected no intersection")
	}
}

func TestSegmentIntersection_Parallel(t *testing.T) {
	_, hit := SegmentIntersection(
		geom.XY{X: 0, Y: 0}, geom.XY{X: 10, Y: 0},
		geom.XY{X: 0, Y: 1}, geom.XY{X: 10, Y: 1},
	)
	if hit {
		t.Error("parallel segments must not intersect")
	}
}

func TestSegmentIntersection_Endpoint(t *testing.T) {
	t1, hit := SegmentIntersection(
		geom.XY{X: 0, Y: 0}, geom.XY{X: 10, Y: 0},
		geom.XY{X: 10, Y: -5}, geom.XY{X: 10, Y: 5},
	)
	if !hit {
		t.Fatal("expected intersection at endpoint")
	}
	if math.Abs(t1-1.0) > 1e-9 {
		t.Errorf("expected t=1.0, got %f", t1)
	}
}

func TestWallLine_BuildsLineString(t *testing.T) {
	w := core.Wall{
		ID:    "w1",
		Start: core.Position3D{X: 5, Y: -5, Z: 0},
		End:   core.Position3D{X: 5, Y: 5, Z: 3},
	}
	ls, err := WallLine(w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ls.Coordinates().Length(); got != 2 {
		t.Errorf("expected 2 coordinates, got %d", got)
	}
}

func TestSightLine_BuildsLineString(t *testing.T) {
	ls, err := SightLine(
		core.Position3D{X: 0, Y: 0, Z: 0},
		core.Position3D{X: 10, Y: 0, Z: 2},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ls.Coordinates().Length(); got != 2 {
		t.Errorf("expected 2 coordinates, got %d", got)
	}
}

func TestPointFromPosition_CarriesElevation(t *testing.T) {
	p, err := PointFromPosition(core.Position3D{X: 1, Y: 2, Z: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, ok := p.Coordinates()
	if !ok {
		t.Fatal("expected non-empty point")
	}
	if c.X != 1 || c.Y != 2 || c.Z != 3 {
		t.Errorf("expected (1,2,3), got (%f,%f,%f)", c.X, c.Y, c.Z)
	}
}

func TestWallLine_Degenerate(t *testing.T) {
	w := core.Wall{
		Start: core.Position3D{X: 3, Y: 3},
		End:   core.Position3D{X: 3, Y: 3},
	}
	_, err := WallLine(w)
	if !errors.Is(err, ErrDegenerateSegment) {
		t.Errorf("expected ErrDegenerateSegment, got %v", err)
	}
}

func TestDistance(t *testing.T) {
	a := core.Position3D{X: 0, Y: 0, Z: 0}
	b := core.Position3D{X: 3, Y: 4, Z: 0}
	if d := Distance(a, b); d != 5 {
		t.Errorf("expected 5, got %f", d)
	}
	c := core.Position3D{X: 3, Y: 4, Z: 12}
	if d := Distance(a, c); d != 13 {
		t.Errorf("expected 13, got %f", d)
	}
}

func TestFootprintSamples_SpreadPerpendicular(t *testing.T) {
	observer := core.Position3D{X: 0, Y: 0}
	target := core.Entity{
		ID:   "t",
		Pos:  core.Position3D{X: 10, Y: 0},
		Size: 4,
	}

	samples := FootprintSamples(observer, target, 5)
	if len(samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(samples))
	}
	// sight direction is +X, so samples spread along Y from -2 to +2
	if math.Abs(samples[0].Y+2) > 1e-9 {
		t.Errorf("expected first sample at Y=-2, got %f", samples[0].Y)
	}
	if math.Abs(samples[4].Y-2) > 1e-9 {
		t.Errorf("expected last sample at Y=+2, got %f", samples[4].Y)
	}
	if math.Abs(samples[2].Y) > 1e-9 {
		t.Errorf("expected middle sample at center, got Y=%f", samples[2].Y)
	}
	for _, s := range samples {
		if s.X != 10 {
			t.Errorf("samples should stay on the footprint axis, got X=%f", s.X)
		}
	}
}

func TestFootprintSamples_ZeroSize(t *testing.T) {
	observer := core.Position3D{X: 0, Y: 0}
	target := core.Entity{ID: "t", Pos: core.Position3D{X: 5, Y: 5}}

	samples := FootprintSamples(observer, target, 5)
	if len(samples) != 1 {
		t.Fatalf("expected center only, got %d samples", len(samples))
	}
	if samples[0] != target.Pos {
		t.Errorf("expected center %v, got %v", target.Pos, samples[0])
	}
}

func TestMergeIntervals(t *testing.T) {
	merged := MergeIntervals([]Interval{
		{Lo: 0.0, Hi: 0.4},
		{Lo: 0.3, Hi: 0.6},
		{Lo: 0.8, Hi: 0.9},
	})
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged intervals, got %d", len(merged))
	}
	if total := TotalLength(merged); math.Abs(total-0.7) > 1e-9 {
		t.Errorf("expected total 0.7, got %f", total)
	}
}

func TestMergeIntervals_DisjointSum(t *testing.T) {
	// Two disjoint 40% blocks sum to 80%, not max 40%.
	merged := MergeIntervals([]Interval{
		{Lo: 0.0, Hi: 0.4},
		{Lo: 0.5, Hi: 0.9},
	})
	if len(merged) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(merged))
	}
	if total := TotalLength(merged); math.Abs(total-0.8) > 1e-9 {
		t.Errorf("expected total 0.8, got %f", total)
	}
}

func TestSegmentIntersectsAABB(t *testing.T) {
	if !SegmentIntersectsAABB(geom.XY{X: 0, Y: 0}, geom.XY{X: 10, Y: 10}, 4, 4, 6, 6) {
		t.Error("diagonal through box should hit")
	}
	if SegmentIntersectsAABB(geom.XY{X: 0, Y: 0}, geom.XY{X: 10, Y: 0}, 4, 4, 6, 6) {
		t.Error("segment below box should miss")
	}
}

func TestElevationBandBlocks(t *testing.T) {
	wall := core.Wall{HeightLow: 0, HeightHigh: 10}
	if !ElevationBandBlocks(wall, 2, 5) {
		t.Error("band 0-10 should block sight line at elevation 2-5")
	}
	low := core.Wall{HeightLow: 1, HeightHigh: 3}
	if ElevationBandBlocks(low, 20, 25) {
		t.Error("low wall should not block an elevated sight line")
	}
	unbounded := core.Wall{}
	if !ElevationBandBlocks(unbounded, -50, 100) {
		t.Error("zero band spans all elevations")
	}
}

func TestSideOf(t *testing.T) {
	a := geom.XY{X: 0, Y: 0}
	b := geom.XY{X: 10, Y: 0}
	if SideOf(a, b, geom.XY{X: 5, Y: 5}) <= 0 {
		t.Error("point above should be left (positive)")
	}
	if SideOf(a, b, geom.XY{X: 5, Y: -5}) >= 0 {
		t.Error("point below should be right (negative)")
	}
}
