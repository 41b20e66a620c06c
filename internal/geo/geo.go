package geo

import (
	"errors"
	"math"
	"sort"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// GEOMETRY PRIMITIVES
// All map-space math lives here. Walls and sight lines are represented with
// simplefeatures types so they can be exported as WKT/WKB for debugging, but
// the hot-path intersection math works directly on geom.XY to avoid
// allocating geometries per query.

// ErrDegenerateSegment is returned when a wall or sight line has zero length.
var ErrDegenerateSegment = errors.New("degenerate segment")

const epsilon = 1e-9

// XYFromPosition projects a map position onto the XY plane.
func XYFromPosition(p core.Position3D) geom.XY {
	return geom.XY{X: p.X, Y: p.Y}
}

// PointFromPosition builds a simplefeatures point carrying elevation as Z.
func PointFromPosition(p core.Position3D) (geom.Point, error) {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.X, Y: p.Y},
			Z:    p.Z,
			Type: geom.DimXYZ,
		},
	)
}

// WallLine builds a simplefeatures line string for a wall segment.
func WallLine(w core.Wall) (geom.LineString, error) {
	if math.Abs(w.Start.X-w.End.X) < epsilon && math.Abs(w.Start.Y-w.End.Y) < epsilon {
		return geom.LineString{}, ErrDegenerateSegment
	}
	seq := geom.NewSequence([]float64{
		w.Start.X, w.Start.Y, w.Start.Z,
		w.End.X, w.End.Y, w.End.Z,
	}, geom.DimXYZ)
	return geom.NewLineString(seq)
}

// SightLine builds a simplefeatures line string from observer to target.
func SightLine(a, b core.Position3D) (geom.LineString, error) {
	seq := geom.NewSequence([]float64{
		a.X, a.Y, a.Z,
		b.X, b.Y, b.Z,
	}, geom.DimXYZ)
	return geom.NewLineString(seq)
}

// Distance returns the 3D distance between two positions.
func Distance(a, b core.Position3D) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dz := b.Z - a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Distance2D returns the planar distance between two XY points.
func Distance2D(a, b geom.XY) float64 {
	d := b.Sub(a)
	return math.Hypot(d.X, d.Y)
}

// SegmentIntersection intersects segment p1→p2 with segment q1→q2.
// On hit it returns t, the parameter along p1→p2 in [0,1] where the
// crossing occurs.
func SegmentIntersection(p1, p2, q1, q2 geom.XY) (t float64, hit bool) {
	r := p2.Sub(p1)
	s := q2.Sub(q1)
	denom := r.Cross(s)
	if math.Abs(denom) < epsilon {
		// Parallel or collinear. Collinear overlap is treated as no
		// crossing: a wall lying exactly along the sight line contributes
		// no angular coverage.
		return 0, false
	}
	qp := q1.Sub(p1)
	t = qp.Cross(s) / denom
	u := qp.Cross(r) / denom
	if t < -epsilon || t > 1+epsilon || u < -epsilon || u > 1+epsilon {
		return 0, false
	}
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return t, true
}

// SideOf reports which side of the directed line a→b the point p lies on.
// Positive is left, negative is right, near-zero is collinear.
func SideOf(a, b, p geom.XY) float64 {
	return b.Sub(a).Cross(p.Sub(a))
}

// SegmentIntersectsAABB reports whether the segment a→b touches the
// axis-aligned box. Slab test per axis.
func SegmentIntersectsAABB(a, b geom.XY, minX, minY, maxX, maxY float64) bool {
	dx := b.X - a.X
	dy := b.Y - a.Y

	tMin := 0.0
	tMax := 1.0

	if math.Abs(dx) < epsilon {
		if a.X < minX || a.X > maxX {
			return false
		}
	} else {
		inv := 1.0 / dx
		t1 := (minX - a.X) * inv
		t2 := (maxX - a.X) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return false
		}
	}

	if math.Abs(dy) < epsilon {
		if a.Y < minY || a.Y > maxY {
			return false
		}
	} else {
		inv := 1.0 / dy
		t1 := (minY - a.Y) * inv
		t2 := (maxY - a.Y) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return false
		}
	}

	return tMax >= 0 && tMin <= 1
}

// PointInAABB reports whether p lies inside the box (inclusive).
func PointInAABB(p geom.XY, minX, minY, maxX, maxY float64) bool {
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

// EntityBox returns the axis-aligned footprint of an entity.
func EntityBox(e core.Entity) (minX, minY, maxX, maxY float64) {
	half := e.Size / 2
	return e.Pos.X - half, e.Pos.Y - half, e.Pos.X + half, e.Pos.Y + half
}

// FootprintSamples spreads n sample points across the target's footprint,
// perpendicular to the sight direction from the observer. The returned
// slice always includes the footprint edges and interior points; n < 2 or a
// zero-size footprint yields just the center.
func FootprintSamples(observer core.Position3D, target core.Entity, n int) []core.Position3D {
	center := target.Pos
	if n < 2 || target.Size <= 0 {
		return []core.Position3D{center}
	}

	dir := XYFromPosition(center).Sub(XYFromPosition(observer))
	length := math.Hypot(dir.X, dir.Y)
	if length < epsilon {
		return []core.Position3D{center}
	}
	// unit perpendicular to the sight direction
	perp := geom.XY{X: -dir.Y / length, Y: dir.X / length}

	half := target.Size / 2
	samples := make([]core.Position3D, 0, n)
	for i := 0; i < n; i++ {
		// spread from -half to +half inclusive
		frac := float64(i)/float64(n-1)*2 - 1
		off := perp.Scale(frac * half)
		samples = append(samples, core.Position3D{
			X: center.X + off.X,
			Y: center.Y + off.Y,
			Z: center.Z,
		})
	}
	return samples
}

// Interval is a closed range on a normalized axis, used for angular
// coverage bookkeeping.
type Interval struct {
	Lo, Hi float64
}

// MergeIntervals unions overlapping intervals so that coverage from walls
// overlapping in angle is not double-counted. Input is not modified.
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Lo <= last.Hi+epsilon {
			if iv.Hi > last.Hi {
				last.Hi = iv.Hi
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// TotalLength sums interval lengths. Merge first when overlap matters.
func TotalLength(in []Interval) float64 {
	var sum float64
	for _, iv := range in {
		if iv.Hi > iv.Lo {
			sum += iv.Hi - iv.Lo
		}
	}
	return sum
}

// WallBlocks reports whether a wall blocks the sight ray a→b: it must block
// sight, not be an open door, block in the crossing direction, and span the
// ray's elevation band. Both the visibility calculator and the cover
// detector use this so sight and cover never disagree about a door.
func WallBlocks(w core.Wall, a, b core.Position3D) bool {
	if !w.BlocksSight {
		return false
	}
	if w.Door && w.DoorOpen {
		return false
	}
	if !ElevationBandBlocks(w, a.Z, b.Z) {
		return false
	}
	switch w.Direction {
	case core.DirLeft:
		return SideOf(XYFromPosition(w.Start), XYFromPosition(w.End), XYFromPosition(a)) > 0
	case core.DirRight:
		return SideOf(XYFromPosition(w.Start), XYFromPosition(w.End), XYFromPosition(a)) < 0
	default:
		return true
	}
}

// ElevationBandBlocks reports whether a wall's height band intersects the
// elevation span of a sight line. A wall with a zero band spans all
// elevations.
func ElevationBandBlocks(w core.Wall, observerZ, targetZ float64) bool {
	if w.HeightLow == 0 && w.HeightHigh == 0 {
		return true
	}
	lo := math.Min(observerZ, targetZ)
	hi := math.Max(observerZ, targetZ)
	return w.HeightHigh >= lo && w.HeightLow <= hi
}
