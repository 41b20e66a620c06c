// Package cover implements the geometric cover detector. Wall cover is
// measured as the fraction of the target's footprint width shadowed by
// sight-blocking segments; entity cover uses a simpler size/overlap
// heuristic and only applies when no wall contributes.
package cover

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/rs/zerolog"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/config"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/geo"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/scene"
	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// ErrCoverageEstimation wraps geometry failures inside coverage math. The
// detector recovers from it internally; it never crosses the Detect
// boundary.
var ErrCoverageEstimation = errors.New("coverage estimation failed")

// minSamples keeps footprint sampling meaningful even when configured lower.
const minSamples = 3

// UndetectedFunc reports whether blocker is currently undetected relative to
// observer. Injected by the integration layer so entity exclusions can use
// live visibility without a package cycle.
type UndetectedFunc func(observerID, blockerID string) bool

// Detector computes discrete cover states from scene geometry.
type Detector struct {
	spatial    scene.SpatialQuery
	inventory  scene.Inventory
	opts       config.CoverOptions
	undetected UndetectedFunc
	log        zerolog.Logger
}

// New creates a cover detector.
func New(spatial scene.SpatialQuery, inventory scene.Inventory, opts config.CoverOptions, log zerolog.Logger) *Detector {
	if opts.SampleCount < minSamples {
		opts.SampleCount = minSamples
	}
	return &Detector{
		spatial:   spatial,
		inventory: inventory,
		opts:      opts,
		log:       log,
	}
}

// SetUndetectedFunc installs the relative-visibility exclusion callback.
func (d *Detector) SetUndetectedFunc(f UndetectedFunc) {
	d.undetected = f
}

// Detect returns the cover state target has against observer. Errors come
// only from the spatial oracle or the scene inventory; all internal
// geometry failures are recovered to a conservative non-none result when an
// occluder is clearly present.
func (d *Detector) Detect(observer, target core.Entity) (core.CoverState, error) {
	samples := geo.FootprintSamples(observer.Pos, target, d.opts.SampleCount)

	walls, err := d.candidateWalls(observer.Pos, samples)
	if err != nil {
		return core.CoverNone, fmt.Errorf("querying occluders: %w", err)
	}

	wallState, wallsContribute, estErr := d.wallCover(observer, target, walls)
	if estErr != nil {
		// Estimation failure with a wall geometrically present must not
		// degrade to none.
		if d.anyWallCrossesCenter(walls, observer.Pos, target.Pos) {
			d.log.Warn().Err(estErr).
				Str("pair", core.PairKey{Observer: observer.ID, Target: target.ID}.String()).
				Msg("coverage estimation failed with wall present, forcing standard")
			return core.CoverStandard, nil
		}
		wallState, wallsContribute = core.CoverNone, false
	}

	// Walls win whenever any wall contributes non-zero coverage.
	if wallsContribute {
		return wallState, nil
	}

	entityState, err := d.entityCover(observer, target)
	if err != nil {
		return core.CoverNone, fmt.Errorf("querying blocking entities: %w", err)
	}
	return entityState, nil
}

// DetectWallCollisionOnly is the secondary fallback: standard cover when any
// opaque wall crosses the center sight line, none otherwise. No coverage
// math, no entity occluders.
func (d *Detector) DetectWallCollisionOnly(observer, target core.Entity) (core.CoverState, error) {
	walls, err := d.spatial.WallsAlong(observer.Pos, target.Pos)
	if err != nil {
		return core.CoverNone, fmt.Errorf("querying occluders: %w", err)
	}
	for _, w := range walls {
		if contributesCover(w, observer.Pos, target.Pos) {
			return core.CoverStandard, nil
		}
	}
	return core.CoverNone, nil
}

// candidateWalls unions the oracle's answers across all footprint sample
// rays, deduplicated by wall ID.
func (d *Detector) candidateWalls(observer core.Position3D, samples []core.Position3D) ([]core.Wall, error) {
	seen := make(map[string]bool)
	var out []core.Wall
	for _, s := range samples {
		walls, err := d.spatial.WallsAlong(observer, s)
		if err != nil {
			return nil, err
		}
		for _, w := range walls {
			if seen[w.ID] {
				continue
			}
			seen[w.ID] = true
			out = append(out, w)
		}
	}
	return out, nil
}

// wallCover estimates the total shadowed fraction of the target footprint
// and maps it through the configured thresholds. Returns whether any wall
// contributed non-zero coverage.
func (d *Detector) wallCover(observer, target core.Entity, walls []core.Wall) (core.CoverState, bool, error) {
	var intervals []geo.Interval
	forced := core.CoverNone

	o := geo.XYFromPosition(observer.Pos)
	p0, p1 := footprintSegment(observer.Pos, target)

	for _, w := range walls {
		if !contributesCover(w, observer.Pos, target.Pos) {
			continue
		}
		iv, ok, err := shadowInterval(o, p0, p1, w)
		if err != nil {
			return core.CoverNone, false, fmt.Errorf("%w: wall %s: %v", ErrCoverageEstimation, w.ID, err)
		}
		if !ok {
			continue
		}
		intervals = append(intervals, iv)
		if w.CoverOverride != nil && *w.CoverOverride > forced {
			forced = *w.CoverOverride
		}
	}

	if len(intervals) == 0 {
		return core.CoverNone, false, nil
	}

	if d.opts.Mode == config.ModeAny {
		// any contributing wall is enough for standard
		return core.BestCover(core.CoverStandard, d.capGreater(forced)), true, nil
	}

	// Every other mode scores walls by the shadow-interval union below.
	// ModeSideCoverage and ModeVolumetricSampling are aliases of the
	// percentage-threshold estimate on a 2D grid; mode only changes how
	// entity occluders are sampled in classifyBlocker.

	// Disjoint shadows sum; overlapping shadows merge so angular overlap is
	// not double-counted. The union is naturally capped at the footprint.
	merged := geo.MergeIntervals(intervals)
	coverage := math.Min(geo.TotalLength(merged), 1.0)

	state := core.CoverNone
	switch {
	case coverage >= d.opts.GreaterThreshold:
		state = core.CoverGreater
	case coverage >= d.opts.StandardThreshold:
		state = core.CoverStandard
	}
	state = d.capGreater(state)

	state = core.BestCover(state, d.capGreater(forced))
	return state, state != core.CoverNone, nil
}

// capGreater applies the allow-greater-cover configuration cap.
func (d *Detector) capGreater(state core.CoverState) core.CoverState {
	if state == core.CoverGreater && !d.opts.AllowGreater {
		return core.CoverStandard
	}
	return state
}

// anyWallCrossesCenter is the cheap geometric presence check used by the
// estimation-failure path.
func (d *Detector) anyWallCrossesCenter(walls []core.Wall, a, b core.Position3D) bool {
	p1 := geo.XYFromPosition(a)
	p2 := geo.XYFromPosition(b)
	for _, w := range walls {
		if !contributesCover(w, a, b) {
			continue
		}
		q1 := geo.XYFromPosition(w.Start)
		q2 := geo.XYFromPosition(w.End)
		if _, hit := geo.SegmentIntersection(p1, p2, q1, q2); hit {
			return true
		}
	}
	return false
}

// entityCover applies the three-tier size/overlap heuristic to blocking
// entities after policy exclusions. Only reached when no wall contributes.
func (d *Detector) entityCover(observer, target core.Entity) (core.CoverState, error) {
	entities, err := d.inventory.Entities()
	if err != nil {
		return core.CoverNone, err
	}

	best := core.CoverNone
	for _, blocker := range entities {
		if blocker.ID == observer.ID || blocker.ID == target.ID {
			continue
		}
		if d.excluded(observer, blocker) {
			continue
		}
		state := d.classifyBlocker(observer, target, blocker)
		best = core.BestCover(best, state)
	}
	return best, nil
}

// excluded applies the configured policy exclusions to a candidate blocker.
func (d *Detector) excluded(observer, blocker core.Entity) bool {
	if d.opts.IgnoreDead && blocker.Dead {
		return true
	}
	if d.opts.IgnoreAllies && blocker.Alliance != "" && blocker.Alliance == observer.Alliance {
		return true
	}
	if d.opts.RespectIgnoreFlag && blocker.NeverBlocks {
		return true
	}
	if blocker.Prone && !d.opts.ProneCanBlock {
		return true
	}
	if d.opts.IgnoreUndetected && d.undetected != nil && d.undetected(observer.ID, blocker.ID) {
		return true
	}
	return false
}

// classifyBlocker measures how much of the sight region one entity
// obstructs, per the configured intersection mode, and maps the result to
// none/lesser/standard. Entity occluders never grant greater cover.
func (d *Detector) classifyBlocker(observer, target, blocker core.Entity) core.CoverState {
	minX, minY, maxX, maxY := geo.EntityBox(blocker)
	o := geo.XYFromPosition(observer.Pos)

	var overlap float64
	switch d.opts.Mode {
	case config.ModeCenterPoint:
		// single ray through the target center
		if geo.SegmentIntersectsAABB(o, geo.XYFromPosition(target.Pos), minX, minY, maxX, maxY) {
			overlap = 1
		}
	case config.ModeTactical:
		// corner sampling: rays to the four corners of the target footprint
		tMinX, tMinY, tMaxX, tMaxY := geo.EntityBox(target)
		corners := []geom.XY{
			{X: tMinX, Y: tMinY},
			{X: tMinX, Y: tMaxY},
			{X: tMaxX, Y: tMinY},
			{X: tMaxX, Y: tMaxY},
		}
		blocked := 0
		for _, c := range corners {
			if geo.SegmentIntersectsAABB(o, c, minX, minY, maxX, maxY) {
				blocked++
			}
		}
		overlap = float64(blocked) / float64(len(corners))
	default:
		// Fraction of footprint sample rays obstructed. ModeSideCoverage and
		// ModeVolumetricSampling alias this sampled estimate: on a flat grid
		// both reduce to the same ray fan as percentage-threshold.
		samples := geo.FootprintSamples(observer.Pos, target, d.opts.SampleCount)
		blocked := 0
		for _, s := range samples {
			if geo.SegmentIntersectsAABB(o, geo.XYFromPosition(s), minX, minY, maxX, maxY) {
				blocked++
			}
		}
		overlap = float64(blocked) / float64(len(samples))
	}

	switch {
	case overlap < 0.5:
		return core.CoverNone
	case blocker.Size >= 2*target.Size && overlap >= 0.9:
		return core.CoverStandard
	default:
		return core.CoverLesser
	}
}

// contributesCover reports whether a wall participates in cover for the
// sight ray a→b. Same opacity rules as the visibility calculator.
func contributesCover(w core.Wall, a, b core.Position3D) bool {
	return geo.WallBlocks(w, a, b)
}

// footprintSegment returns the endpoints of the target's footprint axis,
// perpendicular to the sight line, on which wall shadows are measured.
func footprintSegment(observer core.Position3D, target core.Entity) (geom.XY, geom.XY) {
	c := geo.XYFromPosition(target.Pos)
	dir := c.Sub(geo.XYFromPosition(observer))
	length := math.Hypot(dir.X, dir.Y)
	if length == 0 || target.Size <= 0 {
		return c, c
	}
	perp := geom.XY{X: -dir.Y / length, Y: dir.X / length}
	half := target.Size / 2
	return c.Sub(perp.Scale(half)), c.Add(perp.Scale(half))
}

// shadowInterval projects the wall through the observer onto the footprint
// axis p0→p1 and returns the blocked sub-interval in [0,1]. ok is false when
// the wall casts no shadow on the footprint.
func shadowInterval(o, p0, p1 geom.XY, w core.Wall) (geo.Interval, bool, error) {
	f := p1.Sub(p0)
	if math.Hypot(f.X, f.Y) < 1e-12 {
		// point target: blocked entirely or not at all
		q1 := geo.XYFromPosition(w.Start)
		q2 := geo.XYFromPosition(w.End)
		if _, hit := geo.SegmentIntersection(o, p0, q1, q2); hit {
			return geo.Interval{Lo: 0, Hi: 1}, true, nil
		}
		return geo.Interval{}, false, nil
	}

	t1, err := projectThrough(o, p0, f, geo.XYFromPosition(w.Start))
	if err != nil {
		return geo.Interval{}, false, err
	}
	t2, err := projectThrough(o, p0, f, geo.XYFromPosition(w.End))
	if err != nil {
		return geo.Interval{}, false, err
	}

	lo := math.Max(math.Min(t1, t2), 0)
	hi := math.Min(math.Max(t1, t2), 1)
	if hi-lo < 1e-12 {
		return geo.Interval{}, false, nil
	}
	return geo.Interval{Lo: lo, Hi: hi}, true, nil
}

// projectThrough casts a ray from the observer through a wall endpoint and
// returns the parameter where it crosses the footprint axis p0 + t*f.
func projectThrough(o, p0, f, q geom.XY) (float64, error) {
	d := q.Sub(o)
	if math.Hypot(d.X, d.Y) < 1e-12 {
		return 0, geo.ErrDegenerateSegment
	}
	denom := d.Cross(f)
	if math.Abs(denom) < 1e-12 {
		// ray parallel to the footprint axis: shadow boundary falls beyond
		// whichever end the ray points toward
		if d.Dot(f) > 0 {
			return math.Inf(1), nil
		}
		return math.Inf(-1), nil
	}
	w := p0.Sub(o)
	s := w.Cross(f) / denom
	if s <= 1e-12 {
		// wall endpoint behind the observer
		return 0, fmt.Errorf("occluder endpoint behind observer")
	}
	t := w.Cross(d) / denom
	return t, nil
}
