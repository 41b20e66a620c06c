// Package visibility implements the automatic visibility calculator. It
// combines three independent signals (line of sight, illumination,
// distance/special senses), each clamped to the worst state it implies, and
// returns the overall worst: any one failing channel is enough to prevent
// full observation.
package visibility

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/geo"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/scene"
	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// Recognized sense kinds. Anything else is treated as ordinary sight.
const (
	SenseVision      = "vision"
	SenseDarkvision  = "darkvision"
	SenseLowLight    = "low-light-vision"
	SenseTremorsense = "tremorsense"
	SenseLifesense   = "lifesense"
	SenseHearing     = "hearing"
)

// footprintSamples is the number of sight rays cast across the target's
// width for the line-of-sight signal.
const footprintSamples = 3

// Calculator computes visibility states from an injected spatial oracle.
type Calculator struct {
	spatial scene.SpatialQuery
	log     zerolog.Logger
}

// New creates a visibility calculator backed by the given oracle.
func New(spatial scene.SpatialQuery, log zerolog.Logger) *Calculator {
	return &Calculator{spatial: spatial, log: log}
}

// Calculate returns the visibility state of target as seen by observer.
// Errors come only from the spatial oracle; callers apply the fallback
// chain (lighting-only, then conservative observed).
func (c *Calculator) Calculate(observer, target core.Entity) (core.VisibilityState, error) {
	los, err := c.lineOfSightSignal(observer, target)
	if err != nil {
		return core.VisibilityObserved, fmt.Errorf("line-of-sight signal: %w", err)
	}
	light, err := c.illuminationSignal(observer, target)
	if err != nil {
		return core.VisibilityObserved, fmt.Errorf("illumination signal: %w", err)
	}
	dist := c.distanceSignal(observer, target)

	result := core.WorstVisibility(los, light, dist)
	c.log.Debug().
		Str("pair", core.PairKey{Observer: observer.ID, Target: target.ID}.String()).
		Stringer("los", los).
		Stringer("light", light).
		Stringer("distance", dist).
		Stringer("result", result).
		Msg("visibility calculated")
	return result, nil
}

// CalculateLightingOnly is the secondary fallback: it skips the
// line-of-sight signal entirely and combines only illumination and
// distance. Used when the spatial oracle cannot answer wall queries.
func (c *Calculator) CalculateLightingOnly(observer, target core.Entity) (core.VisibilityState, error) {
	light, err := c.illuminationSignal(observer, target)
	if err != nil {
		return core.VisibilityObserved, fmt.Errorf("illumination signal: %w", err)
	}
	return core.WorstVisibility(light, c.distanceSignal(observer, target)), nil
}

// lineOfSightSignal returns Observed when any footprint sample is reachable,
// Undetected when every sight ray is blocked by opaque walls and no special
// sense bridges the gap. A bridging precise sense restores Observed; an
// imprecise one yields Hidden.
func (c *Calculator) lineOfSightSignal(observer, target core.Entity) (core.VisibilityState, error) {
	samples := geo.FootprintSamples(observer.Pos, target, footprintSamples)

	blockedAll := true
	for _, sample := range samples {
		walls, err := c.spatial.WallsAlong(observer.Pos, sample)
		if err != nil {
			return core.VisibilityObserved, err
		}
		if !anyOpaque(walls, observer.Pos, sample) {
			blockedAll = false
			break
		}
	}
	if !blockedAll {
		return core.VisibilityObserved, nil
	}

	// Fully occluded. A wall-independent sense in range can still detect.
	distance := geo.Distance(observer.Pos, target.Pos)
	bridged := core.VisibilityUndetected
	for _, s := range observer.Senses {
		if !bridgesWalls(s.Kind) {
			continue
		}
		if s.Range > 0 && distance > s.Range {
			continue
		}
		if s.Precise {
			return core.VisibilityObserved, nil
		}
		bridged = core.VisibilityHidden
	}
	return bridged, nil
}

// illuminationSignal maps the target's local light band plus concealing
// terrain to observed/concealed/hidden, adjusted for the observer's vision
// senses.
func (c *Calculator) illuminationSignal(observer, target core.Entity) (core.VisibilityState, error) {
	level, concealing, err := c.spatial.LightAt(target.Pos)
	if err != nil {
		return core.VisibilityObserved, err
	}

	level = adjustForSenses(level, observer.Senses)

	var state core.VisibilityState
	switch level {
	case core.LightBright:
		state = core.VisibilityObserved
	case core.LightDim:
		state = core.VisibilityConcealed
	default:
		state = core.VisibilityHidden
	}

	if concealing {
		state = core.WorstVisibility(state, core.VisibilityConcealed)
	}
	return state, nil
}

// distanceSignal degrades to Undetected when the observer relies solely on
// finite-range senses and the target is beyond all of them. Senses without a
// range cap, and observers with no listed senses (ordinary sight), are
// ignored for this signal.
func (c *Calculator) distanceSignal(observer, target core.Entity) core.VisibilityState {
	if len(observer.Senses) == 0 {
		return core.VisibilityObserved
	}

	distance := geo.Distance(observer.Pos, target.Pos)
	sawFinite := false
	for _, s := range observer.Senses {
		if s.Range <= 0 {
			// uncapped sense, signal does not apply
			return core.VisibilityObserved
		}
		sawFinite = true
		if distance <= s.Range {
			return core.VisibilityObserved
		}
	}
	if sawFinite {
		return core.VisibilityUndetected
	}
	return core.VisibilityObserved
}

// adjustForSenses upgrades the effective light band for darkvision and
// low-light vision.
func adjustForSenses(level core.LightLevel, senses []core.Sense) core.LightLevel {
	for _, s := range senses {
		switch s.Kind {
		case SenseDarkvision:
			return core.LightBright
		case SenseLowLight:
			if level == core.LightDim {
				level = core.LightBright
			}
		}
		if s.IgnoresL {
			return core.LightBright
		}
	}
	return level
}

// bridgesWalls reports whether a sense kind works through opaque walls.
func bridgesWalls(kind string) bool {
	switch kind {
	case SenseTremorsense, SenseLifesense, SenseHearing:
		return true
	default:
		return false
	}
}

// anyOpaque reports whether any wall in the slice actually blocks the sight
// ray a→b.
func anyOpaque(walls []core.Wall, a, b core.Position3D) bool {
	for _, w := range walls {
		if geo.WallBlocks(w, a, b) {
			return true
		}
	}
	return false
}
