// Package transition brackets a multi-step action with combined-state
// snapshots and computes the structured delta per observer: what changed, by
// how much, and whether the net effect favors the acting entity.
package transition

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/geo"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/scene"
	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// StateReader is the integration-layer read path the tracker snapshots
// through.
type StateReader interface {
	GetCombinedState(observerID, targetID string) core.CombinedState
}

// Tracker captures paired snapshots and classifies transitions.
type Tracker struct {
	reader    StateReader
	inventory scene.Inventory
	spatial   scene.SpatialQuery
	log       zerolog.Logger
	nowFunc   func() time.Time // test seam
}

// New creates a tracker over the integration layer and scene providers.
func New(reader StateReader, inventory scene.Inventory, spatial scene.SpatialQuery, log zerolog.Logger) *Tracker {
	return &Tracker{
		reader:    reader,
		inventory: inventory,
		spatial:   spatial,
		log:       log,
		nowFunc:   time.Now,
	}
}

// CaptureStartPositions snapshots the actor as seen by every observer at the
// start of an action. Every requested observer gets an entry; failures are
// recorded in the snapshot instead of aborting the capture.
func (t *Tracker) CaptureStartPositions(actorID string, observerIDs []string) map[string]core.PositionSnapshot {
	return t.capture(actorID, observerIDs)
}

// CalculateEndPositions snapshots the same observers after the action.
func (t *Tracker) CalculateEndPositions(actorID string, observerIDs []string) map[string]core.PositionSnapshot {
	return t.capture(actorID, observerIDs)
}

func (t *Tracker) capture(actorID string, observerIDs []string) map[string]core.PositionSnapshot {
	out := make(map[string]core.PositionSnapshot, len(observerIDs))
	for _, obsID := range observerIDs {
		out[obsID] = t.snapshot(obsID, actorID)
	}
	return out
}

// snapshot records one observer→actor combined state plus the informational
// distance and lighting channels. A failed integration read still yields a
// snapshot, flagged uncalculated.
func (t *Tracker) snapshot(observerID, actorID string) core.PositionSnapshot {
	snap := core.PositionSnapshot{
		Combined:             t.reader.GetCombinedState(observerID, actorID),
		VisibilityCalculated: true,
		CoverCalculated:      true,
		CapturedAt:           t.nowFunc(),
	}

	if !snap.Combined.SystemsAvailable {
		snap.VisibilityCalculated = false
		snap.CoverCalculated = false
		snap.SystemErrors = append(snap.SystemErrors, snap.Combined.Warnings...)
	}

	observer, okObs := t.inventory.Entity(observerID)
	actor, okAct := t.inventory.Entity(actorID)
	if okObs && okAct {
		snap.Distance = geo.Distance(observer.Pos, actor.Pos)

		level, _, err := t.spatial.LightAt(actor.Pos)
		if err != nil {
			snap.SystemErrors = append(snap.SystemErrors, fmt.Sprintf("lighting lookup: %v", err))
		} else {
			snap.Lighting = level
		}
	} else {
		snap.SystemErrors = append(snap.SystemErrors, "entity missing from inventory")
	}

	return snap
}

// AnalyzeTransitions pairs start and end snapshots per observer and
// classifies each delta. Observers missing an end snapshot are treated as
// unchanged. Mixed improvements and regressions net out on a priority score
// with visibility weighted double; distance and lighting changes are
// informational only.
func (t *Tracker) AnalyzeTransitions(start, end map[string]core.PositionSnapshot) map[string]core.PositionTransition {
	out := make(map[string]core.PositionTransition, len(start))
	for obsID, s := range start {
		e, ok := end[obsID]
		if !ok {
			e = s
		}
		out[obsID] = classify(s, e)
	}
	return out
}

func classify(start, end core.PositionSnapshot) core.PositionTransition {
	// Deltas in the acting entity's favor: harder to detect and more cover
	// are both positive.
	visDelta := int(end.Combined.Visibility) - int(start.Combined.Visibility)
	coverDelta := int(end.Combined.Cover) - int(start.Combined.Cover)

	var kind core.TransitionType
	switch {
	case (visDelta > 0 || coverDelta > 0) && visDelta >= 0 && coverDelta >= 0:
		kind = core.TransitionImproved
	case (visDelta < 0 || coverDelta < 0) && visDelta <= 0 && coverDelta <= 0:
		kind = core.TransitionWorsened
	default:
		score := 2*visDelta + coverDelta
		switch {
		case score > 0:
			kind = core.TransitionImproved
		case score < 0:
			kind = core.TransitionWorsened
		default:
			kind = core.TransitionUnchanged
		}
	}

	bonusChange := end.Combined.StealthBonus - start.Combined.StealthBonus

	// Signed summary of how much harder the observer's pending check got:
	// detection difficulty steps plus the cover bonus swing.
	impact := (end.Combined.Visibility.DC() - start.Combined.Visibility.DC()) + bonusChange

	return core.PositionTransition{
		Start:              start,
		End:                end,
		Type:               kind,
		StealthBonusChange: bonusChange,
		ImpactOnDC:         impact,
	}
}
