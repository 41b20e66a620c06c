package transition

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/scene"
	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// scriptedReader returns a fixed combined state per pair.
type scriptedReader struct {
	states map[core.PairKey]core.CombinedState
}

func (r *scriptedReader) GetCombinedState(observerID, targetID string) core.CombinedState {
	pair := core.PairKey{Observer: observerID, Target: targetID}
	if cs, ok := r.states[pair]; ok {
		return cs
	}
	return core.CombinedState{
		Pair:             pair,
		SystemsAvailable: false,
		Warnings:         []string{"no scripted state"},
	}
}

func newTestTracker(reader StateReader) (*Tracker, *scene.Static) {
	sc := scene.NewStatic()
	sc.AddEntity(core.Entity{ID: "actor", Pos: core.Position3D{X: 10}, Size: 1})
	sc.AddEntity(core.Entity{ID: "guard", Pos: core.Position3D{}, Size: 1})
	sc.AddEntity(core.Entity{ID: "archer", Pos: core.Position3D{Y: 5}, Size: 1})

	tr := New(reader, sc, sc, zerolog.Nop())
	tr.nowFunc = func() time.Time { return time.Unix(1000, 0) }
	return tr, sc
}

func scripted(observer string, vis core.VisibilityState, cov core.CoverState) (core.PairKey, core.CombinedState) {
	pair := core.PairKey{Observer: observer, Target: "actor"}
	return pair, core.CombinedState{
		Pair:             pair,
		Visibility:       vis,
		Cover:            cov,
		StealthBonus:     cov.Bonus(),
		SystemsAvailable: true,
	}
}

func snapshotWith(vis core.VisibilityState, cov core.CoverState) core.PositionSnapshot {
	return core.PositionSnapshot{
		Combined: core.CombinedState{
			Visibility:       vis,
			Cover:            cov,
			StealthBonus:     cov.Bonus(),
			SystemsAvailable: true,
		},
		VisibilityCalculated: true,
		CoverCalculated:      true,
	}
}

func TestCaptureStartPositions_EveryObserverGetsEntry(t *testing.T) {
	reader := &scriptedReader{states: map[core.PairKey]core.CombinedState{}}
	k1, v1 := scripted("guard", core.VisibilityObserved, core.CoverNone)
	reader.states[k1] = v1
	// archer has no scripted state: integration failure path

	tr, _ := newTestTracker(reader)
	start := tr.CaptureStartPositions("actor", []string{"guard", "archer"})

	require.Len(t, start, 2)
	assert.True(t, start["guard"].VisibilityCalculated)
	assert.True(t, start["guard"].CoverCalculated)
	assert.Empty(t, start["guard"].SystemErrors)

	// Failure still produces an entry, flagged uncalculated.
	assert.False(t, start["archer"].VisibilityCalculated)
	assert.False(t, start["archer"].CoverCalculated)
	assert.NotEmpty(t, start["archer"].SystemErrors)
}

func TestSnapshot_RecordsDistanceAndLighting(t *testing.T) {
	reader := &scriptedReader{states: map[core.PairKey]core.CombinedState{}}
	k, v := scripted("guard", core.VisibilityObserved, core.CoverNone)
	reader.states[k] = v

	tr, sc := newTestTracker(reader)
	sc.SetDefaultLight(core.LightDim)

	start := tr.CaptureStartPositions("actor", []string{"guard"})
	snap := start["guard"]

	assert.InDelta(t, 10.0, snap.Distance, 1e-9)
	assert.Equal(t, core.LightDim, snap.Lighting)
	assert.Equal(t, time.Unix(1000, 0), snap.CapturedAt)
}

func TestAnalyzeTransitions_IdenticalSnapshotsUnchanged(t *testing.T) {
	reader := &scriptedReader{states: map[core.PairKey]core.CombinedState{}}
	for _, obs := range []string{"guard", "archer"} {
		k, v := scripted(obs, core.VisibilityConcealed, core.CoverLesser)
		reader.states[k] = v
	}

	tr, _ := newTestTracker(reader)
	start := tr.CaptureStartPositions("actor", []string{"guard", "archer"})

	transitions := tr.AnalyzeTransitions(start, start)
	require.Len(t, transitions, 2)
	for obs, tx := range transitions {
		assert.Equal(t, core.TransitionUnchanged, tx.Type, obs)
		assert.Equal(t, 0, tx.StealthBonusChange, obs)
		assert.Equal(t, 0, tx.ImpactOnDC, obs)
	}
}

func TestAnalyzeTransitions_Improved(t *testing.T) {
	start := map[string]core.PositionSnapshot{
		"guard": snapshotWith(core.VisibilityObserved, core.CoverNone),
	}
	end := map[string]core.PositionSnapshot{
		"guard": snapshotWith(core.VisibilityHidden, core.CoverStandard),
	}

	tx := New(nil, nil, nil, zerolog.Nop()).AnalyzeTransitions(start, end)["guard"]
	assert.Equal(t, core.TransitionImproved, tx.Type)
	assert.Equal(t, 2, tx.StealthBonusChange)
	// Hidden adds DC 11 and standard cover adds +2.
	assert.Equal(t, 13, tx.ImpactOnDC)
}

func TestAnalyzeTransitions_Worsened(t *testing.T) {
	start := map[string]core.PositionSnapshot{
		"guard": snapshotWith(core.VisibilityHidden, core.CoverGreater),
	}
	end := map[string]core.PositionSnapshot{
		"guard": snapshotWith(core.VisibilityObserved, core.CoverNone),
	}

	tx := New(nil, nil, nil, zerolog.Nop()).AnalyzeTransitions(start, end)["guard"]
	assert.Equal(t, core.TransitionWorsened, tx.Type)
	assert.Equal(t, -4, tx.StealthBonusChange)
	assert.Negative(t, tx.ImpactOnDC)
}

func TestAnalyzeTransitions_MixedNetsOnPriorityScore(t *testing.T) {
	// Visibility up one step, cover down two steps: score 2*1 - 2 = 0.
	start := map[string]core.PositionSnapshot{
		"guard": snapshotWith(core.VisibilityObserved, core.CoverStandard),
	}
	end := map[string]core.PositionSnapshot{
		"guard": snapshotWith(core.VisibilityConcealed, core.CoverNone),
	}

	tx := New(nil, nil, nil, zerolog.Nop()).AnalyzeTransitions(start, end)["guard"]
	assert.Equal(t, core.TransitionUnchanged, tx.Type)

	// Visibility up one step, cover down one: score 2*1 - 1 = 1, improved.
	end["guard"] = snapshotWith(core.VisibilityConcealed, core.CoverLesser)
	tx = New(nil, nil, nil, zerolog.Nop()).AnalyzeTransitions(start, end)["guard"]
	assert.Equal(t, core.TransitionImproved, tx.Type)
}

func TestAnalyzeTransitions_MissingEndTreatedUnchanged(t *testing.T) {
	start := map[string]core.PositionSnapshot{
		"guard": snapshotWith(core.VisibilityObserved, core.CoverNone),
	}

	transitions := New(nil, nil, nil, zerolog.Nop()).AnalyzeTransitions(start, map[string]core.PositionSnapshot{})
	require.Contains(t, transitions, "guard")
	assert.Equal(t, core.TransitionUnchanged, transitions["guard"].Type)
}
