package visibility

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/scene"
	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

var errOracle = errors.New("oracle unavailable")

// failingOracle fails wall queries, lighting queries, or both.
type failingOracle struct {
	inner      scene.SpatialQuery
	failWalls  bool
	failLights bool
}

func (f *failingOracle) WallsAlong(a, b core.Position3D) ([]core.Wall, error) {
	if f.failWalls {
		return nil, errOracle
	}
	return f.inner.WallsAlong(a, b)
}

func (f *failingOracle) LightAt(p core.Position3D) (core.LightLevel, bool, error) {
	if f.failLights {
		return core.LightBright, false, errOracle
	}
	return f.inner.LightAt(p)
}

func newCalc(s scene.SpatialQuery) *Calculator {
	return New(s, zerolog.Nop())
}

func observerAt(x, y float64) core.Entity {
	return core.Entity{ID: "observer", Pos: core.Position3D{X: x, Y: y}, Size: 5}
}

func targetAt(x, y float64) core.Entity {
	return core.Entity{ID: "target", Pos: core.Position3D{X: x, Y: y}, Size: 5}
}

func blockingWall(id string, x float64) core.Wall {
	return core.Wall{
		ID:          id,
		Start:       core.Position3D{X: x, Y: -100},
		End:         core.Position3D{X: x, Y: 100},
		BlocksSight: true,
	}
}

func TestCalculate_BrightOpenGround(t *testing.T) {
	// observer at distance 20 in bright light, no walls
	s := scene.NewStatic()
	c := newCalc(s)

	state, err := c.Calculate(observerAt(0, 0), targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityObserved, state)
}

func TestCalculate_IlluminationBands(t *testing.T) {
	tests := []struct {
		name  string
		level core.LightLevel
		want  core.VisibilityState
	}{
		{"bright", core.LightBright, core.VisibilityObserved},
		{"dim", core.LightDim, core.VisibilityConcealed},
		{"darkness", core.LightDarkness, core.VisibilityHidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scene.NewStatic()
			s.SetDefaultLight(tt.level)
			c := newCalc(s)

			state, err := c.Calculate(observerAt(0, 0), targetAt(20, 0))
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestCalculate_ConcealingTerrain(t *testing.T) {
	s := scene.NewStatic()
	s.AddLightRegion(scene.LightRegion{
		MinX: 15, MinY: -5, MaxX: 25, MaxY: 5,
		Level: core.LightBright, Concealing: true,
	})
	c := newCalc(s)

	state, err := c.Calculate(observerAt(0, 0), targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityConcealed, state)
}

func TestCalculate_FullyBlocked(t *testing.T) {
	s := scene.NewStatic()
	s.AddWall(blockingWall("w1", 10))
	c := newCalc(s)

	state, err := c.Calculate(observerAt(0, 0), targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityUndetected, state)
}

func TestCalculate_OpenDoorDoesNotBlock(t *testing.T) {
	s := scene.NewStatic()
	w := blockingWall("door", 10)
	w.Door = true
	w.DoorOpen = true
	s.AddWall(w)
	c := newCalc(s)

	state, err := c.Calculate(observerAt(0, 0), targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityObserved, state)
}

func TestCalculate_ClosedDoorBlocks(t *testing.T) {
	s := scene.NewStatic()
	w := blockingWall("door", 10)
	w.Door = true
	s.AddWall(w)
	c := newCalc(s)

	state, err := c.Calculate(observerAt(0, 0), targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityUndetected, state)
}

func TestCalculate_OneWayWall(t *testing.T) {
	s := scene.NewStatic()
	w := blockingWall("oneway", 10)
	// wall runs from (10,-100) to (10,100): observer at x<10 is on the
	// left side of the directed segment
	w.Direction = core.DirLeft
	s.AddWall(w)
	c := newCalc(s)

	state, err := c.Calculate(observerAt(0, 0), targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityUndetected, state, "blocking side")

	state, err = c.Calculate(observerAt(20, 0), targetAt(0, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityObserved, state, "transparent side")
}

func TestCalculate_BridgingSenses(t *testing.T) {
	s := scene.NewStatic()
	s.AddWall(blockingWall("w1", 10))
	c := newCalc(s)

	observer := observerAt(0, 0)
	observer.Senses = []core.Sense{{Kind: SenseTremorsense, Range: 30, Precise: true}}
	state, err := c.Calculate(observer, targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityObserved, state, "precise bridging sense in range")

	observer.Senses = []core.Sense{{Kind: SenseTremorsense, Range: 30}}
	state, err = c.Calculate(observer, targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityHidden, state, "imprecise bridging sense in range")

	observer.Senses = []core.Sense{{Kind: SenseTremorsense, Range: 10, Precise: true}}
	state, err = c.Calculate(observer, targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityUndetected, state, "bridging sense out of range")
}

func TestCalculate_Darkvision(t *testing.T) {
	s := scene.NewStatic()
	s.SetDefaultLight(core.LightDarkness)
	c := newCalc(s)

	observer := observerAt(0, 0)
	observer.Senses = []core.Sense{{Kind: SenseDarkvision}}
	state, err := c.Calculate(observer, targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityObserved, state)
}

func TestCalculate_LowLightVision(t *testing.T) {
	s := scene.NewStatic()
	s.SetDefaultLight(core.LightDim)
	c := newCalc(s)

	observer := observerAt(0, 0)
	observer.Senses = []core.Sense{{Kind: SenseLowLight}}
	state, err := c.Calculate(observer, targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityObserved, state)

	// low-light vision does not help in darkness
	s.SetDefaultLight(core.LightDarkness)
	state, err = c.Calculate(observer, targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityHidden, state)
}

func TestCalculate_FiniteSensesBeyondRange(t *testing.T) {
	s := scene.NewStatic()
	c := newCalc(s)

	observer := observerAt(0, 0)
	observer.Senses = []core.Sense{
		{Kind: SenseLifesense, Range: 10},
		{Kind: SenseHearing, Range: 15},
	}
	state, err := c.Calculate(observer, targetAt(50, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityUndetected, state)

	// an uncapped sense removes the distance signal
	observer.Senses = append(observer.Senses, core.Sense{Kind: SenseVision})
	state, err = c.Calculate(observer, targetAt(50, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityObserved, state)
}

func TestCalculate_WorstOfSignals(t *testing.T) {
	// dim light (concealed) combined with clear LOS (observed) → concealed
	s := scene.NewStatic()
	s.SetDefaultLight(core.LightDim)
	s.AddWall(blockingWall("w1", 10))
	c := newCalc(s)

	// wall blocks (undetected) beats dim light (concealed)
	state, err := c.Calculate(observerAt(0, 0), targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityUndetected, state)
}

func TestCalculate_OracleError(t *testing.T) {
	f := &failingOracle{inner: scene.NewStatic(), failWalls: true}
	c := newCalc(f)

	_, err := c.Calculate(observerAt(0, 0), targetAt(20, 0))
	assert.ErrorIs(t, err, errOracle)
}

func TestCalculateLightingOnly_SkipsLOS(t *testing.T) {
	// the wall oracle fails, but lighting-only still answers
	inner := scene.NewStatic()
	inner.SetDefaultLight(core.LightDim)
	f := &failingOracle{inner: inner, failWalls: true}
	c := newCalc(f)

	state, err := c.CalculateLightingOnly(observerAt(0, 0), targetAt(20, 0))
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityConcealed, state)
}

func TestCalculateLightingOnly_BothFail(t *testing.T) {
	f := &failingOracle{inner: scene.NewStatic(), failWalls: true, failLights: true}
	c := newCalc(f)

	_, err := c.CalculateLightingOnly(observerAt(0, 0), targetAt(20, 0))
	assert.ErrorIs(t, err, errOracle)
}
