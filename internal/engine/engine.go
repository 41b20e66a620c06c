// Package engine is the dual-system integration layer. It merges override
// precedence, the visibility calculator, and the cover detector into a single
// combined-state read path with per-system fallback tiers. Callers never see
// a raw calculation error from GetCombinedState.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/config"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/cover"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/geo"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/ledger"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/override"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/scene"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/visibility"
	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// Options tunes the engine's read path.
type Options struct {
	BatchSize int
	CacheTTL  time.Duration
}

// OptionsFromConfig builds engine options from the loaded configuration.
func OptionsFromConfig() Options {
	return Options{
		BatchSize: config.GetInt("engine.batchSize"),
		CacheTTL:  time.Duration(config.GetInt("engine.cacheTTLMs")) * time.Millisecond,
	}
}

// Engine composes the calculators, the override store, and the error ledger.
type Engine struct {
	spatial   scene.SpatialQuery
	inventory scene.Inventory
	vis       *visibility.Calculator
	cov       *cover.Detector
	overrides *override.Store
	ledger    *ledger.Ledger
	cache     *stateCache
	batchSize int
	log       zerolog.Logger

	queries   metric.Int64Counter
	fallbacks metric.Int64Counter
	cacheHits metric.Int64Counter
}

// New wires the integration layer. It installs the engine as the override
// store's context resolver, as the cover detector's undetected-exclusion
// callback, and registers availability probes with the ledger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(
	spatial scene.SpatialQuery,
	inventory scene.Inventory,
	vis *visibility.Calculator,
	cov *cover.Detector,
	overrides *override.Store,
	ledg *ledger.Ledger,
	opts Options,
	log zerolog.Logger,
) (*Engine, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}

	e := &Engine{
		spatial:   spatial,
		inventory: inventory,
		vis:       vis,
		cov:       cov,
		overrides: overrides,
		ledger:    ledg,
		cache:     newStateCache(opts.CacheTTL),
		batchSize: opts.BatchSize,
		log:       log,
	}

	m := meter()
	var err error

	e.queries, err = m.Int64Counter(
		"engine.queries",
		metric.WithDescription("Total combined-state queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating query counter: %w", err)
	}
	e.fallbacks, err = m.Int64Counter(
		"engine.fallbacks",
		metric.WithDescription("Total fallback-tier activations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fallback counter: %w", err)
	}
	e.cacheHits, err = m.Int64Counter(
		"engine.cache.hits",
		metric.WithDescription("Combined-state cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache hit counter: %w", err)
	}

	cacheSize, err := m.Int64ObservableGauge(
		"engine.cache.size",
		metric.WithDescription("Current number of cached combined states"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache size gauge: %w", err)
	}
	if _, err := m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(cacheSize, int64(e.cache.Len()))
			return nil
		},
		cacheSize,
	); err != nil {
		return nil, fmt.Errorf("registering cache size callback: %w", err)
	}

	cov.SetUndetectedFunc(e.isUndetected)
	overrides.SetContextFunc(e.ContextFor)

	ledg.RegisterProbe(ledger.TagVisibility, e.probeOracle)
	ledg.RegisterProbe(ledger.TagCover, e.probeOracle)

	return e, nil
}

// GetCombinedState resolves the visibility, cover, and derived stealth bonus
// for one directional pair. Overrides are consulted before the calculators;
// calculation failures degrade through fallback tiers and are recorded in the
// ledger. Never panics and never surfaces a raw error.
func (e *Engine) GetCombinedState(observerID, targetID string) core.CombinedState {
	pair := core.PairKey{Observer: observerID, Target: targetID}
	ctx := context.Background()
	e.queries.Add(ctx, 1)

	if cs, ok := e.cache.Get(pair); ok {
		e.cacheHits.Add(ctx, 1)
		return cs
	}

	cs := core.CombinedState{
		Pair:             pair,
		Visibility:       core.VisibilityObserved,
		Cover:            core.CoverNone,
		SystemsAvailable: true,
	}

	observer, okObs := e.inventory.Entity(observerID)
	target, okTgt := e.inventory.Entity(targetID)
	if !okObs || !okTgt {
		cs.SystemsAvailable = false
		cs.Warnings = append(cs.Warnings, fmt.Sprintf("unknown entity in pair %s", pair))
		return cs
	}

	visOverride, _ := e.overrides.Get(pair, core.KindVisibility)
	covOverride, _ := e.overrides.Get(pair, core.KindCover)

	if visOverride != nil {
		cs.Visibility = visOverride.Visibility
	} else {
		cs.Visibility = e.visibilityWithFallback(observer, target, &cs)
	}

	if covOverride != nil {
		cs.Cover = covOverride.Cover
	} else {
		cs.Cover = e.coverWithFallback(observer, target, &cs)
	}

	cs.StealthBonus = cs.Cover.Bonus()

	if cs.SystemsAvailable {
		e.cache.Set(pair, cs)
	}
	return cs
}

// GetBatchCombinedStates resolves many pairs in fixed-size chunks. Chunks run
// sequentially so geometry reads stay consistent within one batch; per-pair
// failures are captured in each result's warnings, never aborting the batch.
func (e *Engine) GetBatchCombinedStates(pairs []core.PairKey) []core.CombinedState {
	out := make([]core.CombinedState, 0, len(pairs))
	for start := 0; start < len(pairs); start += e.batchSize {
		end := start + e.batchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		for _, pair := range pairs[start:end] {
			out = append(out, e.GetCombinedState(pair.Observer, pair.Target))
		}
	}
	return out
}

// GetCombinedStatesForObserver resolves one observer against many targets,
// keyed by target ID. Built on the chunked batch path, so per-target failures
// stay confined to their own result.
func (e *Engine) GetCombinedStatesForObserver(observerID string, targetIDs []string) map[string]core.CombinedState {
	pairs := make([]core.PairKey, 0, len(targetIDs))
	for _, targetID := range targetIDs {
		pairs = append(pairs, core.PairKey{Observer: observerID, Target: targetID})
	}
	states := e.GetBatchCombinedStates(pairs)

	out := make(map[string]core.CombinedState, len(states))
	for _, cs := range states {
		out[cs.Pair.Target] = cs
	}
	return out
}

// SetOverride pins a state for a pair and drops the cached combined state.
func (e *Engine) SetOverride(o *core.Override) error {
	if err := e.overrides.Set(o); err != nil {
		return err
	}
	e.cache.Invalidate(o.Pair)
	return nil
}

// ClearOverride removes a pinned state and drops the cached combined state.
func (e *Engine) ClearOverride(pair core.PairKey, kind core.OverrideKind) error {
	if err := e.overrides.Clear(pair, kind); err != nil {
		return err
	}
	e.cache.Invalidate(pair)
	return nil
}

// RevalidateAll sweeps every override against live geometry. The combined
// state cache is reset first so contexts reflect the current scene.
func (e *Engine) RevalidateAll(trigger string) ([]override.InvalidOverride, error) {
	e.cache.Reset()
	return e.overrides.RevalidateAll(trigger)
}

// InvalidateScene drops all cached combined states. Call on any geometry or
// lighting change.
func (e *Engine) InvalidateScene() {
	e.cache.Reset()
}

// GetSystemStatus reports per-system health from the ledger.
func (e *Engine) GetSystemStatus() map[string]ledger.Status {
	return e.ledger.GetSystemStatus()
}

// GetErrorHistory returns recorded failures, most recent first.
func (e *Engine) GetErrorHistory(tag string) []ledger.Entry {
	return e.ledger.GetErrorHistory(tag)
}

// AttemptSystemRecovery re-probes a degraded system.
func (e *Engine) AttemptSystemRecovery(tag string) bool {
	return e.ledger.AttemptSystemRecovery(tag)
}

// ContextFor resolves the live validation context for a pair. Used by the
// override store's revalidation sweep.
func (e *Engine) ContextFor(pair core.PairKey) (core.ValidationContext, error) {
	observer, okObs := e.inventory.Entity(pair.Observer)
	target, okTgt := e.inventory.Entity(pair.Target)
	if !okObs || !okTgt {
		return core.ValidationContext{}, fmt.Errorf("unknown entity in pair %s", pair)
	}

	lighting, concealed, err := e.spatial.LightAt(target.Pos)
	if err != nil {
		return core.ValidationContext{}, fmt.Errorf("lighting at target: %w", err)
	}

	hasLOS, err := e.hasLineOfSight(observer.Pos, target.Pos)
	if err != nil {
		return core.ValidationContext{}, fmt.Errorf("sight line check: %w", err)
	}

	coverState, err := e.cov.Detect(observer, target)
	if err != nil {
		return core.ValidationContext{}, fmt.Errorf("cover for context: %w", err)
	}

	return core.ValidationContext{
		Lighting:       lighting,
		Cover:          coverState,
		Distance:       geo.Distance(observer.Pos, target.Pos),
		HasLineOfSight: hasLOS,
		Concealed:      concealed,
	}, nil
}

// visibilityWithFallback runs the calculator through its fallback tiers:
// native, lighting-only, then the conservative observed default.
func (e *Engine) visibilityWithFallback(observer, target core.Entity, cs *core.CombinedState) core.VisibilityState {
	state, err := e.vis.Calculate(observer, target)
	if err == nil {
		return state
	}

	e.fallbacks.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("system", ledger.TagVisibility)))
	e.ledger.HandleSystemError(ledger.TagVisibility, err, map[string]any{
		"pair": cs.Pair.String(),
	}, true)
	cs.SystemsAvailable = false
	cs.Warnings = append(cs.Warnings, "visibility calculation failed, using fallback")

	state, err = e.vis.CalculateLightingOnly(observer, target)
	if err == nil {
		return state
	}

	// Conservative: assume the target is plainly seen rather than granting
	// unearned concealment.
	cs.Warnings = append(cs.Warnings, "lighting fallback failed, assuming observed")
	return core.VisibilityObserved
}

// coverWithFallback runs the detector through its fallback tiers: native,
// wall-collision-only, then the conservative none default.
func (e *Engine) coverWithFallback(observer, target core.Entity, cs *core.CombinedState) core.CoverState {
	state, err := e.cov.Detect(observer, target)
	if err == nil {
		return state
	}

	e.fallbacks.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("system", ledger.TagCover)))
	e.ledger.HandleSystemError(ledger.TagCover, err, map[string]any{
		"pair": cs.Pair.String(),
	}, true)
	cs.SystemsAvailable = false
	cs.Warnings = append(cs.Warnings, "cover detection failed, using fallback")

	state, err = e.cov.DetectWallCollisionOnly(observer, target)
	if err == nil {
		return state
	}

	cs.Warnings = append(cs.Warnings, "wall collision fallback failed, assuming no cover")
	return core.CoverNone
}

// isUndetected reports whether blocker is undetected relative to observer,
// for the detector's policy exclusions. Overrides win; calculation errors
// count as detected so exclusion never hides a real occluder on bad data.
func (e *Engine) isUndetected(observerID, blockerID string) bool {
	pair := core.PairKey{Observer: observerID, Target: blockerID}
	if o, _ := e.overrides.Get(pair, core.KindVisibility); o != nil {
		return o.Visibility == core.VisibilityUndetected
	}

	observer, okObs := e.inventory.Entity(observerID)
	blocker, okBlk := e.inventory.Entity(blockerID)
	if !okObs || !okBlk {
		return false
	}
	state, err := e.vis.Calculate(observer, blocker)
	if err != nil {
		return false
	}
	return state == core.VisibilityUndetected
}

// hasLineOfSight reports whether the center sight ray is unobstructed.
func (e *Engine) hasLineOfSight(a, b core.Position3D) (bool, error) {
	walls, err := e.spatial.WallsAlong(a, b)
	if err != nil {
		return false, err
	}
	for _, w := range walls {
		if geo.WallBlocks(w, a, b) {
			return false, nil
		}
	}
	return true, nil
}

// probeOracle is the ledger availability probe for both calculators: the
// shared spatial oracle answering again is what recovery means here.
func (e *Engine) probeOracle() bool {
	origin := core.Position3D{}
	if _, _, err := e.spatial.LightAt(origin); err != nil {
		return false
	}
	if _, err := e.spatial.WallsAlong(origin, core.Position3D{X: 1}); err != nil {
		return false
	}
	return true
}
