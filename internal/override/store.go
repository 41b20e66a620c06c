// Package override manages manually pinned visibility and cover values.
// Overrides take precedence over live calculation until explicitly cleared;
// revalidation surfaces implausible overrides but never deletes them.
package override

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/notify"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/storage"
	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// coalesceWindow bounds how often back-to-back revalidation sweeps with the
// same trigger actually re-run. Continuous movement fires triggers far faster
// than contexts meaningfully change.
const coalesceWindow = 100 * time.Millisecond

// ContextFunc resolves the current validation context for a pair. Injected by
// the integration layer so revalidation sees live geometry.
type ContextFunc func(pair core.PairKey) (core.ValidationContext, error)

// InvalidOverride is an override whose justifying context no longer holds.
// The record itself stays live until explicitly cleared.
type InvalidOverride struct {
	Override core.Override          `json:"override"`
	Reason   string                 `json:"reason"`
	Current  core.ValidationContext `json:"current"`
}

// Store is the process-wide override registry. When the persistence backend
// fails it degrades to a no-op: reads return no override, writes are dropped,
// and a single escalated notification is emitted.
type Store struct {
	mu       sync.Mutex
	backend  storage.Backend
	degraded bool

	ctxFn ContextFunc

	lastSweep   time.Time
	lastTrigger string
	lastResult  []InvalidOverride

	sink notify.Sink
	log  zerolog.Logger
}

// New creates a store over the given backend. ctxFn may be set later via
// SetContextFunc once the integration layer exists.
func New(backend storage.Backend, sink notify.Sink, log zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		sink:    sink,
		log:     log,
	}
}

// SetContextFunc installs the live-context resolver used by RevalidateAll.
func (s *Store) SetContextFunc(fn ContextFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxFn = fn
}

// Set pins an override. CreatedAt is stamped when unset.
func (s *Store) Set(o *core.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return nil
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if err := s.backend.SaveOverride(o); err != nil {
		s.degrade(err)
		return nil
	}

	s.log.Debug().
		Str("pair", o.Pair.String()).
		Str("kind", string(o.Kind)).
		Str("reason", o.Reason).
		Msg("Override set")
	return nil
}

// Get returns the live override for a pair and kind, or nil when none exists.
func (s *Store) Get(pair core.PairKey, kind core.OverrideKind) (*core.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return nil, nil
	}
	o, err := s.backend.GetOverride(pair, kind)
	if err != nil {
		s.degrade(err)
		return nil, nil
	}
	return o, nil
}

// Clear removes an override. Clearing a missing record is not an error.
func (s *Store) Clear(pair core.PairKey, kind core.OverrideKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return nil
	}
	if err := s.backend.DeleteOverride(pair, kind); err != nil {
		s.degrade(err)
		return nil
	}

	s.log.Debug().
		Str("pair", pair.String()).
		Str("kind", string(kind)).
		Msg("Override cleared")
	return nil
}

// List returns every live override.
func (s *Store) List() ([]core.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return nil, nil
	}
	all, err := s.backend.ListOverrides()
	if err != nil {
		s.degrade(err)
		return nil, nil
	}
	return all, nil
}

// RevalidateAll sweeps every live override against its current context and
// returns those whose justifying context no longer holds. Nothing is deleted;
// resolving an invalid override is the caller's decision. Rapid repeated
// sweeps with the same trigger within the coalesce window reuse the previous
// result.
func (s *Store) RevalidateAll(trigger string) ([]InvalidOverride, error) {
	s.mu.Lock()
	if trigger == s.lastTrigger && time.Since(s.lastSweep) < coalesceWindow {
		cached := s.lastResult
		s.mu.Unlock()
		return cached, nil
	}
	ctxFn := s.ctxFn
	s.mu.Unlock()

	if ctxFn == nil {
		return nil, fmt.Errorf("revalidation requires a context resolver")
	}

	all, err := s.List()
	if err != nil {
		return nil, err
	}

	var invalid []InvalidOverride
	for _, o := range all {
		cur, err := ctxFn(o.Pair)
		if err != nil {
			// Cannot judge plausibility without live context; leave the
			// override alone rather than flagging on bad data.
			s.log.Warn().
				Str("pair", o.Pair.String()).
				Err(err).
				Msg("Context resolution failed during revalidation")
			continue
		}
		if reason, ok := implausible(o, cur); ok {
			invalid = append(invalid, InvalidOverride{
				Override: o,
				Reason:   reason,
				Current:  cur,
			})
		}
	}

	s.mu.Lock()
	s.lastSweep = time.Now()
	s.lastTrigger = trigger
	s.lastResult = invalid
	s.mu.Unlock()

	s.log.Info().
		Str("trigger", trigger).
		Int("checked", len(all)).
		Int("invalid", len(invalid)).
		Msg("Revalidation sweep complete")
	return invalid, nil
}

// Degraded reports whether persistence has failed this session.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// implausible tests an override against the pair's current context.
func implausible(o core.Override, cur core.ValidationContext) (string, bool) {
	switch o.Kind {
	case core.KindVisibility:
		if o.Visibility == core.VisibilityObserved {
			return "", false
		}
		// A harder-than-observed pin needs at least one supporting fact:
		// dim light or worse, some cover, blocked sight line, or concealment.
		if cur.Lighting == core.LightBright && cur.Cover == core.CoverNone &&
			cur.HasLineOfSight && !cur.Concealed {
			return "target is in bright light with clear line of sight and no cover or concealment", true
		}
	case core.KindCover:
		if o.Cover == core.CoverNone {
			return "", false
		}
		if cur.Cover == core.CoverNone && cur.HasLineOfSight {
			return "no occluder remains between observer and target", true
		}
	}
	return "", false
}

// caller must hold mu
func (s *Store) degrade(err error) {
	if s.degraded {
		return
	}
	s.degraded = true

	s.log.Error().Err(err).Msg("Override persistence failed, store degraded to no-op")

	if s.sink != nil {
		s.sink.Notify(notify.Message{
			Severity: notify.SeverityError,
			System:   "override",
			Text:     "override storage unavailable, pinned states disabled for this session",
		})
	}
}
