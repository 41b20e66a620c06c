package engine

import (
	"sync"
	"time"

	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// stateCache caches combined states per pair with a short TTL to avoid
// recomputing geometry for back-to-back queries. Latency in these calls is
// critical during batch reads. Combined states are never authoritative;
// scene changes must call Reset.
type stateCache struct {
	m       sync.Mutex
	states  map[core.PairKey]cachedState
	ttl     time.Duration
	nowFunc func() time.Time // test seam
}

type cachedState struct {
	state   core.CombinedState
	expires time.Time
}

func newStateCache(ttl time.Duration) *stateCache {
	return &stateCache{
		states:  make(map[core.PairKey]cachedState),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

func (c *stateCache) Get(pair core.PairKey) (core.CombinedState, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	e, ok := c.states[pair]
	if !ok || c.nowFunc().After(e.expires) {
		delete(c.states, pair)
		return core.CombinedState{}, false
	}
	return e.state, true
}

func (c *stateCache) Set(pair core.PairKey, state core.CombinedState) {
	if c.ttl <= 0 {
		return
	}
	c.m.Lock()
	defer c.m.Unlock()
	c.states[pair] = cachedState{state: state, expires: c.nowFunc().Add(c.ttl)}
}

func (c *stateCache) Invalidate(pair core.PairKey) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.states, pair)
}

func (c *stateCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.states = make(map[core.PairKey]cachedState)
}

func (c *stateCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.states)
}
