// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sync"

	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// Backend stores override records in memory. It is the default backend and
// the degraded-mode target when a database backend fails.
type Backend struct {
	mu        sync.RWMutex
	overrides map[string]core.Override
}

// New creates a new memory backend.
func New() *Backend {
	return &Backend{
		overrides: make(map[string]core.Override),
	}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}

// SaveOverride inserts or replaces the record for (pair, kind).
func (b *Backend) SaveOverride(o *core.Override) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[key(o.Pair, o.Kind)] = *o
	return nil
}

// GetOverride returns the record for (pair, kind), or nil when absent.
func (b *Backend) GetOverride(pair core.PairKey, kind core.OverrideKind) (*core.Override, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if o, ok := b.overrides[key(pair, kind)]; ok {
		return &o, nil
	}
	return nil, nil
}

// DeleteOverride removes the record for (pair, kind). Deleting a missing
// record is not an error.
func (b *Backend) DeleteOverride(pair core.PairKey, kind core.OverrideKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.overrides, key(pair, kind))
	return nil
}

// ListOverrides returns every live record.
func (b *Backend) ListOverrides() ([]core.Override, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.Override, 0, len(b.overrides))
	for _, o := range b.overrides {
		out = append(out, o)
	}
	return out, nil
}

func key(pair core.PairKey, kind core.OverrideKind) string {
	return fmt.Sprintf("%s:%s", pair.String(), kind)
}
