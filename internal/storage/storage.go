// internal/storage/storage.go
package storage

import "github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"

// Backend is the persistence provider for override records. Implementations
// must make SaveOverride/GetOverride atomic per pair+kind: there is at most
// one live override per (pair, kind).
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Override lifecycle, keyed by (PairKey, kind). GetOverride returns
	// (nil, nil) when no record exists.
	SaveOverride(o *core.Override) error
	GetOverride(pair core.PairKey, kind core.OverrideKind) (*core.Override, error)
	DeleteOverride(pair core.PairKey, kind core.OverrideKind) error
	ListOverrides() ([]core.Override, error)
}
