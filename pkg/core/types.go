// pkg/core/types.go
package core

import (
	"fmt"
	"time"
)

// Position3D is a location in map space. Z is elevation in map units.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Entity is anything on the map that can observe or be observed. The engine
// never creates or destroys entities; it only reads their current geometry
// from the scene inventory provider.
type Entity struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Pos      Position3D `json:"pos"`
	Size     float64    `json:"size"` // footprint width, map units
	Alliance string     `json:"alliance,omitempty"`
	Dead     bool       `json:"dead,omitempty"`
	Prone    bool       `json:"prone,omitempty"`

	// NeverBlocks marks an entity that never provides cover regardless of
	// geometry (the host's "ignore" flag).
	NeverBlocks bool `json:"neverBlocks,omitempty"`

	// Senses carried by the entity when acting as an observer.
	Senses []Sense `json:"senses,omitempty"`
}

// Sense is a special sense an observer may use to detect targets.
// Range <= 0 means the sense has no range cap.
type Sense struct {
	Kind     string  `json:"kind"`
	Range    float64 `json:"range,omitempty"`
	Precise  bool    `json:"precise,omitempty"`
	IgnoresL bool    `json:"ignoresLight,omitempty"` // e.g. darkvision
}

// WallDirection restricts which crossing direction a wall blocks.
type WallDirection int

const (
	DirBoth WallDirection = iota
	DirLeft
	DirRight
)

// Wall is an occluder segment, immutable for the duration of one query.
type Wall struct {
	ID          string        `json:"id"`
	Start       Position3D    `json:"start"`
	End         Position3D    `json:"end"`
	BlocksSight bool          `json:"blocksSight"`
	Door        bool          `json:"door,omitempty"`
	DoorOpen    bool          `json:"doorOpen,omitempty"`
	Direction   WallDirection `json:"direction,omitempty"`

	// HeightLow/HeightHigh bound the elevation band the wall occupies.
	// Both zero means the wall spans all elevations.
	HeightLow  float64 `json:"heightLow,omitempty"`
	HeightHigh float64 `json:"heightHigh,omitempty"`

	// CoverOverride, when non-nil, forces the wall's cover contribution to a
	// fixed state (manual tag placed by the scene author).
	CoverOverride *CoverState `json:"coverOverride,omitempty"`
}

// PairKey identifies a directional observer→target relationship.
// (A,B) and (B,A) are independent records.
type PairKey struct {
	Observer string `json:"observer"`
	Target   string `json:"target"`
}

// String renders the pair for log lines and storage keys.
func (k PairKey) String() string {
	return fmt.Sprintf("%s->%s", k.Observer, k.Target)
}

// Reversed returns the opposite-direction key.
func (k PairKey) Reversed() PairKey {
	return PairKey{Observer: k.Target, Target: k.Observer}
}

// OverrideKind distinguishes visibility overrides from cover overrides.
type OverrideKind string

const (
	KindVisibility OverrideKind = "visibility"
	KindCover      OverrideKind = "cover"
)

// ValidationContext records the facts that justified an override when it was
// created, so a later revalidation sweep can test whether they still hold.
type ValidationContext struct {
	Lighting       LightLevel `json:"lighting"`
	Cover          CoverState `json:"cover"`
	Distance       float64    `json:"distance"`
	HasLineOfSight bool       `json:"hasLineOfSight"`
	Concealed      bool       `json:"concealed,omitempty"` // concealing terrain at target
}

// Override is a manually pinned visibility or cover value for one pair. It
// takes precedence over live calculation until explicitly cleared.
type Override struct {
	Pair       PairKey           `json:"pair"`
	Kind       OverrideKind      `json:"kind"`
	Visibility VisibilityState   `json:"visibility,omitempty"` // set when Kind == KindVisibility
	Cover      CoverState        `json:"cover,omitempty"`      // set when Kind == KindCover
	Reason     string            `json:"reason"`
	Context    ValidationContext `json:"context"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// CombinedState is the integration layer's per-pair output. It is a derived
// value with no durability; only overrides persist.
type CombinedState struct {
	Pair             PairKey         `json:"pair"`
	Visibility       VisibilityState `json:"visibility"`
	Cover            CoverState      `json:"cover"`
	StealthBonus     int             `json:"stealthBonus"`
	SystemsAvailable bool            `json:"systemsAvailable"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// PositionSnapshot captures one pair's combined state at one instant,
// bracketing a multi-step action.
type PositionSnapshot struct {
	Combined             CombinedState `json:"combined"`
	Distance             float64       `json:"distance"`
	Lighting             LightLevel    `json:"lighting"`
	VisibilityCalculated bool          `json:"visibilityCalculated"`
	CoverCalculated      bool          `json:"coverCalculated"`
	SystemErrors         []string      `json:"systemErrors,omitempty"`
	CapturedAt           time.Time     `json:"capturedAt"`
}

// TransitionType classifies the net effect of a position change.
type TransitionType string

const (
	TransitionImproved  TransitionType = "improved"
	TransitionWorsened  TransitionType = "worsened"
	TransitionUnchanged TransitionType = "unchanged"
)

// PositionTransition is the structured delta between two snapshots of the
// same pair. Never mutated after creation.
type PositionTransition struct {
	Start              PositionSnapshot `json:"start"`
	End                PositionSnapshot `json:"end"`
	Type               TransitionType   `json:"type"`
	StealthBonusChange int              `json:"stealthBonusChange"`
	ImpactOnDC         int              `json:"impactOnDC"`
}
