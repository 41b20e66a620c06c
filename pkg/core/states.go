// pkg/core/states.go
package core

import "fmt"

// VisibilityState describes how hard a target is to detect from an
// observer's position. Ordering is total: Observed < Concealed < Hidden <
// Undetected in "harder to detect" order.
type VisibilityState int

const (
	VisibilityObserved VisibilityState = iota
	VisibilityConcealed
	VisibilityHidden
	VisibilityUndetected
)

// String returns the lowercase rules name of the state.
func (s VisibilityState) String() string {
	switch s {
	case VisibilityObserved:
		return "observed"
	case VisibilityConcealed:
		return "concealed"
	case VisibilityHidden:
		return "hidden"
	case VisibilityUndetected:
		return "undetected"
	default:
		return fmt.Sprintf("visibility(%d)", int(s))
	}
}

// HarderToDetect reports whether s is strictly harder to detect than other.
func (s VisibilityState) HarderToDetect(other VisibilityState) bool {
	return s > other
}

// DC is the flat-check-style detection difficulty used when scoring
// transitions. Observed contributes nothing; each step up adds difficulty.
func (s VisibilityState) DC() int {
	switch s {
	case VisibilityConcealed:
		return 5
	case VisibilityHidden:
		return 11
	case VisibilityUndetected:
		return 11
	default:
		return 0
	}
}

// ParseVisibilityState parses a rules name into a VisibilityState.
func ParseVisibilityState(name string) (VisibilityState, error) {
	switch name {
	case "observed":
		return VisibilityObserved, nil
	case "concealed":
		return VisibilityConcealed, nil
	case "hidden":
		return VisibilityHidden, nil
	case "undetected":
		return VisibilityUndetected, nil
	default:
		return VisibilityObserved, fmt.Errorf("unknown visibility state %q", name)
	}
}

// WorstVisibility returns the hardest-to-detect state among the arguments.
// Returns Observed when called with no arguments.
func WorstVisibility(states ...VisibilityState) VisibilityState {
	worst := VisibilityObserved
	for _, s := range states {
		if s > worst {
			worst = s
		}
	}
	return worst
}

// MarshalText implements encoding.TextMarshaler so scene files and exports
// carry rules names instead of raw ints.
func (s VisibilityState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *VisibilityState) UnmarshalText(text []byte) error {
	parsed, err := ParseVisibilityState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CoverState describes physical obstruction between observer and target.
// Ordering is total: None < Lesser < Standard < Greater.
type CoverState int

const (
	CoverNone CoverState = iota
	CoverLesser
	CoverStandard
	CoverGreater
)

// String returns the lowercase rules name of the state.
func (s CoverState) String() string {
	switch s {
	case CoverNone:
		return "none"
	case CoverLesser:
		return "lesser"
	case CoverStandard:
		return "standard"
	case CoverGreater:
		return "greater"
	default:
		return fmt.Sprintf("cover(%d)", int(s))
	}
}

// Bonus returns the circumstance bonus to defense/reflex/stealth granted by
// the cover state.
func (s CoverState) Bonus() int {
	switch s {
	case CoverLesser:
		return 1
	case CoverStandard:
		return 2
	case CoverGreater:
		return 4
	default:
		return 0
	}
}

// ParseCoverState parses a rules name into a CoverState.
func ParseCoverState(name string) (CoverState, error) {
	switch name {
	case "none":
		return CoverNone, nil
	case "lesser":
		return CoverLesser, nil
	case "standard":
		return CoverStandard, nil
	case "greater":
		return CoverGreater, nil
	default:
		return CoverNone, fmt.Errorf("unknown cover state %q", name)
	}
}

// BestCover returns the highest cover state among the arguments. Returns
// None when called with no arguments.
func BestCover(states ...CoverState) CoverState {
	best := CoverNone
	for _, s := range states {
		if s > best {
			best = s
		}
	}
	return best
}

// MarshalText implements encoding.TextMarshaler.
func (s CoverState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *CoverState) UnmarshalText(text []byte) error {
	parsed, err := ParseCoverState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// LightLevel is the illumination band at a point on the map.
type LightLevel int

const (
	LightBright LightLevel = iota
	LightDim
	LightDarkness
)

// String returns the lowercase name of the band.
func (l LightLevel) String() string {
	switch l {
	case LightBright:
		return "bright"
	case LightDim:
		return "dim"
	case LightDarkness:
		return "darkness"
	default:
		return fmt.Sprintf("light(%d)", int(l))
	}
}

// ParseLightLevel parses a band name into a LightLevel.
func ParseLightLevel(name string) (LightLevel, error) {
	switch name {
	case "bright":
		return LightBright, nil
	case "dim":
		return LightDim, nil
	case "darkness":
		return LightDarkness, nil
	default:
		return LightBright, fmt.Errorf("unknown light level %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l LightLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *LightLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseLightLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
