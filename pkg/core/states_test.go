package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibilityOrdering(t *testing.T) {
	// observed < concealed < hidden < undetected in harder-to-detect order
	assert.True(t, VisibilityConcealed.HarderToDetect(VisibilityObserved))
	assert.True(t, VisibilityHidden.HarderToDetect(VisibilityConcealed))
	assert.True(t, VisibilityUndetected.HarderToDetect(VisibilityHidden))
	assert.False(t, VisibilityObserved.HarderToDetect(VisibilityUndetected))
	assert.False(t, VisibilityHidden.HarderToDetect(VisibilityHidden))
}

func TestWorstVisibility(t *testing.T) {
	assert.Equal(t, VisibilityObserved, WorstVisibility())
	assert.Equal(t, VisibilityHidden,
		WorstVisibility(VisibilityObserved, VisibilityHidden, VisibilityConcealed))
	assert.Equal(t, VisibilityUndetected,
		WorstVisibility(VisibilityUndetected))
}

func TestCoverBonuses(t *testing.T) {
	tests := []struct {
		state CoverState
		bonus int
	}{
		{CoverNone, 0},
		{CoverLesser, 1},
		{CoverStandard, 2},
		{CoverGreater, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.bonus, tt.state.Bonus(), tt.state.String())
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, v := range []VisibilityState{
		VisibilityObserved, VisibilityConcealed, VisibilityHidden, VisibilityUndetected,
	} {
		parsed, err := ParseVisibilityState(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}
	for _, c := range []CoverState{CoverNone, CoverLesser, CoverStandard, CoverGreater} {
		parsed, err := ParseCoverState(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, err := ParseVisibilityState("invisible")
	assert.Error(t, err)
	_, err = ParseCoverState("total")
	assert.Error(t, err)
}

func TestPairKeyDirectional(t *testing.T) {
	ab := PairKey{Observer: "a", Target: "b"}
	ba := ab.Reversed()
	assert.NotEqual(t, ab, ba)
	assert.Equal(t, ab, ba.Reversed())
	assert.Equal(t, "a->b", ab.String())
}
