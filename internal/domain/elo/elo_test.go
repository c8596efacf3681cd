package elo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectedScore_EqualRatings(t *testing.T) {
	got := ExpectedScore(1000, 1000)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestExpectedScore_HigherRatingFavored(t *testing.T) {
	got := ExpectedScore(1200, 1000)
	assert.Greater(t, got, 0.5)
}

func TestChange_ZeroSum(t *testing.T) {
	delta1, delta2 := Change(1000, 1200, true)
	assert.Equal(t, -delta1, delta2)
}

func TestChange_WinnerGainsAgainstHigherRated(t *testing.T) {
	delta1, delta2 := Change(1000, 1200, true)
	assert.Positive(t, delta1)
	assert.Negative(t, delta2)
}

func TestChange_LoserLosesAgainstLowerRated(t *testing.T) {
	delta1, delta2 := Change(1200, 1000, false)
	assert.Negative(t, delta1)
	assert.Positive(t, delta2)
}

func TestChange_FloorTruncation(t *testing.T) {
	// expected(1000,1000) = 0.5, K*(1-0.5) = 10 exactly; verify floor semantics
	// on a non-integral case instead.
	delta1, _ := Change(1000, 1008, true)
	expected := ExpectedScore(1000, 1008)
	raw := K * (1 - expected)
	assert.Equal(t, int(raw), delta1)
}
