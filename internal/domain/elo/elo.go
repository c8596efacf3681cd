// Package elo implements the rating adjustment used by ranked scrimmages.
package elo

import "math"

const (
	// K is the rating points exchanged on a fully-upset result.
	K = 20
	// base and divisor parameterize the logistic expected-score curve.
	base    = 10
	divisor = 400
)

// ExpectedScore returns the probability that the player rated ratingA beats
// the player rated ratingB.
func ExpectedScore(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(base, float64(ratingB-ratingA)/divisor))
}

// Change computes the rating delta for a single match between two players
// rated rating1 and rating2, where player1Won reports whether player one won.
// It returns (delta1, delta2), which always sum to zero.
func Change(rating1, rating2 int, player1Won bool) (int, int) {
	score := 0.0
	if player1Won {
		score = 1.0
	}
	expected := ExpectedScore(rating1, rating2)
	delta1 := int(math.Floor(K * (score - expected)))
	return delta1, -delta1
}
