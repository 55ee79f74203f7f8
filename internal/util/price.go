// Package util provides common utility functions for price calculations and
// injectable time sources.
package util

import "math"

// StrikeScale is the provider's strike-scaling convention: listed option
// strikes are the underlying's quoted price multiplied by 100.
const StrikeScale = 100.0

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.05, 1.23 becomes 1.25.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// ScaledStrike converts an underlying price to the provider's strike scale.
func ScaledStrike(underlyingPrice float64) float64 {
	return underlyingPrice * StrikeScale
}
