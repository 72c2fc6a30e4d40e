// Package analytics computes cross-domain correlations between paired metric
// series. It only reads; nothing here may fail a cascade.
package analytics

import (
	"math"

	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

type Strength string

const (
	StrengthVeryStrong Strength = "Very Strong"
	StrengthStrong     Strength = "Strong"
	StrengthModerate   Strength = "Moderate"
	StrengthWeak       Strength = "Weak"
	StrengthVeryWeak   Strength = "Very Weak"
)

type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNone     Direction = "none"
)

// PearsonChecked returns the Pearson coefficient of two equal-length series,
// or a ComputationError when the series cannot be correlated.
func PearsonChecked(xs, ys []float64) (float64, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return 0, &utils.ComputationError{Func: "Pearson", Reason: "series are empty or differ in length"}
	}
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return 0, &utils.ComputationError{Func: "Pearson", Reason: "series contain non-finite values"}
		}
		sumX += x
		sumY += y
	}
	meanX, meanY := sumX/n, sumY/n
	var sxx, syy, sxy float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if negligible(sxx, meanX, n) || negligible(syy, meanY, n) {
		return 0, &utils.ComputationError{Func: "Pearson", Reason: "zero variance"}
	}
	r := sxy / math.Sqrt(sxx*syy)
	return utils.Clamp(r, -1, 1), nil
}

// negligible reports whether a sum of squared deviations is rounding residue
// relative to the magnitude of the series.
func negligible(ss, mean, n float64) bool {
	return math.Sqrt(ss/n) <= 1e-9*math.Max(1, math.Abs(mean))
}

// Pearson is PearsonChecked with every failure mapped to 0.
func Pearson(xs, ys []float64) float64 {
	r, err := PearsonChecked(xs, ys)
	if err != nil {
		return 0
	}
	return r
}

func StrengthOf(r float64) Strength {
	a := math.Abs(r)
	switch {
	case a >= 0.9:
		return StrengthVeryStrong
	case a >= 0.7:
		return StrengthStrong
	case a >= 0.5:
		return StrengthModerate
	case a >= 0.3:
		return StrengthWeak
	}
	return StrengthVeryWeak
}

func DirectionOf(r float64) Direction {
	switch {
	case r > 0:
		return DirectionPositive
	case r < 0:
		return DirectionNegative
	}
	return DirectionNone
}
