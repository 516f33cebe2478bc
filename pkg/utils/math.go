package utils

import (
	"math"
	"time"
)

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// DownsideDeviation returns the standard deviation of values below target.
// Values at or above target contribute zero, but still count toward n.
func DownsideDeviation(values []float64, target float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		if v < target {
			d := v - target
			sumSq += d * d
		}
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// Correlation returns the Pearson correlation coefficient of two equal-length
// series. Returns 0 when either series has zero variance or lengths differ.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0
	}

	meanA := Mean(a)
	meanB := Mean(b)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// SimpleReturns converts a price series into per-step simple returns.
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
	return returns
}

// TicksPerYear derives an annualization factor from the spacing between
// simulation ticks. Defaults to 252 (daily trading calendar) when the
// interval is unknown or non-positive.
func TicksPerYear(interval time.Duration) float64 {
	if interval <= 0 {
		return 252
	}
	switch {
	case interval >= 20*time.Hour && interval <= 28*time.Hour:
		return 252
	case interval >= 6*24*time.Hour:
		return 52
	default:
		year := 365.25 * 24 * time.Hour
		return float64(year) / float64(interval)
	}
}

// IsFinite reports whether v is a usable price (finite and not NaN).
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
