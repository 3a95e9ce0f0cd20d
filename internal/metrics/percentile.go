package metrics

import (
	"errors"
	"sort"
)

// ErrNoSamples is returned when a percentile is requested over an empty set.
var ErrNoSamples = errors.New("metrics: no latency samples recorded")

// Percentile returns the linearly-interpolated percentile p (in [0,1]) of an
// unordered sample set. It sorts a copy, computes rank = (N-1)*p + 1 and
// interpolates between the neighboring order statistics on the fractional
// part. p=0 yields the minimum, p=1 the maximum; a single sample answers
// every p. Out-of-range p is clamped.
func Percentile(samples []float64, p float64) (float64, error) {
	n := len(samples)
	if n == 0 {
		return 0, ErrNoSamples
	}
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}

	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	if n == 1 {
		return sorted[0], nil
	}

	rank := float64(n-1)*p + 1
	lo := int(rank) // 1-based floor
	frac := rank - float64(lo)
	if lo >= n {
		return sorted[n-1], nil
	}
	lower := sorted[lo-1]
	upper := sorted[lo]
	return lower + frac*(upper-lower), nil
}
