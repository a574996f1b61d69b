package biasgen

import (
	"fmt"
	"math"
)

// Tally counts how often each of a fixed number of classes was observed.
type Tally struct {
	counts []uint64
	total  uint64
}

// NewTally creates a tally over classes [0, classes).
func NewTally(classes int) *Tally {
	return &Tally{counts: make([]uint64, classes)}
}

// Add records one observation of class. Out-of-range classes panic.
func (t *Tally) Add(class int) {
	t.counts[class]++
	t.total++
}

// Total returns the number of observations.
func (t *Tally) Total() uint64 { return t.total }

// Counts returns a copy of the per-class counts.
func (t *Tally) Counts() []uint64 {
	cp := make([]uint64, len(t.counts))
	copy(cp, t.counts)
	return cp
}

// Frequency returns the observed share of class.
func (t *Tally) Frequency(class int) float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.counts[class]) / float64(t.total)
}

// ChiSquare returns Pearson's statistic of the tally against weights.
// See ChiSquare.
func (t *Tally) ChiSquare(weights []float64) (stat float64, df int, err error) {
	return ChiSquare(t.counts, weights)
}

// ChiSquare computes Pearson's χ² statistic of observed counts against relative
// weights. Classes with zero weight must have zero observations and do not
// count toward the degrees of freedom.
//
//	χ² = Σ (O_i - E_i)² / E_i,  E_i = N · w_i / Σw
func ChiSquare(observed []uint64, weights []float64) (stat float64, df int, err error) {
	if len(observed) != len(weights) {
		return 0, 0, fmt.Errorf("chi-square: %d observed classes, %d weights", len(observed), len(weights))
	}

	var n, wsum float64
	for i := range observed {
		if weights[i] < 0 {
			return 0, 0, fmt.Errorf("chi-square: negative weight %g for class %d", weights[i], i)
		}
		n += float64(observed[i])
		wsum += weights[i]
	}
	if wsum == 0 || n == 0 {
		return 0, 0, fmt.Errorf("chi-square: empty sample or zero total weight")
	}

	classes := 0
	for i, o := range observed {
		if weights[i] == 0 {
			if o != 0 {
				return math.Inf(1), 0, nil
			}
			continue
		}
		classes++
		expected := n * weights[i] / wsum
		diff := float64(o) - expected
		stat += diff * diff / expected
	}

	return stat, classes - 1, nil
}

// ChiSquareCritical returns the upper critical value of the χ² distribution
// with df degrees of freedom at significance alpha (e.g. 0.001), using the
// Wilson–Hilferty approximation:
//
//	χ²_crit ≈ df · (1 - 2/(9df) + z·sqrt(2/(9df)))³,  z = Φ⁻¹(1 - alpha)
func ChiSquareCritical(df int, alpha float64) float64 {
	if df <= 0 {
		return 0
	}
	z := math.Sqrt2 * math.Erfinv(1-2*alpha)
	k := float64(df)
	h := 2 / (9 * k)
	c := 1 - h + z*math.Sqrt(h)
	return k * c * c * c
}
