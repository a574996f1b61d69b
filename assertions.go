package biasgen

import (
	"strings"
	"testing"
)

// AssertionConfig contains thresholds for distribution properties.
type AssertionConfig struct {
	// Draws taken per check
	Draws int

	// Significance level of the χ² test (reject when p < Alpha)
	Alpha float64

	// Seed for the sampler used by the check
	Seed uint64
}

// DefaultAssertionConfig returns conservative thresholds.
func DefaultAssertionConfig() AssertionConfig {
	return AssertionConfig{
		Draws: 100000, // Enough for ±1% on a 20% share
		Alpha: 0.001,  // 99.9% confidence
		Seed:  1,
	}
}

// AssertFrequencies verifies observed counts fit weights with a χ² test.
func AssertFrequencies(t *testing.T, observed []uint64, weights []float64, cfg AssertionConfig) {
	t.Helper()

	stat, df, err := ChiSquare(observed, weights)
	if err != nil {
		t.Fatalf("Failed to compute χ²: %v", err)
	}

	critical := ChiSquareCritical(df, cfg.Alpha)
	if stat > critical {
		t.Errorf("Frequencies do not match weights: χ² = %.3f > %.3f (df=%d, α=%g)\n"+
			"observed=%v weights=%v", stat, critical, df, cfg.Alpha, observed, weights)
		return
	}

	t.Logf("✓ Frequencies fit weights: χ² = %.3f ≤ %.3f (df=%d, α=%g)", stat, critical, df, cfg.Alpha)
}

// AssertBiasProportions samples d and verifies that each top-level range is
// selected in proportion to its bias.
//
// Mathematical property:
//
//	P(range i) = bias_i / Σ bias_j
func AssertBiasProportions[T Integer](t *testing.T, d *Distribution[T], cfg AssertionConfig) {
	t.Helper()

	s := NewSeededSampler(cfg.Seed)
	tally := NewTally(d.Len())
	for i := 0; i < cfg.Draws; i++ {
		_, idx, err := SampleIndexed(s, d)
		if err != nil {
			t.Fatalf("Sampling failed at draw %d: %v", i, err)
		}
		tally.Add(idx)
	}

	weights := make([]float64, d.Len())
	for i := range weights {
		weights[i] = float64(d.Range(i).Bias())
	}

	AssertFrequencies(t, tally.Counts(), weights, cfg)
}

// AssertDeterministic verifies that two samplers seeded alike produce the same
// n values from d.
func AssertDeterministic[T Integer](t *testing.T, d *Distribution[T], n int, cfg AssertionConfig) {
	t.Helper()

	a := NewSeededSampler(cfg.Seed)
	b := NewSeededSampler(cfg.Seed)
	for i := 0; i < n; i++ {
		va, err := Sample(a, d)
		if err != nil {
			t.Fatalf("Sampling failed at draw %d: %v", i, err)
		}
		vb, err := Sample(b, d)
		if err != nil {
			t.Fatalf("Sampling failed at draw %d: %v", i, err)
		}
		if va != vb {
			t.Fatalf("Streams diverged at draw %d: %d != %d (seed %d)", i, va, vb, cfg.Seed)
		}
	}

	t.Logf("✓ Deterministic: %d identical draws (seed %d)", n, cfg.Seed)
}

// AssertShare verifies that got/total is within tol of want.
func AssertShare(t *testing.T, label string, got, total uint64, want, tol float64) {
	t.Helper()

	share := float64(got) / float64(total)
	if share < want-tol || share > want+tol {
		t.Errorf("%s: share %.4f outside %.4f ± %.4f (%d/%d)", label, share, want, tol, got, total)
		return
	}
	t.Logf("✓ %s: %.4f (want %.4f ± %.4f)", label, share, want, tol)
}

// PrintDistribution writes the distribution tree to the test log.
func PrintDistribution[T Integer](t *testing.T, d *Distribution[T]) {
	t.Helper()

	var sb strings.Builder
	Describe(&sb, d)
	t.Logf("\n%s", sb.String())
}
