package biasgen

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestNewDistribution_Valid(t *testing.T) {
	d, err := NewDistribution(
		Value[int64](0, 5),
		Value[int64](-1, 5),
		Interval[int64](0, 0xFFFFFFFF, 90),
	)
	if err != nil {
		t.Fatalf("NewDistribution failed: %v", err)
	}

	if d.Len() != 3 {
		t.Errorf("Expected 3 ranges, got %d", d.Len())
	}
	if d.TotalBias() != 100 {
		t.Errorf("Expected total bias 100, got %d", d.TotalBias())
	}
	if d.Depth() != 1 {
		t.Errorf("Expected depth 1, got %d", d.Depth())
	}
	if p := d.Probability(2); math.Abs(p-0.90) > 1e-12 {
		t.Errorf("Expected P(large) = 0.90, got %f", p)
	}

	t.Logf("✓ Built %d ranges, total bias %d", d.Len(), d.TotalBias())
}

func TestNewDistribution_Degenerate(t *testing.T) {
	_, err := NewDistribution(
		Value[int32](1, 0),
		Interval[int32](0, 10, 0),
	)
	if !errors.Is(err, ErrDegenerateDistribution) {
		t.Fatalf("Expected ErrDegenerateDistribution, got %v", err)
	}

	var rerr *RangeError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected *RangeError, got %T", err)
	}
	if rerr.Index != -1 {
		t.Errorf("All-zero biases are not one range's fault, got index %d", rerr.Index)
	}
	if !strings.Contains(err.Error(), "distribution") || strings.Contains(err.Error(), "range 1") {
		t.Errorf("Unexpected message: %v", err)
	}

	t.Logf("✓ Correctly rejected: %v", err)
}

func TestNewDistribution_NoRanges(t *testing.T) {
	_, err := NewDistribution[uint8]()
	if !errors.Is(err, ErrDegenerateDistribution) {
		t.Fatalf("Expected ErrDegenerateDistribution, got %v", err)
	}
}

func TestNewDistribution_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		r     Range[int64]
		index int
	}{
		{"InvertedInterval", Interval[int64](10, -10, 1), 1},
		{"EmptySet", Set[int64](1), 1},
		{"NilNested", Nest[int64](nil, 1), 1},
		{"UnbuiltNested", Nest(&Distribution[int64]{}, 1), 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDistribution(Value[int64](0, 1), tc.r)
			if !errors.Is(err, ErrMalformedRange) {
				t.Fatalf("Expected ErrMalformedRange, got %v", err)
			}

			var rerr *RangeError
			if !errors.As(err, &rerr) {
				t.Fatalf("Expected *RangeError, got %T", err)
			}
			if rerr.Index != tc.index {
				t.Errorf("Expected offending index %d, got %d", tc.index, rerr.Index)
			}
			if rerr.Kind != tc.r.Kind() {
				t.Errorf("Expected kind %s, got %s", tc.r.Kind(), rerr.Kind)
			}

			t.Logf("✓ Correctly rejected: %v", err)
		})
	}
}

func TestRange_Validate(t *testing.T) {
	if err := Interval[uint16](3, 3, 1).Validate(); err != nil {
		t.Errorf("Single-point interval rejected: %v", err)
	}
	if err := Set[uint16](0, 7).Validate(); err != nil {
		t.Errorf("Zero-bias set rejected: %v", err)
	}
	if err := Interval[uint16](4, 3, 1).Validate(); !errors.Is(err, ErrMalformedRange) {
		t.Errorf("Expected ErrMalformedRange, got %v", err)
	}
}

func TestNormalize_Overflow(t *testing.T) {
	_, err := NewDistribution(
		Value[uint64](1, math.MaxUint64),
		Value[uint64](2, 0),
		Value[uint64](3, 1),
	)
	if !errors.Is(err, ErrSamplingOverflow) {
		t.Fatalf("Expected ErrSamplingOverflow, got %v", err)
	}

	var rerr *RangeError
	if !errors.As(err, &rerr) || rerr.Index != 2 {
		t.Fatalf("Expected overflow reported at range 2, got %v", err)
	}

	// The largest representable total is fine.
	if _, err := NewDistribution(Value[uint64](1, math.MaxUint64-1), Value[uint64](2, 1)); err != nil {
		t.Errorf("Total of 2^64-1 rejected: %v", err)
	}

	t.Logf("✓ Overflow diagnosed: %v", err)
}

func TestNewDistribution_NestingDepth(t *testing.T) {
	d := MustDistribution(Value[int16](7, 1))
	for depth := 2; depth <= MaxNestingDepth; depth++ {
		next, err := NewDistribution(Nest(d, 1))
		if err != nil {
			t.Fatalf("Depth %d rejected: %v", depth, err)
		}
		d = next
	}
	if d.Depth() != MaxNestingDepth {
		t.Fatalf("Expected depth %d, got %d", MaxNestingDepth, d.Depth())
	}

	_, err := NewDistribution(Nest(d, 1))
	if !errors.Is(err, ErrNestingTooDeep) {
		t.Fatalf("Expected ErrNestingTooDeep, got %v", err)
	}

	t.Logf("✓ Depth capped at %d: %v", MaxNestingDepth, err)
}

func TestNewDistribution_CopiesRanges(t *testing.T) {
	ranges := []Range[int64]{Value[int64](1, 1), Value[int64](2, 1)}
	d := MustDistribution(ranges...)
	ranges[0] = Value[int64](99, 100)

	if v := d.Range(0).Values()[0]; v != 1 {
		t.Errorf("Distribution changed after construction: got %d", v)
	}
}

func TestMustDistribution_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustDistribution did not panic on degenerate input")
		}
	}()
	MustDistribution(Value[int64](1, 0))
}

func TestCumulativeTable_Locate(t *testing.T) {
	table, err := Normalize([]Range[int64]{
		Value[int64](0, 3),
		Value[int64](1, 0), // Unreachable
		Value[int64](2, 2),
		Value[int64](3, 0), // Unreachable
		Value[int64](4, 5),
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	want := []int{0, 0, 0, 2, 2, 4, 4, 4, 4, 4}
	if table.Total() != uint64(len(want)) {
		t.Fatalf("Expected total %d, got %d", len(want), table.Total())
	}

	for draw, idx := range want {
		if got := table.Locate(uint64(draw)); got != idx {
			t.Errorf("Locate(%d) = %d, want %d", draw, got, idx)
		}
		if got := table.LocateLinear(uint64(draw)); got != idx {
			t.Errorf("LocateLinear(%d) = %d, want %d", draw, got, idx)
		}
	}
}

func TestDescribe(t *testing.T) {
	d := MustDistribution(
		Nest(MustDistribution(Value[int64](0, 1), Value[int64](-1, 1)), 80),
		Set[int64](20, 0xDEADBEEF),
	)

	var sb strings.Builder
	Describe(&sb, d)
	out := sb.String()

	for _, want := range []string{"depth 2", "total bias 100", "80.000%", "40.000%", "20.000%"} {
		if !strings.Contains(out, want) {
			t.Errorf("Describe output missing %q:\n%s", want, out)
		}
	}
}
