package biasgen

import (
	"errors"
	"math"
	"testing"
)

// remwOperands builds the operand distribution of the REMW template.
func remwOperands(t *testing.T) *Distribution[int64] {
	t.Helper()

	intDist, err := NewDistribution(
		Value[int64](0, 5),                 // Zero
		Value[int64](-1, 5),                // Small
		Interval[int64](0, 0xFFFFFFFF, 90), // Large
	)
	if err != nil {
		t.Fatalf("int_dist: %v", err)
	}

	operands, err := NewDistribution(
		Nest(intDist, 80),                     // Simple
		Set[int64](20, 0xDEADBEEF, 0xBADF00D), // Magic
	)
	if err != nil {
		t.Fatalf("operands: %v", err)
	}
	return operands
}

func TestSample_ConstantEquivalents(t *testing.T) {
	s := NewSeededSampler(7)
	point := MustDistribution(Interval[int64](-42, -42, 1))
	single := MustDistribution(Set[int64](1, 0x55))

	for i := 0; i < 1000; i++ {
		if v := MustSample(s, point); v != -42 {
			t.Fatalf("Interval[-42,-42] produced %d", v)
		}
		if v := MustSample(s, single); v != 0x55 {
			t.Fatalf("Set{0x55} produced %#x", v)
		}
	}

	t.Logf("✓ Constant-equivalent ranges stable over 1000 draws")
}

func TestSample_BiasProportions(t *testing.T) {
	d := MustDistribution(
		Value[int32](1, 10),
		Value[int32](2, 20),
		Value[int32](3, 0), // Unreachable
		Interval[int32](100, 200, 30),
		Set[int32](40, 7, 8, 9),
	)

	AssertBiasProportions(t, d, DefaultAssertionConfig())
}

func TestSample_ZeroBiasUnreachable(t *testing.T) {
	d := MustDistribution(
		Value[uint8](1, 0),
		Value[uint8](2, 1),
		Value[uint8](3, 0),
	)
	s := NewSeededSampler(3)
	for i := 0; i < 10000; i++ {
		if v := MustSample(s, d); v != 2 {
			t.Fatalf("Zero-bias range selected: got %d at draw %d", v, i)
		}
	}
}

func TestSample_Interval32Coverage(t *testing.T) {
	d := MustDistribution(Interval[uint64](0, math.MaxUint32, 1))
	s := NewSeededSampler(11)

	const draws = 160000
	buckets := NewTally(16)
	var upper uint64
	for i := 0; i < draws; i++ {
		v := MustSample(s, d)
		if v > math.MaxUint32 {
			t.Fatalf("Value %#x outside [0, 2^32-1]", v)
		}
		if v >= 1<<31 {
			upper++
		}
		buckets.Add(int(v >> 28))
	}

	AssertShare(t, "upper half", upper, draws, 0.5, 0.01)

	weights := make([]float64, 16)
	for i := range weights {
		weights[i] = 1
	}
	AssertFrequencies(t, buckets.Counts(), weights, DefaultAssertionConfig())
}

func TestSample_Full64BitRange(t *testing.T) {
	const draws = 100000

	unsigned := MustDistribution(Interval[uint64](0, math.MaxUint64, 1))
	signed := MustDistribution(Interval[int64](math.MinInt64, math.MaxInt64, 1))
	s := NewSeededSampler(99)

	var topBit, negative uint64
	quarters := NewTally(4)
	for i := 0; i < draws; i++ {
		u := MustSample(s, unsigned)
		if u>>63 == 1 {
			topBit++
		}
		quarters.Add(int(u >> 62))

		if MustSample(s, signed) < 0 {
			negative++
		}
	}

	AssertShare(t, "uint64 top bit set", topBit, draws, 0.5, 0.01)
	AssertShare(t, "int64 negative", negative, draws, 0.5, 0.01)
	AssertFrequencies(t, quarters.Counts(), []float64{1, 1, 1, 1}, DefaultAssertionConfig())
}

func TestSample_NarrowSignedInterval(t *testing.T) {
	d := MustDistribution(Interval[int8](-128, 127, 1))
	s := NewSeededSampler(5)

	tally := NewTally(256)
	for i := 0; i < 256*400; i++ {
		v := MustSample(s, d)
		tally.Add(int(v) + 128)
	}

	weights := make([]float64, 256)
	for i := range weights {
		weights[i] = 1
	}
	AssertFrequencies(t, tally.Counts(), weights, DefaultAssertionConfig())
}

func TestSample_Nesting(t *testing.T) {
	leaf := MustDistribution(
		Value[uint32](1, 1),
		Value[uint32](2, 1),
	)

	d := leaf
	for level := 2; level <= 8; level++ {
		d = MustDistribution(
			Nest(d, 3),
			Value[uint32](uint32(level*100), 1),
		)
	}
	if d.Depth() != 8 {
		t.Fatalf("Expected depth 8, got %d", d.Depth())
	}

	s := NewSeededSampler(13)
	seen := make(map[uint32]int)
	for i := 0; i < 20000; i++ {
		seen[MustSample(s, d)]++
	}

	for _, want := range []uint32{1, 2, 200, 800} {
		if seen[want] == 0 {
			t.Errorf("Value %d never produced through 8 levels of nesting", want)
		}
	}

	// Deepest chain allowed must still sample without recursion.
	deep := MustDistribution(Value[uint32](77, 1))
	for deep.Depth() < MaxNestingDepth {
		deep = MustDistribution(Nest(deep, 1))
	}
	if v := MustSample(s, deep); v != 77 {
		t.Errorf("Depth-%d chain produced %d, want 77", MaxNestingDepth, v)
	}

	PrintDistribution(t, MustDistribution(Nest(leaf, 1), Value[uint32](9, 1)))
	t.Logf("✓ Nested sampling: %d distinct values", len(seen))
}

func TestSample_Unbuilt(t *testing.T) {
	s := NewSeededSampler(1)

	if _, err := Sample[int64](s, nil); !errors.Is(err, ErrDegenerateDistribution) {
		t.Errorf("nil distribution: expected ErrDegenerateDistribution, got %v", err)
	}
	if _, err := Sample(s, &Distribution[int64]{}); !errors.Is(err, ErrDegenerateDistribution) {
		t.Errorf("zero distribution: expected ErrDegenerateDistribution, got %v", err)
	}
}

func TestSample_Determinism(t *testing.T) {
	d := remwOperands(t)
	AssertDeterministic(t, d, 50000, DefaultAssertionConfig())

	// Different seeds should disagree somewhere early.
	a, b := NewSeededSampler(1), NewSeededSampler(2)
	same := 0
	for i := 0; i < 100; i++ {
		if MustSample(a, d) == MustSample(b, d) {
			same++
		}
	}
	if same == 100 {
		t.Error("Seeds 1 and 2 produced identical streams")
	}
}

func TestSampler_Reseed(t *testing.T) {
	d := remwOperands(t)
	s := NewSeededSampler(21)
	first, err := SampleN(s, d, 100)
	if err != nil {
		t.Fatalf("SampleN failed: %v", err)
	}
	if s.Draws() == 0 {
		t.Fatal("Draw counter did not advance")
	}

	s.Reseed(21)
	if s.Draws() != 0 {
		t.Errorf("Reseed did not reset draw counter: %d", s.Draws())
	}
	second, _ := SampleN(s, d, 100)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Replay diverged at %d: %d != %d", i, first[i], second[i])
		}
	}
}

// TestSample_RemwScenario follows the REMW template: 80% simple operands
// (zero 5%, minus one 5%, 32-bit large 90%) and 20% magic constants.
func TestSample_RemwScenario(t *testing.T) {
	d := remwOperands(t)
	s := NewSeededSampler(2024)

	const draws = 10000
	var zero, minusOne, magic, large uint64
	var magicA, magicB uint64
	buckets := NewTally(16)

	for i := 0; i < draws; i++ {
		v, err := Sample(s, d)
		if err != nil {
			t.Fatalf("Draw %d failed: %v", i, err)
		}
		switch {
		case v == 0xDEADBEEF:
			magic++
			magicA++
		case v == 0xBADF00D:
			magic++
			magicB++
		case v == 0:
			zero++
		case v == -1:
			minusOne++
		case v > 0 && v <= 0xFFFFFFFF:
			large++
			buckets.Add(int(v >> 28))
		default:
			t.Fatalf("Value %#x outside every range", v)
		}
	}

	AssertShare(t, "magic", magic, draws, 0.20, 0.02)
	AssertShare(t, "zero", zero, draws, 0.04, 0.01)
	AssertShare(t, "minus one", minusOne, draws, 0.04, 0.01)
	AssertShare(t, "large", large, draws, 0.72, 0.02)
	AssertFrequencies(t, []uint64{magicA, magicB}, []float64{1, 1}, DefaultAssertionConfig())

	weights := make([]float64, 16)
	for i := range weights {
		weights[i] = 1
	}
	AssertFrequencies(t, buckets.Counts(), weights, DefaultAssertionConfig())
}

func TestSample_LCG48Source(t *testing.T) {
	d := MustDistribution(
		Value[int64](0, 1),
		Interval[int64](0, math.MaxInt64, 3),
	)

	cfg := DefaultAssertionConfig()
	s := NewSampler(NewLCG48Source(cfg.Seed))
	tally := NewTally(d.Len())
	var high uint64
	for i := 0; i < cfg.Draws; i++ {
		v, idx, err := SampleIndexed(s, d)
		if err != nil {
			t.Fatalf("Draw %d failed: %v", i, err)
		}
		tally.Add(idx)
		if idx == 1 && v >= 1<<62 {
			high++
		}
	}

	AssertFrequencies(t, tally.Counts(), []float64{1, 3}, cfg)
	AssertShare(t, "upper half of [0, 2^63)", high, tally.Counts()[1], 0.5, 0.01)
}

func TestSampleIndexed_MatchesSample(t *testing.T) {
	d := remwOperands(t)
	a, b := NewSeededSampler(8), NewSeededSampler(8)
	for i := 0; i < 1000; i++ {
		va := MustSample(a, d)
		vb, idx, err := SampleIndexed(b, d)
		if err != nil {
			t.Fatalf("SampleIndexed failed: %v", err)
		}
		if va != vb {
			t.Fatalf("Streams diverged at %d", i)
		}
		if idx != 0 && idx != 1 {
			t.Fatalf("Top index %d out of range", idx)
		}
	}
	if a.Draws() != b.Draws() {
		t.Errorf("Draw counts differ: %d vs %d", a.Draws(), b.Draws())
	}
}
