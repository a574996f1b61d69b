package biasgen

import (
	"fmt"
	"io"
	"math/bits"
	"sort"
)

// MaxNestingDepth bounds how many distributions may be stacked through Nest.
// A distribution without nested ranges has depth 1.
const MaxNestingDepth = 64

// CumulativeTable holds prefix sums of range biases.
//
// Range i owns the half-open draw interval [prefix[i-1], prefix[i]), with
// prefix[-1] = 0. Zero-bias ranges own an empty interval and are never located.
type CumulativeTable struct {
	prefix []uint64
	total  uint64
}

// Normalize builds the cumulative table for ranges.
//
// It fails with ErrDegenerateDistribution when the total bias is zero and with
// ErrSamplingOverflow when the sum does not fit in 64 bits. Both are reported as
// a *RangeError; an overflow names the range that pushed the sum past 2^64, a
// zero total has Index -1.
func Normalize[T Integer](ranges []Range[T]) (CumulativeTable, error) {
	if len(ranges) == 0 {
		return CumulativeTable{}, fmt.Errorf("%w: no ranges", ErrDegenerateDistribution)
	}

	prefix := make([]uint64, len(ranges))
	var total uint64
	for i, r := range ranges {
		sum, carry := bits.Add64(total, r.bias, 0)
		if carry != 0 {
			return CumulativeTable{}, &RangeError{
				Index: i,
				Kind:  r.kind,
				Err:   ErrSamplingOverflow,
				Msg:   fmt.Sprintf("bias %d pushes the total past 2^64", r.bias),
			}
		}
		total = sum
		prefix[i] = total
	}

	if total == 0 {
		return CumulativeTable{}, &RangeError{
			Index: -1,
			Err:   ErrDegenerateDistribution,
			Msg:   "every range has bias 0",
		}
	}

	return CumulativeTable{prefix: prefix, total: total}, nil
}

// Total returns the sum of all biases.
func (c CumulativeTable) Total() uint64 { return c.total }

// Len returns the number of ranges covered by the table.
func (c CumulativeTable) Len() int { return len(c.prefix) }

// Locate returns the index of the range whose interval contains draw.
// draw must be in [0, Total()).
func (c CumulativeTable) Locate(draw uint64) int {
	return sort.Search(len(c.prefix), func(i int) bool {
		return c.prefix[i] > draw
	})
}

// LocateLinear is the reference scan for Locate. Both always agree.
func (c CumulativeTable) LocateLinear(draw uint64) int {
	for i, p := range c.prefix {
		if draw < p {
			return i
		}
	}
	return len(c.prefix)
}

// Distribution is an immutable, ordered collection of biased ranges.
//
// Build one with NewDistribution. Distributions may be nested through Nest;
// since a nested reference must already be built, the resulting graph is
// always acyclic.
type Distribution[T Integer] struct {
	ranges []Range[T]
	table  CumulativeTable
	depth  int
}

// NewDistribution validates ranges, normalizes their biases and returns the
// built distribution.
//
// Errors: *RangeError wrapping ErrMalformedRange, ErrDegenerateDistribution,
// ErrSamplingOverflow or ErrNestingTooDeep.
func NewDistribution[T Integer](ranges ...Range[T]) (*Distribution[T], error) {
	depth := 1
	for i, r := range ranges {
		if msg := r.problem(); msg != "" {
			return nil, &RangeError{Index: i, Kind: r.kind, Err: ErrMalformedRange, Msg: msg}
		}
		if r.kind == KindNested && r.nested.depth+1 > depth {
			depth = r.nested.depth + 1
		}
	}
	if depth > MaxNestingDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds %d", ErrNestingTooDeep, depth, MaxNestingDepth)
	}

	table, err := Normalize(ranges)
	if err != nil {
		return nil, err
	}

	cp := make([]Range[T], len(ranges))
	copy(cp, ranges)

	return &Distribution[T]{ranges: cp, table: table, depth: depth}, nil
}

// MustDistribution is like NewDistribution but panics on error.
// Use it for literal distributions in test templates.
func MustDistribution[T Integer](ranges ...Range[T]) *Distribution[T] {
	d, err := NewDistribution(ranges...)
	if err != nil {
		panic(fmt.Sprintf("biasgen: %v", err))
	}
	return d
}

// Len returns the number of top-level ranges.
func (d *Distribution[T]) Len() int {
	if d == nil {
		return 0
	}
	return len(d.ranges)
}

// Range returns the i-th top-level range.
func (d *Distribution[T]) Range(i int) Range[T] { return d.ranges[i] }

// Depth returns the nesting depth; 1 for a flat distribution.
func (d *Distribution[T]) Depth() int { return d.depth }

// TotalBias returns the sum of top-level biases.
func (d *Distribution[T]) TotalBias() uint64 { return d.table.total }

// Table returns the cumulative table computed at construction.
func (d *Distribution[T]) Table() CumulativeTable { return d.table }

// Probability returns the selection probability of the i-th top-level range.
func (d *Distribution[T]) Probability(i int) float64 {
	return float64(d.ranges[i].bias) / float64(d.table.total)
}

// built reports whether d went through NewDistribution.
func (d *Distribution[T]) built() bool {
	return d != nil && d.table.total != 0
}

// Describe writes the distribution tree to w, one range per line with its
// absolute selection probability.
func Describe[T Integer](w io.Writer, d *Distribution[T]) {
	fmt.Fprintf(w, "distribution: depth %d, total bias %d\n", d.Depth(), d.TotalBias())
	describeLevel(w, d, "  ", 1.0)
}

func describeLevel[T Integer](w io.Writer, d *Distribution[T], indent string, share float64) {
	for i := 0; i < d.Len(); i++ {
		r := d.Range(i)
		p := share * d.Probability(i)
		fmt.Fprintf(w, "%s%-40s %7.3f%%\n", indent, r.String(), p*100)
		if r.Kind() == KindNested {
			describeLevel(w, r.Nested(), indent+"  ", p)
		}
	}
}
