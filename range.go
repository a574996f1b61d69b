package biasgen

import "fmt"

// Integer is the set of value types a distribution can produce.
//
// The target ISA width is picked by the caller: Distribution[int32] for a 32-bit
// register file, Distribution[uint64] for full unsigned 64-bit operands, and so on.
// Interval arithmetic is done in 64-bit two's complement, so every member of the
// set is handled without overflow.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Kind identifies the payload a Range carries.
type Kind uint8

const (
	KindConstant    Kind = iota // A single value
	KindInterval                // Inclusive [Low, High]
	KindDiscreteSet             // One of an ordered list of values
	KindNested                  // Another distribution
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindInterval:
		return "interval"
	case KindDiscreteSet:
		return "set"
	case KindNested:
		return "nested"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Range is one biased alternative of a Distribution.
//
// Ranges are plain values built with Value, Interval, Set and Nest. They are
// checked when handed to NewDistribution, not when built, so the builders can
// be used inline in a literal distribution.
type Range[T Integer] struct {
	kind   Kind
	value  T
	low    T
	high   T
	set    []T
	nested *Distribution[T]
	bias   uint64
}

// Value returns a Range that always yields v.
func Value[T Integer](v T, bias uint64) Range[T] {
	return Range[T]{kind: KindConstant, value: v, bias: bias}
}

// Interval returns a Range yielding values uniformly from [low, high].
func Interval[T Integer](low, high T, bias uint64) Range[T] {
	return Range[T]{kind: KindInterval, low: low, high: high, bias: bias}
}

// Set returns a Range yielding one of values, each equally likely.
// The slice is copied.
func Set[T Integer](bias uint64, values ...T) Range[T] {
	cp := make([]T, len(values))
	copy(cp, values)
	return Range[T]{kind: KindDiscreteSet, set: cp, bias: bias}
}

// Nest returns a Range that samples the already built distribution d.
func Nest[T Integer](d *Distribution[T], bias uint64) Range[T] {
	return Range[T]{kind: KindNested, nested: d, bias: bias}
}

// Kind reports the payload kind.
func (r Range[T]) Kind() Kind { return r.kind }

// Bias reports the relative weight.
func (r Range[T]) Bias() uint64 { return r.bias }

// Bounds reports the inclusive bounds of an interval range. For a constant both
// bounds equal its value.
func (r Range[T]) Bounds() (low, high T) {
	if r.kind == KindConstant {
		return r.value, r.value
	}
	return r.low, r.high
}

// Values returns a copy of a discrete set's members, or the single value of a
// constant.
func (r Range[T]) Values() []T {
	switch r.kind {
	case KindConstant:
		return []T{r.value}
	case KindDiscreteSet:
		cp := make([]T, len(r.set))
		copy(cp, r.set)
		return cp
	}
	return nil
}

// Nested returns the nested distribution, or nil.
func (r Range[T]) Nested() *Distribution[T] { return r.nested }

// Validate checks the payload. The returned error wraps ErrMalformedRange.
func (r Range[T]) Validate() error {
	if msg := r.problem(); msg != "" {
		return fmt.Errorf("%w: %s", ErrMalformedRange, msg)
	}
	return nil
}

func (r Range[T]) problem() string {
	switch r.kind {
	case KindConstant:
		return ""
	case KindInterval:
		if r.low > r.high {
			return fmt.Sprintf("interval low %d > high %d", r.low, r.high)
		}
		return ""
	case KindDiscreteSet:
		if len(r.set) == 0 {
			return "empty set"
		}
		return ""
	case KindNested:
		if !r.nested.built() {
			return "nested distribution is not built"
		}
		return ""
	default:
		return fmt.Sprintf("unknown kind %d", r.kind)
	}
}

// span returns high-low as an unsigned 64-bit width minus one. A result of
// ^uint64(0) means the interval covers all 2^64 values.
func (r Range[T]) span() uint64 {
	return uint64(r.high) - uint64(r.low)
}

func (r Range[T]) String() string {
	switch r.kind {
	case KindConstant:
		return fmt.Sprintf("value(%d)/%d", r.value, r.bias)
	case KindInterval:
		return fmt.Sprintf("interval[%d..%d]/%d", r.low, r.high, r.bias)
	case KindDiscreteSet:
		return fmt.Sprintf("set%v/%d", r.set, r.bias)
	case KindNested:
		return fmt.Sprintf("nested(%d ranges)/%d", r.nested.Len(), r.bias)
	}
	return r.kind.String()
}
