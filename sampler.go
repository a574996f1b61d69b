package biasgen

import "fmt"

// Sampler turns distributions into concrete values.
//
// A Sampler owns its Source and holds no reference to any distribution. Two
// samplers built from the same seed and driven with the same sequence of
// Sample calls produce identical values. A Sampler is not safe for
// concurrent use; give every Runner its own.
type Sampler struct {
	src   Source
	draws uint64
}

// NewSampler wraps src.
func NewSampler(src Source) *Sampler {
	return &Sampler{src: src}
}

// NewSeededSampler returns a sampler over the default PCG source.
func NewSeededSampler(seed uint64) *Sampler {
	return NewSampler(NewPCGSource(seed))
}

// Source returns the underlying random source.
func (s *Sampler) Source() Source { return s.src }

// Draws returns how many values have been taken from the source.
func (s *Sampler) Draws() uint64 { return s.draws }

// Reseed resets the source and the draw counter.
func (s *Sampler) Reseed(seed uint64) {
	s.src.Seed(seed)
	s.draws = 0
}

func (s *Sampler) uniform(n uint64) uint64 {
	s.draws++
	return s.src.Uint64n(n)
}

// Sample draws one value from d.
//
// The walk through nested distributions is iterative; its length is bounded
// by MaxNestingDepth, which NewDistribution enforces. A nil or unbuilt
// distribution yields ErrDegenerateDistribution.
func Sample[T Integer](s *Sampler, d *Distribution[T]) (T, error) {
	v, _, err := SampleIndexed(s, d)
	return v, err
}

// SampleIndexed is like Sample and also reports which top-level range of d
// was selected. It consumes exactly the same draws as Sample.
func SampleIndexed[T Integer](s *Sampler, d *Distribution[T]) (T, int, error) {
	if !d.built() {
		var zero T
		return zero, -1, fmt.Errorf("%w: distribution was not built with NewDistribution", ErrDegenerateDistribution)
	}

	top := -1
	cur := d
	for {
		idx := cur.table.Locate(s.uniform(cur.table.total))
		if top < 0 {
			top = idx
		}
		r := cur.ranges[idx]

		switch r.kind {
		case KindConstant:
			return r.value, top, nil

		case KindInterval:
			span := r.span()
			if span == 0 {
				return r.low, top, nil
			}
			// span+1 wraps to 0 for a full 64-bit interval, which the
			// Source reads as the whole range.
			off := s.uniform(span + 1)
			return T(uint64(r.low) + off), top, nil

		case KindDiscreteSet:
			if len(r.set) == 1 {
				return r.set[0], top, nil
			}
			return r.set[s.uniform(uint64(len(r.set)))], top, nil

		case KindNested:
			cur = r.nested

		default:
			var zero T
			return zero, top, &RangeError{Index: idx, Kind: r.kind, Err: ErrMalformedRange}
		}
	}
}

// MustSample is like Sample but panics on error.
func MustSample[T Integer](s *Sampler, d *Distribution[T]) T {
	v, err := Sample(s, d)
	if err != nil {
		panic(fmt.Sprintf("biasgen: %v", err))
	}
	return v
}

// SampleN draws n values from d.
func SampleN[T Integer](s *Sampler, d *Distribution[T], n int) ([]T, error) {
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v, err := Sample(s, d)
		if err != nil {
			return out, fmt.Errorf("draw %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
