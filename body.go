package biasgen

import (
	"fmt"
	"strings"
)

// Slot is a named parameter of a SequenceBody bound to a distribution.
type Slot[T Integer] struct {
	Name string
	Dist *Distribution[T]
}

// SituationBinding attaches a named situation strategy to a body.
type SituationBinding[T Integer] struct {
	Strategy string
	Params   *Distribution[T]
}

// SequenceBody declares one parameterized unit of test work, e.g. "remw
// consumes three independently sampled operands". It is never evaluated by
// itself; a Runner instantiates it once per iteration.
type SequenceBody[T Integer] struct {
	op        string
	slots     []Slot[T]
	situation *SituationBinding[T]
	trailer   []string
}

// NewSequenceBody validates slots and returns the body for op.
// Slot names must be unique and non-empty and every slot needs a built
// distribution.
func NewSequenceBody[T Integer](op string, slots ...Slot[T]) (*SequenceBody[T], error) {
	if op == "" {
		return nil, fmt.Errorf("%w: empty operation name", ErrInvalidConfig)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: %s declares no slots", ErrInvalidConfig, op)
	}

	seen := make(map[string]bool, len(slots))
	for i, s := range slots {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: slot %d of %s has no name", ErrInvalidConfig, i, op)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: duplicate slot %q in %s", ErrInvalidConfig, s.Name, op)
		}
		seen[s.Name] = true
		if !s.Dist.built() {
			return nil, fmt.Errorf("slot %q of %s: %w", s.Name, op, ErrDegenerateDistribution)
		}
	}

	cp := make([]Slot[T], len(slots))
	copy(cp, slots)
	return &SequenceBody[T]{op: op, slots: cp}, nil
}

// WithSituation binds a situation strategy. params may be nil when the
// strategy takes no distribution.
func (b *SequenceBody[T]) WithSituation(strategy string, params *Distribution[T]) (*SequenceBody[T], error) {
	if strategy == "" {
		return nil, fmt.Errorf("%w: empty situation strategy", ErrInvalidConfig)
	}
	if params != nil && !params.built() {
		return nil, fmt.Errorf("situation %q: %w", strategy, ErrDegenerateDistribution)
	}
	nb := *b
	nb.situation = &SituationBinding[T]{Strategy: strategy, Params: params}
	return &nb, nil
}

// WithTrailer appends fixed operations emitted after every instance, such as
// the nop used as an exception return point.
func (b *SequenceBody[T]) WithTrailer(ops ...string) *SequenceBody[T] {
	nb := *b
	nb.trailer = append(append([]string(nil), b.trailer...), ops...)
	return &nb
}

// Op returns the symbolic operation name.
func (b *SequenceBody[T]) Op() string { return b.op }

// Slots returns a copy of the declared slots, in order.
func (b *SequenceBody[T]) Slots() []Slot[T] {
	cp := make([]Slot[T], len(b.slots))
	copy(cp, b.slots)
	return cp
}

// Situation returns the bound situation, or nil.
func (b *SequenceBody[T]) Situation() *SituationBinding[T] { return b.situation }

// Trailer returns the fixed trailing operations.
func (b *SequenceBody[T]) Trailer() []string { return append([]string(nil), b.trailer...) }

// Binding is one sampled slot of an Instance.
type Binding[T Integer] struct {
	Slot     string `json:"slot" yaml:"slot"`
	Register string `json:"register,omitempty" yaml:"register,omitempty"`
	Value    T      `json:"value" yaml:"value"`
}

// Instance is one concrete instantiation of a SequenceBody.
type Instance[T Integer] struct {
	Iteration uint64       `json:"iteration"`
	Op        string       `json:"op"`
	Bindings  []Binding[T] `json:"bindings"`
	Trailer   []string     `json:"trailer,omitempty"`
}

// Value returns the value sampled for slot.
func (in Instance[T]) Value(slot string) (T, bool) {
	for _, b := range in.Bindings {
		if b.Slot == slot {
			return b.Value, true
		}
	}
	var zero T
	return zero, false
}

// Values returns the slot -> value mapping.
func (in Instance[T]) Values() map[string]T {
	m := make(map[string]T, len(in.Bindings))
	for _, b := range in.Bindings {
		m[b.Slot] = b.Value
	}
	return m
}

// String renders the instance as an assembly-like line, e.g.
// "remw x5=0x0, x7=0xffffffffffffffff".
func (in Instance[T]) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op)
	for i, b := range in.Bindings {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		name := b.Register
		if name == "" {
			name = b.Slot
		}
		fmt.Fprintf(&sb, "%s=%#x", name, uint64(b.Value))
	}
	return sb.String()
}
