package sink

import (
	"context"
	"fmt"

	"github.com/alexshd/biasgen"
)

// Tee forwards every instance to several emitters in order and stops at the
// first failure.
type Tee[T biasgen.Integer] struct {
	emitters []biasgen.Emitter[T]
}

// NewTee returns a Tee over emitters. Nil emitters are dropped.
func NewTee[T biasgen.Integer](emitters ...biasgen.Emitter[T]) *Tee[T] {
	t := &Tee[T]{}
	for _, e := range emitters {
		if e != nil {
			t.emitters = append(t.emitters, e)
		}
	}
	return t
}

// Emit implements biasgen.Emitter.
func (t *Tee[T]) Emit(ctx context.Context, inst biasgen.Instance[T]) error {
	for i, e := range t.emitters {
		if err := e.Emit(ctx, inst); err != nil {
			return fmt.Errorf("sink %d (%T): %w", i, e, err)
		}
	}
	return nil
}

// Len returns the number of emitters.
func (t *Tee[T]) Len() int { return len(t.emitters) }
