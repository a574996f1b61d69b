package biasgen

import (
	"fmt"
	"sort"
	"sync"
)

// Situation attaches side effects to an instance, e.g. forcing an exception
// path. The runner calls it once per iteration when the body binds a strategy
// and ignores anything it does.
type Situation[T Integer] interface {
	Apply(strategy string, params *Distribution[T], inst Instance[T])
}

// SituationFunc adapts a function to Situation.
type SituationFunc[T Integer] func(strategy string, params *Distribution[T], inst Instance[T])

// Apply implements Situation.
func (f SituationFunc[T]) Apply(strategy string, params *Distribution[T], inst Instance[T]) {
	f(strategy, params, inst)
}

// SituationRegistry dispatches situations by strategy name.
// It implements Situation itself and is safe for concurrent use.
type SituationRegistry[T Integer] struct {
	mu       sync.RWMutex
	handlers map[string]Situation[T]
	fallback Situation[T]
}

// NewSituationRegistry creates an empty registry.
func NewSituationRegistry[T Integer]() *SituationRegistry[T] {
	return &SituationRegistry[T]{
		handlers: make(map[string]Situation[T]),
	}
}

// Register adds a handler for strategy, replacing any previous one.
func (r *SituationRegistry[T]) Register(strategy string, s Situation[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strategy] = s
}

// SetFallback sets the handler used for unknown strategies.
func (r *SituationRegistry[T]) SetFallback(s Situation[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = s
}

// Lookup returns the handler registered for strategy.
func (r *SituationRegistry[T]) Lookup(strategy string) (Situation[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.handlers[strategy]
	return s, ok
}

// Strategies returns the registered strategy names, sorted.
func (r *SituationRegistry[T]) Strategies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// Check reports an error if strategy has neither a handler nor a fallback.
// Call it at template load time so a typo fails before the run starts.
func (r *SituationRegistry[T]) Check(strategy string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.handlers[strategy]; ok || r.fallback != nil {
		return nil
	}
	return fmt.Errorf("%w: no situation registered for strategy %q (have: %v)",
		ErrInvalidConfig, strategy, r.sortedLocked())
}

func (r *SituationRegistry[T]) sortedLocked() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply implements Situation. Unknown strategies go to the fallback, if any.
func (r *SituationRegistry[T]) Apply(strategy string, params *Distribution[T], inst Instance[T]) {
	r.mu.RLock()
	s, ok := r.handlers[strategy]
	if !ok {
		s = r.fallback
	}
	r.mu.RUnlock()

	if s != nil {
		s.Apply(strategy, params, inst)
	}
}
