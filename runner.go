package biasgen

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RunState is the lifecycle state of a Runner.
type RunState string

const (
	StateIdle      RunState = "IDLE"      // Built, not started
	StateRunning   RunState = "RUNNING"   // Inside Run
	StateCompleted RunState = "COMPLETED" // Every iteration was processed
	StateCancelled RunState = "CANCELLED" // Stopped early by Cancel or the context
	StateFailed    RunState = "FAILED"    // Aborted by a sampling, allocation or emission error
)

// ErrorPolicy decides what happens when the emitter fails.
type ErrorPolicy string

const (
	OnErrorAbort ErrorPolicy = "abort" // Stop on the first emission error (default)
	OnErrorSkip  ErrorPolicy = "skip"  // Record the error and continue
)

// ParseErrorPolicy parses "abort" or "skip".
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(s); p {
	case OnErrorAbort, OnErrorSkip:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown emission error policy %q (want abort or skip)", ErrInvalidConfig, s)
}

// maxRecordedErrors caps Result.Errors under OnErrorSkip; Result.Skipped
// keeps counting past it.
const maxRecordedErrors = 64

// Config controls a run.
type Config struct {
	Name            string       // Label used in logs and results
	Iterations      uint64       // Instances to produce, must be > 0
	Seed            uint64       // Seed of the default sampler
	OnEmissionError ErrorPolicy  // Abort or skip on emitter failure
	LatencyWindow   int          // Emission latency samples kept (0 = 1024)
	Logger          *slog.Logger // nil discards logs
}

// DefaultConfig returns the settings used by the reference templates.
func DefaultConfig() Config {
	return Config{
		Iterations:      10000,
		Seed:            1,
		OnEmissionError: OnErrorAbort,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Iterations == 0 {
		return fmt.Errorf("%w: iteration count must be positive", ErrInvalidConfig)
	}
	if _, err := ParseErrorPolicy(string(c.OnEmissionError)); err != nil {
		return err
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Emitter receives every concrete instance, typically to turn it into code
// or to capture it for regression.
type Emitter[T Integer] interface {
	Emit(ctx context.Context, inst Instance[T]) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc[T Integer] func(ctx context.Context, inst Instance[T]) error

// Emit implements Emitter.
func (f EmitterFunc[T]) Emit(ctx context.Context, inst Instance[T]) error { return f(ctx, inst) }

// Allocator names the register bound to a slot, e.g. a FREE register policy.
// It is called once per slot per iteration, in slot order.
type Allocator interface {
	Allocate(slot string) (string, error)
}

// Option configures a Runner.
type Option[T Integer] func(*Runner[T])

// WithSituation sets the handler invoked when the body binds a strategy.
func WithSituation[T Integer](s Situation[T]) Option[T] {
	return func(r *Runner[T]) { r.situation = s }
}

// WithAllocator sets the register allocator.
func WithAllocator[T Integer](a Allocator) Option[T] {
	return func(r *Runner[T]) { r.allocator = a }
}

// WithSampler replaces the default seeded sampler, e.g. to use NewLCG48Source.
func WithSampler[T Integer](s *Sampler) Option[T] {
	return func(r *Runner[T]) { r.sampler = s }
}

// Result reports the outcome of a run.
type Result struct {
	Name       string
	State      RunState
	Iterations uint64        // Iterations processed (emitted + skipped)
	Emitted    uint64        // Instances accepted by the emitter
	Skipped    uint64        // Instances the emitter rejected under OnErrorSkip
	Errors     []error       // First emission errors under OnErrorSkip
	Draws      uint64        // Values taken from the random source
	Duration   time.Duration // Wall time of Run
	Emission   LatencyStats  // Latency of Emit calls
}

// Runner repeatedly instantiates a SequenceBody and emits the instances.
//
// State machine: Idle -> Running -> Completed | Cancelled | Failed.
// A Runner runs once. Sampling inside a run is strictly sequential; run
// independent runners concurrently with RunParallel.
type Runner[T Integer] struct {
	mu        sync.Mutex
	state     RunState
	cfg       Config
	body      *SequenceBody[T]
	emitter   Emitter[T]
	situation Situation[T]
	allocator Allocator
	sampler   *Sampler
	latency   *LatencyTracker
	cancelled atomic.Bool
}

// NewRunner validates cfg and returns an idle runner.
func NewRunner[T Integer](body *SequenceBody[T], emitter Emitter[T], cfg Config, opts ...Option[T]) (*Runner[T], error) {
	if body == nil {
		return nil, fmt.Errorf("%w: nil sequence body", ErrInvalidConfig)
	}
	if emitter == nil {
		return nil, fmt.Errorf("%w: nil emitter", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = body.op
	}

	r := &Runner[T]{
		state:   StateIdle,
		cfg:     cfg,
		body:    body,
		emitter: emitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sampler == nil {
		r.sampler = NewSeededSampler(cfg.Seed)
	}
	r.latency = NewLatencyTracker(cfg.LatencyWindow)
	return r, nil
}

// Configure changes the iteration count and emission error policy.
// It is only allowed while the runner is idle.
func (r *Runner[T]) Configure(iterations uint64, policy ErrorPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return ErrAlreadyRun
	}
	cfg := r.cfg
	cfg.Iterations = iterations
	cfg.OnEmissionError = policy
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

// Cancel asks a running loop to stop before its next iteration. It is safe to
// call from any goroutine, including from inside Emit, and before Run.
func (r *Runner[T]) Cancel() { r.cancelled.Store(true) }

// State returns the current lifecycle state.
func (r *Runner[T]) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Name returns the run label.
func (r *Runner[T]) Name() string { return r.cfg.Name }

func (r *Runner[T]) setState(s RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run executes the configured number of iterations.
//
// Cancellation through Cancel or ctx is checked once per iteration and is not
// an error: Run returns a Result with State == StateCancelled and the number
// of iterations completed so far. Sampling and allocation errors abort the run.
// Emission errors abort under OnErrorAbort and are counted under OnErrorSkip.
func (r *Runner[T]) Run(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		return Result{Name: r.cfg.Name, State: state}, ErrAlreadyRun
	}
	r.state = StateRunning
	cfg := r.cfg
	r.mu.Unlock()

	log := cfg.logger().With("run", cfg.Name)
	res := Result{Name: cfg.Name}
	start := time.Now()

	finish := func(s RunState) Result {
		res.State = s
		res.Duration = time.Since(start)
		res.Draws = r.sampler.Draws()
		res.Emission = r.latency.Stats()
		r.setState(s)
		return res
	}

	log.Info("run started",
		"op", r.body.op,
		"slots", len(r.body.slots),
		"iterations", cfg.Iterations,
		"policy", string(cfg.OnEmissionError))

	for i := uint64(0); i < cfg.Iterations; i++ {
		if r.cancelled.Load() || ctx.Err() != nil {
			log.Info("run cancelled", "completed", res.Iterations)
			return finish(StateCancelled), nil
		}

		inst, err := r.instantiate(i)
		if err != nil {
			log.Error("run aborted", "iteration", i, "err", err)
			return finish(StateFailed), fmt.Errorf("%s: iteration %d: %w", cfg.Name, i, err)
		}

		if sit := r.body.situation; sit != nil && r.situation != nil {
			r.situation.Apply(sit.Strategy, sit.Params, inst)
		}

		emitStart := time.Now()
		err = r.emitter.Emit(ctx, inst)
		r.latency.Record(time.Since(emitStart))

		if err != nil {
			if ctx.Err() != nil {
				log.Info("run cancelled during emission", "completed", res.Iterations)
				return finish(StateCancelled), nil
			}
			eerr := &EmissionError{Iteration: i, Err: err}
			if cfg.OnEmissionError == OnErrorSkip {
				res.Iterations++
				res.Skipped++
				if len(res.Errors) < maxRecordedErrors {
					res.Errors = append(res.Errors, eerr)
				}
				log.Warn("emission skipped", "iteration", i, "err", err)
				continue
			}
			log.Error("run aborted", "iteration", i, "err", err)
			return finish(StateFailed), eerr
		}

		res.Iterations++
		res.Emitted++
	}

	res = finish(StateCompleted)
	log.Info("run completed",
		"emitted", res.Emitted,
		"skipped", res.Skipped,
		"draws", res.Draws,
		"duration", res.Duration)
	return res, nil
}

// instantiate samples every slot in declared order.
func (r *Runner[T]) instantiate(iteration uint64) (Instance[T], error) {
	inst := Instance[T]{
		Iteration: iteration,
		Op:        r.body.op,
		Bindings:  make([]Binding[T], len(r.body.slots)),
		Trailer:   r.body.Trailer(),
	}
	for j, slot := range r.body.slots {
		v, err := Sample(r.sampler, slot.Dist)
		if err != nil {
			return inst, fmt.Errorf("slot %q: %w", slot.Name, err)
		}
		b := Binding[T]{Slot: slot.Name, Value: v}
		if r.allocator != nil {
			reg, err := r.allocator.Allocate(slot.Name)
			if err != nil {
				return inst, fmt.Errorf("allocate slot %q: %w", slot.Name, err)
			}
			b.Register = reg
		}
		inst.Bindings[j] = b
	}
	return inst, nil
}
