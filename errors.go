package biasgen

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrDegenerateDistribution is returned when a distribution's total bias is zero,
	// or when sampling is attempted on a distribution that was never built.
	ErrDegenerateDistribution = errors.New("biasgen: degenerate distribution")

	// ErrMalformedRange is returned for an interval with low > high, an empty
	// discrete set, or a nested range without a distribution.
	ErrMalformedRange = errors.New("biasgen: malformed range")

	// ErrSamplingOverflow is returned when bias accumulation exceeds 64 bits.
	ErrSamplingOverflow = errors.New("biasgen: sampling overflow")

	// ErrNestingTooDeep is returned when nesting exceeds MaxNestingDepth.
	ErrNestingTooDeep = errors.New("biasgen: nesting too deep")

	// ErrEmission wraps every failure reported by an Emitter.
	ErrEmission = errors.New("biasgen: emission failed")

	// ErrRunCancelled marks cancellation. Run reports it through Result.State,
	// never as a returned error; callers that need an error (an exit status)
	// wrap it themselves.
	ErrRunCancelled = errors.New("biasgen: run cancelled")

	// ErrAlreadyRun is returned when Run or Configure is called on a runner
	// that has left the Idle state.
	ErrAlreadyRun = errors.New("biasgen: runner already started")

	// ErrInvalidConfig is returned for an unusable runner or sequence configuration.
	ErrInvalidConfig = errors.New("biasgen: invalid configuration")
)

// RangeError names the offending Range inside a distribution. Index is -1
// when the problem belongs to the distribution as a whole.
type RangeError struct {
	Index int   // Position of the range in its distribution, or -1
	Kind  Kind  // Kind of the offending range
	Err   error // One of the sentinel errors above
	Msg   string
}

func (e *RangeError) Error() string {
	where := "distribution"
	if e.Index >= 0 {
		where = fmt.Sprintf("range %d (%s)", e.Index, e.Kind)
	}
	if e.Msg == "" {
		return fmt.Sprintf("%v: %s", e.Err, where)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, where, e.Msg)
}

func (e *RangeError) Unwrap() error { return e.Err }

// EmissionError wraps an Emitter failure with the iteration it happened on.
type EmissionError struct {
	Iteration uint64
	Err       error
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("biasgen: emission failed at iteration %d: %v", e.Iteration, e.Err)
}

// Unwrap exposes both ErrEmission and the collaborator's own error.
func (e *EmissionError) Unwrap() []error { return []error{ErrEmission, e.Err} }
