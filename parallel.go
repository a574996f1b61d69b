package biasgen

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Job is anything RunParallel can drive. *Runner[T] implements it for every
// T, so runners of different widths can share one call.
type Job interface {
	Name() string
	Run(ctx context.Context) (Result, error)
	Cancel()
}

// RunParallel runs independent jobs with at most jobs of them in flight
// (jobs <= 0 means runtime.NumCPU()). Results come back in input order.
//
// Jobs share nothing, so a failure in one does not stop the others. Jobs that
// had not started when ctx was cancelled report StateCancelled. The returned
// error joins every job error, each prefixed with the job name.
func RunParallel(ctx context.Context, jobs int, runners ...Job) ([]Result, error) {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, jobs)
		results = make([]Result, len(runners))
		errs    = make([]error, len(runners))
	)

	for i, job := range runners {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < len(runners); j++ {
				results[j] = Result{Name: runners[j].Name(), State: StateCancelled}
			}
			wg.Wait()
			return results, joinJobErrors(runners, errs)
		}

		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = job.Run(ctx)
		}(i, job)
	}

	wg.Wait()
	return results, joinJobErrors(runners, errs)
}

func joinJobErrors(runners []Job, errs []error) error {
	var out []error
	for i, err := range errs {
		if err != nil {
			out = append(out, fmt.Errorf("%s: %w", runners[i].Name(), err))
		}
	}
	return errors.Join(out...)
}

// Summary aggregates the results of several runs.
type Summary struct {
	Runs       int
	Completed  int
	Cancelled  int
	Failed     int
	Emitted    uint64
	Skipped    uint64
	Draws      uint64
	Longest    time.Duration // Duration of the slowest run
	Throughput float64       // Emitted instances per second of Longest
}

// Summarize computes totals over results.
func Summarize(results []Result) Summary {
	s := Summary{Runs: len(results)}
	for _, r := range results {
		switch r.State {
		case StateCompleted:
			s.Completed++
		case StateCancelled:
			s.Cancelled++
		case StateFailed:
			s.Failed++
		}
		s.Emitted += r.Emitted
		s.Skipped += r.Skipped
		s.Draws += r.Draws
		if r.Duration > s.Longest {
			s.Longest = r.Duration
		}
	}
	if s.Longest > 0 {
		s.Throughput = float64(s.Emitted) / s.Longest.Seconds()
	}
	return s
}
