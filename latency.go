package biasgen

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a ring buffer of recent emission latencies.
//
// The emission collaborator is the only place a run can block (waiting on a
// simulator, a slow disk, a remote harness). The runner records every Emit
// call here so a slow collaborator shows up in the Result.
type LatencyTracker struct {
	mu          sync.Mutex
	samples     []time.Duration // Ring buffer of recent latencies
	maxSamples  int             // Buffer size
	writeIndex  int             // Next write position
	sampleCount int64           // Total samples recorded (monotonic)
	max         time.Duration   // Largest latency ever recorded
}

// NewLatencyTracker creates a tracker with a fixed-size ring buffer.
// Non-positive sizes default to 1024.
func NewLatencyTracker(maxSamples int) *LatencyTracker {
	if maxSamples <= 0 {
		maxSamples = 1024
	}
	return &LatencyTracker{
		samples:    make([]time.Duration, maxSamples),
		maxSamples: maxSamples,
	}
}

// Record adds a latency sample.
func (t *LatencyTracker) Record(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.writeIndex] = latency
	t.writeIndex = (t.writeIndex + 1) % t.maxSamples
	t.sampleCount++
	if latency > t.max {
		t.max = latency
	}
}

// LatencyStats summarizes the tracker's window.
type LatencyStats struct {
	Count int64         // Total samples recorded
	Mean  time.Duration // Over the current window
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration // Over all samples
}

// Stats returns a snapshot of the current window.
func (t *LatencyTracker) Stats() LatencyStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.effectiveSampleCount()
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, t.samples[:n])
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, lat := range sorted {
		sum += lat
	}

	return LatencyStats{
		Count: t.sampleCount,
		Mean:  sum / time.Duration(n),
		P50:   sorted[percentileIndex(n, 0.50)],
		P99:   sorted[percentileIndex(n, 0.99)],
		Max:   t.max,
	}
}

func percentileIndex(n int, p float64) int {
	index := int(float64(n-1) * p)
	if index < 0 {
		index = 0
	}
	if index >= n {
		index = n - 1
	}
	return index
}

// effectiveSampleCount returns the number of valid samples in the buffer.
func (t *LatencyTracker) effectiveSampleCount() int {
	if t.sampleCount < int64(t.maxSamples) {
		return int(t.sampleCount)
	}
	return t.maxSamples
}
