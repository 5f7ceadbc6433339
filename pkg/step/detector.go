package step

import (
	"math"
	"sync"
	"time"
)

// DefaultThreshold is the minimum summed per-axis delta for a step.
const DefaultThreshold = 1.2

// Sample is one 3-axis acceleration reading.
// Units follow the producing source (g or m/s²).
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	// Time is when the source took the reading. The detector ignores it.
	Time time.Time `json:"t,omitzero"`
}

// Delta returns |b.X-a.X| + |b.Y-a.Y| + |b.Z-a.Z|.
// Non-finite components propagate into the result.
func Delta(a, b Sample) float64 {
	return math.Abs(b.X-a.X) + math.Abs(b.Y-a.Y) + math.Abs(b.Z-a.Z)
}

// Option configures a Detector.
type Option func(*Detector)

// WithThreshold sets the step threshold. Any value is accepted; zero or
// negative thresholds make nearly every sample a step.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) {
		d.threshold = threshold
	}
}

// Detector counts steps from an ordered stream of samples.
// It is safe for concurrent use; each Ingest is one critical section.
type Detector struct {
	threshold float64

	mu    sync.Mutex
	last  Sample
	count uint64
}

// New creates a detector with a zero count and a zero previous sample.
func New(opts ...Option) *Detector {
	d := &Detector{
		threshold: DefaultThreshold,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Ingest feeds the next sample and reports whether it registered a step.
// The previous sample is replaced by s whether or not a step was counted.
func (d *Detector) Ingest(s Sample) bool {
	stepped, _ := d.IngestCount(s)
	return stepped
}

// IngestCount is Ingest that also returns the count as of this sample,
// read in the same critical section.
func (d *Detector) IngestCount(s Sample) (bool, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// NaN compares false, so a non-finite delta never counts.
	stepped := Delta(d.last, s) > d.threshold
	if stepped {
		d.count++
	}
	d.last = s

	return stepped, d.count
}

// Count returns the number of steps detected so far.
func (d *Detector) Count() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Last returns the most recently ingested sample.
func (d *Detector) Last() Sample {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Threshold returns the configured threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Reset zeroes the count and the previous sample.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.count = 0
	d.last = Sample{}
	d.mu.Unlock()
}

// State is a point-in-time copy of a detector's state.
type State struct {
	Count     uint64  `json:"count"`
	Last      Sample  `json:"last"`
	Threshold float64 `json:"threshold"`
}

// Snapshot returns count and previous sample read under one lock.
func (d *Detector) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Count:     d.count,
		Last:      d.last,
		Threshold: d.threshold,
	}
}
