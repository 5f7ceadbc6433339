package step

import (
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestNew_InitialState(t *testing.T) {
	det := New()

	if det.Count() != 0 {
		t.Errorf("Count() = %d, want 0", det.Count())
	}
	if det.Last() != (Sample{}) {
		t.Errorf("Last() = %+v, want zero sample", det.Last())
	}
	if det.Threshold() != DefaultThreshold {
		t.Errorf("Threshold() = %v, want %v", det.Threshold(), DefaultThreshold)
	}
}

func TestWithThreshold(t *testing.T) {
	det := New(WithThreshold(3))

	if det.Threshold() != 3 {
		t.Errorf("Threshold() = %v, want 3", det.Threshold())
	}

	// Delta of 2.5 is below the raised threshold
	if det.Ingest(Sample{X: 2.5}) {
		t.Error("Ingest should not register a step below threshold 3")
	}
	if !det.Ingest(Sample{X: -1}) {
		t.Error("Ingest should register a step for delta 3.5")
	}
}

func TestIngest_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   bool
	}{
		{"equal to threshold", Sample{X: 0.5, Y: 0.4, Z: 0.3}, false},
		{"just above threshold", Sample{X: 0.5, Y: 0.4, Z: 0.31}, true},
		{"negative axes count by magnitude", Sample{X: -0.5, Y: -0.4, Z: -0.31}, true},
		{"well below threshold", Sample{X: 0.1, Y: 0.1, Z: 0.1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := New()
			if got := det.Ingest(tt.sample); got != tt.want {
				t.Errorf("Ingest(%+v) = %v, want %v (delta %v)",
					tt.sample, got, tt.want, Delta(Sample{}, tt.sample))
			}
		})
	}
}

func TestIngest_UpdatesLastUnconditionally(t *testing.T) {
	det := New()
	ts := time.Unix(1700000000, 0)

	samples := []Sample{
		{X: 0.1, Time: ts},                       // no step
		{X: 3, Y: 1, Time: ts.Add(time.Second)}, // step
		{X: 3, Y: 1.1},                          // no step
	}

	for i, s := range samples {
		det.Ingest(s)
		if det.Last() != s {
			t.Errorf("sample %d: Last() = %+v, want %+v", i, det.Last(), s)
		}
	}
}

func TestIngest_SequentialDelta(t *testing.T) {
	det := New()

	if !det.Ingest(Sample{X: 2}) {
		t.Fatal("first {2,0,0} should register a step")
	}
	if det.Ingest(Sample{X: 2}) {
		t.Error("repeated {2,0,0} has zero delta and should not register")
	}
}

func TestIngest_NonFinite(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
	}{
		{"NaN x", Sample{X: math.NaN()}},
		{"NaN z with large y", Sample{Y: 100, Z: math.NaN()}},
		{"all NaN", Sample{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := New()
			if det.Ingest(tt.sample) {
				t.Error("NaN sample should never register a step")
			}
			if det.Count() != 0 {
				t.Errorf("Count() = %d, want 0", det.Count())
			}
		})
	}
}

func TestIngest_AfterNaN(t *testing.T) {
	det := New()

	det.Ingest(Sample{X: math.NaN()})

	// The NaN sample is now the previous sample, so the next delta is NaN too.
	if det.Ingest(Sample{X: 5}) {
		t.Error("delta against a NaN previous sample should not register")
	}
	if !det.Ingest(Sample{X: 0}) {
		t.Error("finite delta of 5 should register once NaN has been replaced")
	}
}

func TestIngest_Infinity(t *testing.T) {
	det := New()

	// +Inf delta compares greater than the threshold.
	if !det.Ingest(Sample{X: math.Inf(1)}) {
		t.Error("+Inf delta should register a step")
	}
	// Inf - Inf is NaN.
	if det.Ingest(Sample{X: math.Inf(1)}) {
		t.Error("Inf-Inf delta is NaN and should not register")
	}
}

func TestIngest_NonPositiveThreshold(t *testing.T) {
	det := New(WithThreshold(0))

	if det.Ingest(Sample{}) {
		t.Error("zero delta is not strictly greater than threshold 0")
	}
	if !det.Ingest(Sample{Z: 0.0001}) {
		t.Error("any positive delta should register with threshold 0")
	}

	neg := New(WithThreshold(-1))
	if !neg.Ingest(Sample{}) {
		t.Error("zero delta should register with a negative threshold")
	}
}

func TestEndToEndScenario(t *testing.T) {
	det := New()

	steps := []struct {
		sample    Sample
		wantStep  bool
		wantCount uint64
	}{
		{Sample{X: 2}, true, 1},
		{Sample{X: 2}, false, 1},
		{Sample{X: 2, Y: 5}, true, 2},
	}

	for i, s := range steps {
		if got := det.Ingest(s.sample); got != s.wantStep {
			t.Errorf("step %d: Ingest = %v, want %v", i, got, s.wantStep)
		}
		if det.Count() != s.wantCount {
			t.Errorf("step %d: Count() = %d, want %d", i, det.Count(), s.wantCount)
		}
	}

	if det.Count() != 2 {
		t.Errorf("final Count() = %d, want 2", det.Count())
	}
}

func TestCount_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		det := New(WithThreshold(rng.Float64() * 3))
		var prev uint64

		for i := 0; i < 500; i++ {
			s := Sample{
				X: rng.NormFloat64() * 2,
				Y: rng.NormFloat64() * 2,
				Z: rng.NormFloat64() * 2,
			}
			if rng.Intn(50) == 0 {
				s.Y = math.NaN()
			}

			stepped := det.Ingest(s)
			got := det.Count()

			if got < prev {
				t.Fatalf("run %d sample %d: count decreased %d -> %d", run, i, prev, got)
			}
			if stepped && got != prev+1 {
				t.Fatalf("run %d sample %d: step reported but count %d -> %d", run, i, prev, got)
			}
			if !stepped && got != prev {
				t.Fatalf("run %d sample %d: no step but count %d -> %d", run, i, prev, got)
			}
			prev = got
		}
	}
}

func TestCount_NoSideEffects(t *testing.T) {
	det := New()
	det.Ingest(Sample{X: 2})

	for i := 0; i < 10; i++ {
		if det.Count() != 1 {
			t.Fatalf("Count() = %d, want 1", det.Count())
		}
	}
	if det.Last() != (Sample{X: 2}) {
		t.Errorf("Count() must not change Last(), got %+v", det.Last())
	}
}

func TestReset(t *testing.T) {
	det := New()
	det.Ingest(Sample{X: 2})
	det.Ingest(Sample{X: 2, Y: 5})

	det.Reset()

	if det.Count() != 0 {
		t.Errorf("Count() after Reset = %d, want 0", det.Count())
	}
	if det.Last() != (Sample{}) {
		t.Errorf("Last() after Reset = %+v, want zero", det.Last())
	}

	// Deltas are measured against the origin again.
	if !det.Ingest(Sample{X: 2, Y: 5}) {
		t.Error("first sample after Reset should be measured from the origin")
	}
}

func TestSnapshot(t *testing.T) {
	det := New(WithThreshold(0.5))
	det.Ingest(Sample{X: 1})

	snap := det.Snapshot()
	if snap.Count != 1 {
		t.Errorf("Snapshot().Count = %d, want 1", snap.Count)
	}
	if snap.Last != (Sample{X: 1}) {
		t.Errorf("Snapshot().Last = %+v, want {1,0,0}", snap.Last)
	}
	if snap.Threshold != 0.5 {
		t.Errorf("Snapshot().Threshold = %v, want 0.5", snap.Threshold)
	}
}

func TestIngest_Concurrent(t *testing.T) {
	det := New()

	var wg sync.WaitGroup
	const workers = 8
	const perWorker = 1000

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				det.Ingest(Sample{X: 2})
				det.Count()
			}
		}()
	}
	wg.Wait()

	// Every sample is {2,0,0}; only the very first one differs from its predecessor.
	if det.Count() != 1 {
		t.Errorf("Count() = %d, want 1", det.Count())
	}
}

func TestDelta(t *testing.T) {
	tests := []struct {
		name string
		a, b Sample
		want float64
	}{
		{"origin to unit x", Sample{}, Sample{X: 1}, 1},
		{"symmetric", Sample{X: 1, Y: -2, Z: 3}, Sample{}, 6},
		{"ignores time", Sample{Time: time.Now()}, Sample{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Delta(tt.a, tt.b); got != tt.want {
				t.Errorf("Delta() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIngestCount(t *testing.T) {
	det := New()

	stepped, count := det.IngestCount(Sample{X: 2})
	if !stepped || count != 1 {
		t.Errorf("IngestCount = (%v, %d), want (true, 1)", stepped, count)
	}
	stepped, count = det.IngestCount(Sample{X: 2})
	if stepped || count != 1 {
		t.Errorf("IngestCount = (%v, %d), want (false, 1)", stepped, count)
	}
}

func TestIngestCount_ConcurrentReset(t *testing.T) {
	det := New()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				det.Reset()
			}
		}
	}()

	for i := 0; i < 5000; i++ {
		x := 0.0
		if i%2 == 0 {
			x = 2
		}
		stepped, count := det.IngestCount(Sample{X: x})
		if stepped && count == 0 {
			t.Fatalf("sample %d stepped but reported count 0", i)
		}
	}
	close(stop)
	wg.Wait()
}
