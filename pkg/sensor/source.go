package sensor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-stepcount/pkg/step"
)

// Source produces an ordered stream of acceleration samples.
type Source interface {
	// Start begins producing samples.
	// A stopped source cannot be started again (ErrStopped).
	Start(ctx context.Context) error

	// Stop halts the source and closes the stream.
	// It is safe to call Stop multiple times.
	Stop() error

	// Read reads the next sample, blocking if necessary.
	// Returns io.EOF once the source is stopped and drained.
	Read(ctx context.Context) (step.Sample, error)

	// Stream returns the channel samples are delivered on, in order.
	// The channel is closed when the source is stopped.
	Stream() <-chan step.Sample

	// Config returns the source configuration.
	Config() Config

	// Name returns the backend name (e.g., "mock", "replay", "mqtt").
	Name() string

	// Close releases all resources.
	io.Closer
}

// SourceStats contains statistics about a sample source.
type SourceStats struct {
	// SamplesRead is the number of samples delivered to the stream.
	SamplesRead int64 `json:"samples_read"`

	// Overruns is the number of samples dropped because the stream was full.
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently producing.
	Running bool `json:"running"`

	// Backend is the name of the source backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}

type streamState int

const (
	stateIdle streamState = iota
	stateRunning
	stateStopped
)

// stream is the lifecycle and delivery plumbing shared by all backends.
// Senders hold sendMu for reading so the channel is never closed under them.
type stream struct {
	mu     sync.Mutex
	state  streamState
	closed bool
	stopCh chan struct{}

	sendMu sync.RWMutex
	done   bool
	ch     chan step.Sample

	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newStream(buffer int) *stream {
	if buffer <= 0 {
		buffer = 1
	}
	return &stream{
		stopCh: make(chan struct{}),
		ch:     make(chan step.Sample, buffer),
	}
}

// begin moves the stream to running. It reports false if it already was.
func (s *stream) begin() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	switch s.state {
	case stateRunning:
		return false, nil
	case stateStopped:
		return false, ErrStopped
	}
	s.state = stateRunning
	return true, nil
}

// halt stops the stream and closes the channel. It reports false if the
// stream was already stopped.
func (s *stream) halt() bool {
	s.mu.Lock()
	if s.state == stateStopped {
		s.mu.Unlock()
		return false
	}
	s.state = stateStopped
	close(s.stopCh)
	s.mu.Unlock()

	// Blocked senders observe stopCh and release sendMu.
	s.sendMu.Lock()
	s.done = true
	close(s.ch)
	s.sendMu.Unlock()
	return true
}

// markClosed flags the stream closed. It reports false if it already was.
func (s *stream) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// emit delivers a sample, waiting for room in the stream.
func (s *stream) emit(ctx context.Context, sample step.Sample) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.done {
		return ErrNotRunning
	}

	select {
	case s.ch <- sample:
		s.samplesRead.Add(1)
		return nil
	case <-s.stopCh:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// offer delivers a sample if there is room and drops it otherwise.
func (s *stream) offer(sample step.Sample) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.done {
		return false
	}

	select {
	case s.ch <- sample:
		s.samplesRead.Add(1)
		return true
	default:
		s.overruns.Add(1)
		return false
	}
}

func (s *stream) read(ctx context.Context) (step.Sample, error) {
	select {
	case <-ctx.Done():
		return step.Sample{}, ctx.Err()
	case sample, ok := <-s.ch:
		if !ok {
			return step.Sample{}, io.EOF
		}
		return sample, nil
	}
}

func (s *stream) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

func (s *stream) stats(backend string) SourceStats {
	return SourceStats{
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     s.running(),
		Backend:     backend,
	}
}
