// Package pedometer wires sample sources to step detectors.
//
// A Subscription is the single consumer of a source's stream for one
// detector: it feeds samples to Ingest in stream order from one goroutine.
// Unsubscribe is idempotent and, once it returns, no further Ingest call
// happens for that subscription. It may be called from an OnStep or
// OnSample callback.
package pedometer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-stepcount/pkg/sensor"
	"github.com/teslashibe/go-stepcount/pkg/step"
)

// Option configures a Subscription.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	onStep   func(count uint64)
	onSample func(s step.Sample, stepped bool)
}

// WithLogger sets the logger used by the subscription.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOnStep registers a callback fired after every detected step with
// the new count. It runs on the subscription goroutine.
func WithOnStep(fn func(count uint64)) Option {
	return func(o *options) {
		o.onStep = fn
	}
}

// WithOnSample registers a callback fired after every ingested sample.
func WithOnSample(fn func(s step.Sample, stepped bool)) Option {
	return func(o *options) {
		o.onSample = fn
	}
}

// Subscription delivers one source's samples to one detector.
type Subscription struct {
	id     string
	src    sensor.Source
	det    *step.Detector
	opts   options
	logger *slog.Logger

	cancel     context.CancelFunc
	stopCh     chan struct{}
	done       chan struct{}
	once       sync.Once
	inCallback atomic.Bool

	started  time.Time
	samples  atomic.Uint64
	steps    atomic.Uint64
	lastSeen atomic.Int64
}

// Subscribe starts src and feeds its stream to det until Unsubscribe is
// called, ctx is cancelled, or the stream ends. The source is stopped on
// every one of those paths.
func Subscribe(ctx context.Context, src sensor.Source, det *step.Detector, opts ...Option) (*Subscription, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)

	s := &Subscription{
		id:      uuid.NewString(),
		src:     src,
		det:     det,
		opts:    o,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		started: time.Now(),
	}
	s.logger = o.logger.With("subscription", s.id, "source", src.Name())

	// Take the stream before starting so no sample can be missed.
	stream := src.Stream()

	if err := src.Start(ctx); err != nil {
		cancel()
		close(s.done)
		return nil, err
	}

	go s.run(ctx, stream)

	s.logger.Info("subscribed", "threshold", det.Threshold())
	return s, nil
}

func (s *Subscription) run(ctx context.Context, stream <-chan step.Sample) {
	defer close(s.done)
	defer s.src.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case sample, ok := <-stream:
			if !ok {
				s.logger.Info("sample stream ended")
				return
			}
			// Unsubscribe may have raced with the receive.
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.ingest(sample)
		}
	}
}

func (s *Subscription) ingest(sample step.Sample) {
	stepped, count := s.det.IngestCount(sample)

	s.samples.Add(1)
	s.lastSeen.Store(time.Now().UnixNano())

	s.inCallback.Store(true)
	defer s.inCallback.Store(false)

	if s.opts.onSample != nil {
		s.opts.onSample(sample, stepped)
	}
	if !stepped {
		return
	}

	s.steps.Add(1)
	s.logger.Debug("step detected", "count", count)
	if s.opts.onStep != nil {
		s.opts.onStep(count)
	}
}

// Unsubscribe stops delivery, waits for the consumer goroutine to exit and
// stops the source. It is safe to call more than once.
//
// While a callback is running the consumer goroutine cannot exit, so
// Unsubscribe stops the source and returns without waiting; the goroutine
// ends when the callback returns and ingests nothing further.
func (s *Subscription) Unsubscribe() error {
	s.once.Do(func() {
		close(s.stopCh)
		s.cancel()
	})

	if s.inCallback.Load() {
		s.src.Stop()
		return nil
	}
	<-s.done

	s.logger.Debug("unsubscribed", "samples", s.samples.Load(), "steps", s.steps.Load())
	return nil
}

// Done is closed once the subscription has stopped delivering samples.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Source returns the subscribed source.
func (s *Subscription) Source() sensor.Source {
	return s.src
}

// SubscriptionStats contains delivery statistics for a subscription.
type SubscriptionStats struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Samples  uint64    `json:"samples"`
	Steps    uint64    `json:"steps"`
	Started  time.Time `json:"started"`
	LastSeen time.Time `json:"last_seen,omitzero"`
	Active   bool      `json:"active"`
}

// Stats returns delivery statistics.
func (s *Subscription) Stats() SubscriptionStats {
	stats := SubscriptionStats{
		ID:      s.id,
		Source:  s.src.Name(),
		Samples: s.samples.Load(),
		Steps:   s.steps.Load(),
		Started: s.started,
	}
	if ns := s.lastSeen.Load(); ns != 0 {
		stats.LastSeen = time.Unix(0, ns)
	}
	select {
	case <-s.done:
	default:
		stats.Active = true
	}
	return stats
}
