package pedometer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-stepcount/pkg/sensor"
	"github.com/teslashibe/go-stepcount/pkg/step"
)

var (
	// ErrAlreadySubscribed is returned by Start while a source is attached.
	ErrAlreadySubscribed = errors.New("pedometer: already subscribed to a source")

	// ErrNotSubscribed is returned by Stop when no source is attached.
	ErrNotSubscribed = errors.New("pedometer: not subscribed")
)

// Pedometer pairs a step detector with at most one live source
// subscription.
type Pedometer struct {
	det    *step.Detector
	opts   []Option
	logger *slog.Logger

	mu  sync.Mutex
	sub *Subscription
}

// New creates a pedometer around det. Options are applied to every
// subscription the pedometer makes.
func New(det *step.Detector, logger *slog.Logger, opts ...Option) *Pedometer {
	if det == nil {
		det = step.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pedometer{
		det:    det,
		opts:   append([]Option{WithLogger(logger)}, opts...),
		logger: logger,
	}
}

// Start subscribes the detector to src. A previous subscription that ended
// on its own is replaced.
func (p *Pedometer) Start(ctx context.Context, src sensor.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sub != nil {
		select {
		case <-p.sub.Done():
			p.sub.Unsubscribe()
			p.sub = nil
		default:
			return ErrAlreadySubscribed
		}
	}

	sub, err := Subscribe(ctx, src, p.det, p.opts...)
	if err != nil {
		return err
	}
	p.sub = sub
	return nil
}

// Stop tears down the current subscription. No sample is ingested after
// Stop returns.
func (p *Pedometer) Stop() error {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()

	if sub == nil {
		return ErrNotSubscribed
	}
	return sub.Unsubscribe()
}

// Subscription returns the current subscription, or nil.
func (p *Pedometer) Subscription() *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub
}

// Detector returns the underlying detector.
func (p *Pedometer) Detector() *step.Detector {
	return p.det
}

// Count returns the number of steps detected so far.
func (p *Pedometer) Count() uint64 {
	return p.det.Count()
}

// Reset zeroes the step count and the previous sample.
func (p *Pedometer) Reset() {
	p.det.Reset()
	p.logger.Info("pedometer reset")
}

// Snapshot returns the detector state.
func (p *Pedometer) Snapshot() step.State {
	return p.det.Snapshot()
}
