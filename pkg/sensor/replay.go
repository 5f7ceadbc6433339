package sensor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-stepcount/pkg/step"
)

// ReplaySource plays back a recorded sample sequence in order.
// The stream closes after the last sample.
type ReplaySource struct {
	cfg     Config
	logger  *slog.Logger
	samples []step.Sample
	*stream
}

// NewReplaySource creates a source that replays samples.
// With a zero Interval samples are delivered as fast as they are read.
func NewReplaySource(cfg Config, samples []step.Sample, logger *slog.Logger) *ReplaySource {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReplaySource{
		cfg:     cfg,
		logger:  logger,
		samples: samples,
		stream:  newStream(cfg.Buffer),
	}
}

// OpenReplay loads a CSV recording from path and returns a replay source.
func OpenReplay(cfg Config, path string, logger *slog.Logger) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	samples, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording %s: %w", path, err)
	}

	return NewReplaySource(cfg, samples, logger), nil
}

// Start begins playback.
func (r *ReplaySource) Start(ctx context.Context) error {
	started, err := r.begin()
	if err != nil || !started {
		return err
	}

	go r.playLoop(ctx)

	r.logger.Info("replay sensor started",
		"samples", len(r.samples),
		"interval", r.cfg.Interval,
	)

	return nil
}

func (r *ReplaySource) playLoop(ctx context.Context) {
	defer r.Stop()

	var tick <-chan time.Time
	if r.cfg.Interval > 0 {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for _, sample := range r.samples {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-tick:
			}
		}
		if err := r.emit(ctx, sample); err != nil {
			return
		}
	}
}

// Stop halts playback.
func (r *ReplaySource) Stop() error {
	if r.halt() {
		r.logger.Info("replay sensor stopped",
			"delivered", r.samplesRead.Load(),
			"total", len(r.samples),
		)
	}
	return nil
}

// Read reads the next sample.
func (r *ReplaySource) Read(ctx context.Context) (step.Sample, error) {
	return r.read(ctx)
}

// Stream returns the sample channel.
func (r *ReplaySource) Stream() <-chan step.Sample {
	return r.ch
}

// Config returns the source configuration.
func (r *ReplaySource) Config() Config {
	return r.cfg
}

// Name returns "replay".
func (r *ReplaySource) Name() string {
	return string(BackendReplay)
}

// Close releases resources.
func (r *ReplaySource) Close() error {
	if !r.markClosed() {
		return nil
	}
	return r.Stop()
}

// Stats returns source statistics.
func (r *ReplaySource) Stats() SourceStats {
	return r.stats(r.Name())
}

// Len returns the number of recorded samples.
func (r *ReplaySource) Len() int {
	return len(r.samples)
}

var _ SourceWithStats = (*ReplaySource)(nil)

// ReadCSV parses rows of "x,y,z[,t]". A header row is skipped when its
// first field is not a number. t is either unix milliseconds or RFC 3339.
func ReadCSV(r io.Reader) ([]step.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var samples []step.Sample
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if first && len(rec) > 0 {
			if _, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64); err != nil {
				continue
			}
		}

		sample, err := parseRecord(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, sample)
	}

	return samples, nil
}

func parseRecord(rec []string) (step.Sample, error) {
	if len(rec) < 3 {
		return step.Sample{}, fmt.Errorf("want at least 3 fields, got %d", len(rec))
	}

	var axes [3]float64
	for i := range axes {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return step.Sample{}, fmt.Errorf("axis %d: %w", i, err)
		}
		axes[i] = v
	}

	sample := step.Sample{X: axes[0], Y: axes[1], Z: axes[2]}

	if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
		ts, err := parseTime(strings.TrimSpace(rec[3]))
		if err != nil {
			return step.Sample{}, fmt.Errorf("timestamp: %w", err)
		}
		sample.Time = ts
	}

	return sample, nil
}

func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
