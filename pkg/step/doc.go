// Package step implements a thresholded delta-magnitude step detector.
//
// A Detector consumes 3-axis acceleration samples one at a time. For each
// sample it sums the absolute per-axis differences against the previous
// sample; when that sum is strictly greater than the threshold, one step is
// counted. There is no smoothing and no cooldown, so a fast-oscillating
// signal can register a step on every sample.
//
// Usage:
//
//	det := step.New(step.WithThreshold(1.2))
//	if det.Ingest(step.Sample{X: 2}) {
//		fmt.Println("steps:", det.Count())
//	}
//
// The detector has no clock and no lifecycle. Wiring it to a live sample
// source is the job of package pedometer.
package step
