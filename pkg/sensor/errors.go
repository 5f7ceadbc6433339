package sensor

import "errors"

var (
	// ErrClosed is returned when using a source after Close.
	ErrClosed = errors.New("sensor: source closed")

	// ErrStopped is returned when starting a source that was already stopped.
	// Sources are not restartable.
	ErrStopped = errors.New("sensor: source stopped")

	// ErrNotRunning is returned when pushing to a source that is not started.
	ErrNotRunning = errors.New("sensor: source not running")
)
