package sensor

import (
	"context"
	"errors"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

// Sentinel errors.
var (
	// ErrUnsupportedSource is returned for an unknown backend name.
	ErrUnsupportedSource = errors.New("sensor: unsupported source")

	// ErrNoFrames is returned when the replay directory holds no frames.
	ErrNoFrames = errors.New("sensor: no frames to replay")
)

// Source delivers frames to a sink asynchronously.
type Source interface {
	// Start begins acquisition. Callbacks on sink begin after Start and run
	// on goroutines owned by the source. Starting a running source is a no-op.
	Start(ctx context.Context, sink frame.FrameSink) error

	// Stop halts acquisition and returns once no callback is in flight.
	// It is safe to call Stop multiple times.
	Stop() error

	// Name returns the backend name (e.g., "mock", "replay").
	Name() string

	// Stats returns delivery counters.
	Stats() Stats
}

// Stats contains statistics about a source.
type Stats struct {
	// DepthFrames and ColorFrames count delivered callbacks.
	DepthFrames int64 `json:"depth_frames"`
	ColorFrames int64 `json:"color_frames"`

	// Running indicates if the source is currently delivering.
	Running bool `json:"running"`

	// Backend is the name of the source backend.
	Backend string `json:"backend"`
}
