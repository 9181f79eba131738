package viz

import (
	"errors"
	"fmt"
	"log/slog"
)

// Backend names accepted by NewBackend.
const (
	BackendAuto     = "auto"
	BackendGocv     = "gocv"
	BackendHeadless = "headless"
)

// NewBackend creates the named backend. "auto" picks gocv when the binary was
// built with it and falls back to headless otherwise. An explicitly requested
// backend that cannot start returns an error wrapping ErrBackendUnavailable.
func NewBackend(name string, opts GocvOptions, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch name {
	case BackendHeadless:
		return NewHeadless(logger), nil
	case BackendGocv:
		return newGocvBackend(opts, logger)
	case BackendAuto, "":
		b, err := newGocvBackend(opts, logger)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		logger.Warn("gocv backend unavailable, falling back to headless", "error", err)
		return NewHeadless(logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, name)
	}
}

// GocvOptions configures the OpenCV window backend.
type GocvOptions struct {
	// CloudWindowSize is the side of the square point cloud window.
	CloudWindowSize int `yaml:"cloud_window_size" json:"cloud_window_size"`
}

// DefaultGocvOptions uses a 1000x1000 cloud window.
func DefaultGocvOptions() GocvOptions {
	return GocvOptions{CloudWindowSize: 1000}
}
