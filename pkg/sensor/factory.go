package sensor

import (
	"fmt"
	"log/slog"
)

// NewSource creates a new acquisition source with the given configuration.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating sensor source",
		"backend", cfg.Backend,
		"depth_fps", cfg.DepthFPS,
		"color_fps", cfg.ColorFPS,
	)

	switch cfg.Backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendReplay:
		return NewReplaySource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, cfg.Backend)
	}
}
