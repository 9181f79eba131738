// Package sensor provides acquisition sources that deliver depth and color
// frames to a frame.FrameSink from their own goroutines.
//
// This package supports multiple backends:
//   - Mock - synthetic depth ramp and color gradient (CI, demos)
//   - Replay - loops over frames previously saved by the viewer
//
// Depth and color are produced on independent goroutines, so a sink sees
// OnDepth and OnColor concurrently, as it would with a real driver.
package sensor

import (
	"fmt"
	"time"
)

// Backend represents the acquisition backend type.
type Backend string

const (
	// BackendMock generates synthetic frames.
	BackendMock Backend = "mock"
	// BackendReplay replays saved frame files from a directory.
	BackendReplay Backend = "replay"
)

// Config holds acquisition configuration.
type Config struct {
	// Backend selects the source implementation.
	// Default: "mock"
	Backend Backend `yaml:"backend" json:"backend"`

	// Width and Height of generated frames (mock only).
	// Default: 640x480
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// DepthFPS and ColorFPS are the callback rates of each stream.
	// Default: 30
	DepthFPS int `yaml:"depth_fps" json:"depth_fps"`
	ColorFPS int `yaml:"color_fps" json:"color_fps"`

	// Dir is the directory scanned by the replay backend.
	Dir string `yaml:"dir" json:"dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendMock,
		Width:    640,
		Height:   480,
		DepthFPS: 30,
		ColorFPS: 30,
		Dir:      ".",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DepthFPS <= 0 {
		return fmt.Errorf("depth_fps must be positive, got %d", c.DepthFPS)
	}
	if c.ColorFPS <= 0 {
		return fmt.Errorf("color_fps must be positive, got %d", c.ColorFPS)
	}
	switch c.Backend {
	case BackendMock:
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("frame size must be positive, got %dx%d", c.Width, c.Height)
		}
	case BackendReplay:
		if c.Dir == "" {
			return fmt.Errorf("dir is required for the replay backend")
		}
	}
	return nil
}

func interval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}
