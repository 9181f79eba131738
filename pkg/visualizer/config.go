package visualizer

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-depthview/internal/config"
	"github.com/teslashibe/go-depthview/pkg/colormap"
	"github.com/teslashibe/go-depthview/pkg/export"
	"github.com/teslashibe/go-depthview/pkg/pointcloud"
	"github.com/teslashibe/go-depthview/pkg/producer"
	"github.com/teslashibe/go-depthview/pkg/render"
	"github.com/teslashibe/go-depthview/pkg/sensor"
	"github.com/teslashibe/go-depthview/pkg/viz"
)

// Config holds all configuration for a visualizer run.
// Flag parsing is done in cmd/depthview/main.go; this struct is data only.
type Config struct {
	// EnableCloud turns point cloud building and drawing on.
	// Default: true
	EnableCloud bool `yaml:"enable_cloud" json:"enable_cloud"`

	// DepthMin and DepthMax bound the fixed colorization range, in raw units.
	// Default: 30-4000
	DepthMin float64 `yaml:"depth_min" json:"depth_min"`
	DepthMax float64 `yaml:"depth_max" json:"depth_max"`

	// AutoContrast stretches each depth frame over its own min/max instead.
	AutoContrast bool `yaml:"auto_contrast" json:"auto_contrast"`

	// PollPeriod is the render tick and key poll timeout.
	// Default: 10ms
	PollPeriod time.Duration `yaml:"poll_period" json:"poll_period"`

	// SaveKey triggers a frame export when pressed.
	// Default: "s"
	SaveKey string `yaml:"save_key" json:"save_key"`

	// OutputDir receives saved frames.
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// ExportFormat is "png" or "tiff".
	ExportFormat string `yaml:"export_format" json:"export_format"`

	// Backend is "auto", "gocv" or "headless".
	Backend string `yaml:"backend" json:"backend"`

	// Gocv tunes the OpenCV window backend.
	Gocv viz.GocvOptions `yaml:"gocv" json:"gocv"`

	// Source configures acquisition.
	Source sensor.Config `yaml:"source" json:"source"`

	// Intrinsics and CloudStride control point cloud reconstruction.
	Intrinsics  pointcloud.Intrinsics `yaml:"intrinsics" json:"intrinsics"`
	CloudStride int                   `yaml:"cloud_stride" json:"cloud_stride"`

	// StatusAddr enables the HTTP status server when non-empty, e.g. ":8090".
	StatusAddr string `yaml:"status_addr" json:"status_addr"`

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableCloud:  true,
		DepthMin:     colormap.DefaultMin,
		DepthMax:     colormap.DefaultMax,
		PollPeriod:   render.DefaultPollPeriod,
		SaveKey:      "s",
		OutputDir:    ".",
		ExportFormat: string(export.FormatPNG),
		Backend:      viz.BackendAuto,
		Gocv:         viz.DefaultGocvOptions(),
		Source:       sensor.DefaultConfig(),
		Intrinsics:   pointcloud.DefaultIntrinsics(),
		CloudStride:  2,
		LogLevel:     "info",
	}
}

// LoadFile overlays the yaml file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("visualizer: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("visualizer: parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnvConfig applies DEPTHVIEW_* environment overrides.
// Call this after LoadFile and before flag overrides.
func (c *Config) LoadEnvConfig() {
	c.EnableCloud = config.Bool("cloud", c.EnableCloud)
	c.DepthMin = config.Float("depth_min", c.DepthMin)
	c.DepthMax = config.Float("depth_max", c.DepthMax)
	c.AutoContrast = config.Bool("auto_contrast", c.AutoContrast)
	c.PollPeriod = config.Duration("poll_period", c.PollPeriod)
	c.SaveKey = config.String("save_key", c.SaveKey)
	c.OutputDir = config.String("output_dir", c.OutputDir)
	c.ExportFormat = config.String("export_format", c.ExportFormat)
	c.Backend = config.String("backend", c.Backend)
	c.Source.Backend = sensor.Backend(config.String("source", string(c.Source.Backend)))
	c.Source.Dir = config.String("replay_dir", c.Source.Dir)
	c.Source.DepthFPS = config.Int("depth_fps", c.Source.DepthFPS)
	c.Source.ColorFPS = config.Int("color_fps", c.Source.ColorFPS)
	c.CloudStride = config.Int("cloud_stride", c.CloudStride)
	c.StatusAddr = config.String("status_addr", c.StatusAddr)
	c.LogLevel = config.String("log_level", c.LogLevel)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !c.AutoContrast && c.DepthMax <= c.DepthMin {
		return &ConfigError{Field: "DepthMax", Message: fmt.Sprintf("depth_max (%g) must exceed depth_min (%g)", c.DepthMax, c.DepthMin)}
	}
	if c.PollPeriod <= 0 {
		return &ConfigError{Field: "PollPeriod", Message: "poll_period must be positive"}
	}
	if len([]rune(c.SaveKey)) != 1 {
		return &ConfigError{Field: "SaveKey", Message: fmt.Sprintf("save_key must be a single character, got %q", c.SaveKey)}
	}
	if _, err := export.ParseFormat(c.ExportFormat); err != nil {
		return &ConfigError{Field: "ExportFormat", Message: err.Error()}
	}
	switch c.Backend {
	case viz.BackendAuto, viz.BackendGocv, viz.BackendHeadless:
	default:
		return &ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown backend %q (want auto, gocv or headless)", c.Backend)}
	}
	if err := c.Source.Validate(); err != nil {
		return &ConfigError{Field: "Source", Message: err.Error()}
	}
	if c.EnableCloud {
		if err := c.Intrinsics.Validate(); err != nil {
			return &ConfigError{Field: "Intrinsics", Message: err.Error()}
		}
		if c.CloudStride < 1 {
			return &ConfigError{Field: "CloudStride", Message: "cloud_stride must be at least 1"}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func (c *Config) saveKey() viz.Key {
	for _, r := range c.SaveKey {
		return viz.Key(r)
	}
	return 's'
}

func (c *Config) producerConfig() producer.Config {
	m := colormap.Mapper{Mode: colormap.ModeFixed, Min: c.DepthMin, Max: c.DepthMax}
	if c.AutoContrast {
		m.Mode = colormap.ModeAuto
	}
	return producer.Config{
		Mapper:      m,
		BuildCloud:  c.EnableCloud,
		Intrinsics:  c.Intrinsics,
		CloudStride: c.CloudStride,
	}
}

func (c *Config) renderConfig() render.Config {
	return render.Config{
		PollPeriod:  c.PollPeriod,
		EnableCloud: c.EnableCloud,
		SaveKey:     c.saveKey(),
	}
}
