package sensor

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

// MockSource generates synthetic frames: a depth ramp that slides sideways
// with a hole of missing samples, and a color gradient in BGR order.
type MockSource struct {
	cfg Config
	runner

	minDepth, maxDepth uint16
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithDepthRange sets the range of generated depth samples. An inverted
// range is swapped.
func WithDepthRange(min, max uint16) MockSourceOption {
	return func(m *MockSource) {
		if max < min {
			min, max = max, min
		}
		m.minDepth, m.maxDepth = min, max
	}
}

// NewMockSource creates a new mock source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:      cfg,
		runner:   runner{name: "mock", logger: logger},
		minDepth: 500,
		maxDepth: 3500,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating frames.
func (m *MockSource) Start(ctx context.Context, sink frame.FrameSink) error {
	m.start(ctx,
		func(ctx context.Context) error {
			phase := 0
			return every(ctx, interval(m.cfg.DepthFPS), func() {
				sink.OnDepth(m.depthFrame(phase))
				m.depthFrames.Add(1)
				phase++
			})
		},
		func(ctx context.Context) error {
			phase := 0
			return every(ctx, interval(m.cfg.ColorFPS), func() {
				sink.OnColor(m.colorFrame(phase))
				m.colorFrames.Add(1)
				phase++
			})
		},
	)
	return nil
}

func (m *MockSource) depthFrame(phase int) frame.RawDepthFrame {
	w, h := m.cfg.Width, m.cfg.Height
	data := make([]uint16, w*h)
	span := int(m.maxDepth) - int(m.minDepth)
	holeX, holeY := w/2, h/2
	holeR := min(w, h) / 8

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-holeX, y-holeY
			if dx*dx+dy*dy < holeR*holeR {
				continue // no reading
			}
			col := (x + phase) % w
			data[y*w+x] = m.minDepth + uint16(col*span/w)
		}
	}
	return frame.RawDepthFrame{Width: w, Height: h, Data: data, Timestamp: time.Now()}
}

func (m *MockSource) colorFrame(phase int) frame.RawColorFrame {
	w, h := m.cfg.Width, m.cfg.Height
	data := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := 3 * (y*w + x)
			data[i] = byte(y * 255 / h)                 // B
			data[i+1] = byte(phase)                     // G
			data[i+2] = byte((x + phase) % w * 255 / w) // R
		}
	}
	return frame.RawColorFrame{
		Width:     w,
		Height:    h,
		Data:      data,
		Order:     frame.OrderBGR,
		Timestamp: time.Now(),
	}
}

// Stop halts generation.
func (m *MockSource) Stop() error {
	return m.stop()
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Stats returns source statistics.
func (m *MockSource) Stats() Stats {
	return m.stats()
}

// Ensure MockSource implements Source.
var _ Source = (*MockSource)(nil)
