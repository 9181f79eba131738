//go:build gocv

package viz

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

// GocvBackend shows frames in OpenCV HighGUI windows. Point clouds are drawn
// as a front-view projection in their own window.
type GocvBackend struct {
	opts   GocvOptions
	logger *slog.Logger

	mu      sync.Mutex // Protects windows against Close racing a draw
	windows map[string]*gocv.Window
	clouds  map[string]*CloudProjector
	closed  bool
}

func newGocvBackend(opts GocvOptions, logger *slog.Logger) (Backend, error) {
	if opts.CloudWindowSize <= 0 {
		opts.CloudWindowSize = DefaultGocvOptions().CloudWindowSize
	}
	return &GocvBackend{
		opts:    opts,
		logger:  logger,
		windows: make(map[string]*gocv.Window),
		clouds:  make(map[string]*CloudProjector),
	}, nil
}

func (g *GocvBackend) window(tag string) *gocv.Window {
	w, ok := g.windows[tag]
	if !ok {
		w = gocv.NewWindow(tag)
		g.windows[tag] = w
		g.logger.Debug("opened window", "tag", tag)
	}
	return w
}

func (g *GocvBackend) show(tag string, img image.Image) error {
	if g.closed {
		return fmt.Errorf("gocv: show %q: %w", tag, ErrBackendUnavailable)
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("gocv: convert %q: %w", tag, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil
	}
	g.window(tag).IMShow(mat)
	return nil
}

// ShowImage draws img in the window named tag.
func (g *GocvBackend) ShowImage(tag string, img image.Image) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.show(tag, img)
}

// UpdatePointCloud redraws an existing cloud window.
func (g *GocvBackend) UpdatePointCloud(tag string, buf frame.PointBuffer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.clouds[tag]
	if !ok {
		return ErrCloudNotFound
	}
	return g.show(tag, p.Project(buf, g.opts.CloudWindowSize))
}

// AddPointCloud opens a cloud window and draws buf in it.
func (g *GocvBackend) AddPointCloud(tag string, buf frame.PointBuffer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return fmt.Errorf("gocv: add %q: %w", tag, ErrBackendUnavailable)
	}
	w := g.window(tag)
	w.ResizeWindow(g.opts.CloudWindowSize, g.opts.CloudWindowSize)
	p := &CloudProjector{}
	g.clouds[tag] = p
	return g.show(tag, p.Project(buf, g.opts.CloudWindowSize))
}

// PollKey runs the HighGUI event loop for up to timeout.
func (g *GocvBackend) PollKey(timeout time.Duration) (Key, bool) {
	ms := int(timeout / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	k := gocv.WaitKey(ms)
	if k < 0 {
		return 0, false
	}
	return Key(k & 0xff), true
}

// WasStopped reports whether the user closed a point cloud window.
func (g *GocvBackend) WasStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for tag := range g.clouds {
		if w, ok := g.windows[tag]; ok && !w.IsOpen() {
			return true
		}
	}
	return false
}

// Name returns "gocv".
func (g *GocvBackend) Name() string {
	return "gocv"
}

// Close destroys all windows.
func (g *GocvBackend) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	for tag, w := range g.windows {
		if err := w.Close(); err != nil {
			g.logger.Warn("close window", "tag", tag, "error", err)
		}
	}
	g.windows = nil
	return nil
}

var (
	_ Backend = (*GocvBackend)(nil)
	_ Stopper = (*GocvBackend)(nil)
)
