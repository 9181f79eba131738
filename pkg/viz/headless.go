package viz

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

// Headless is a Backend that draws nothing. It remembers what it was asked to
// show, and returns keys queued with PressKey.
//
// Unlike real backends it is safe to inspect from other goroutines.
type Headless struct {
	logger *slog.Logger

	mu      sync.Mutex
	shown   map[string]int
	last    map[string]image.Rectangle
	clouds  map[string]int
	updates int
	adds    int
	closed  bool
	stopped bool

	keys chan Key
}

// NewHeadless creates a headless backend.
func NewHeadless(logger *slog.Logger) *Headless {
	if logger == nil {
		logger = slog.Default()
	}
	return &Headless{
		logger: logger,
		shown:  make(map[string]int),
		last:   make(map[string]image.Rectangle),
		clouds: make(map[string]int),
		keys:   make(chan Key, 16),
	}
}

// ShowImage records the draw.
func (h *Headless) ShowImage(tag string, img image.Image) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("headless: show %q: %w", tag, ErrBackendUnavailable)
	}
	h.shown[tag]++
	h.last[tag] = img.Bounds()
	return nil
}

// UpdatePointCloud records an update, or returns ErrCloudNotFound.
func (h *Headless) UpdatePointCloud(tag string, buf frame.PointBuffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clouds[tag]; !ok {
		return ErrCloudNotFound
	}
	h.clouds[tag] = buf.Len()
	h.updates++
	return nil
}

// AddPointCloud records an insert.
func (h *Headless) AddPointCloud(tag string, buf frame.PointBuffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clouds[tag]; ok {
		return fmt.Errorf("headless: cloud %q already added", tag)
	}
	h.clouds[tag] = buf.Len()
	h.adds++
	return nil
}

// PollKey returns a queued key, or waits timeout and returns false.
func (h *Headless) PollKey(timeout time.Duration) (Key, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case k := <-h.keys:
		return k, true
	case <-timer.C:
		return 0, false
	}
}

// PressKey queues a key for the next PollKey. Keys beyond the queue
// capacity are dropped.
func (h *Headless) PressKey(k Key) {
	select {
	case h.keys <- k:
	default:
		h.logger.Debug("headless: key queue full, dropping key", "key", string(k))
	}
}

// Stop makes WasStopped report true, as if the user closed the viewer.
func (h *Headless) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

// WasStopped implements Stopper.
func (h *Headless) WasStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Name returns "headless".
func (h *Headless) Name() string {
	return "headless"
}

// Close marks the backend closed. It is safe to call Close multiple times.
func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// HeadlessStats is a snapshot of what a Headless backend was asked to do.
type HeadlessStats struct {
	Shown        map[string]int
	LastBounds   map[string]image.Rectangle
	CloudPoints  map[string]int
	CloudAdds    int
	CloudUpdates int
	Closed       bool
}

// Stats returns a copy of the recorded activity.
func (h *Headless) Stats() HeadlessStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := HeadlessStats{
		Shown:        make(map[string]int, len(h.shown)),
		LastBounds:   make(map[string]image.Rectangle, len(h.last)),
		CloudPoints:  make(map[string]int, len(h.clouds)),
		CloudAdds:    h.adds,
		CloudUpdates: h.updates,
		Closed:       h.closed,
	}
	for k, v := range h.shown {
		st.Shown[k] = v
	}
	for k, v := range h.last {
		st.LastBounds[k] = v
	}
	for k, v := range h.clouds {
		st.CloudPoints[k] = v
	}
	return st
}

var (
	_ Backend = (*Headless)(nil)
	_ Stopper = (*Headless)(nil)
)
