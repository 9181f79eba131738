// Package viz defines the rendering backend consumed by the render loop and
// the Renderer built on top of it.
//
// Backends are thread-affine: create, use and close them from one goroutine
// (the render loop pins itself to an OS thread for this reason).
//
// Supported backends:
//   - headless: records draws in memory, keys are injected (CI, tests, servers)
//   - gocv: OpenCV HighGUI windows (build with -tags gocv)
package viz

import (
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

// Sentinel errors.
var (
	// ErrBackendUnavailable is returned when a backend cannot be initialized.
	ErrBackendUnavailable = errors.New("viz: backend unavailable")

	// ErrCloudNotFound is returned by UpdatePointCloud when no cloud with the
	// given tag has been added yet.
	ErrCloudNotFound = errors.New("viz: point cloud not found")
)

// Window tags. Save file suffixes use the same names.
const (
	TagColor = "rgb"
	TagDepth = "d"
	TagCloud = "pc"
)

// Key is a key code returned by PollKey.
type Key rune

// Backend is the drawing surface.
type Backend interface {
	// ShowImage draws img in the window named tag, creating it if needed.
	ShowImage(tag string, img image.Image) error

	// UpdatePointCloud replaces the cloud named tag. It returns
	// ErrCloudNotFound if AddPointCloud was never called for tag.
	UpdatePointCloud(tag string, buf frame.PointBuffer) error

	// AddPointCloud inserts a new cloud named tag.
	AddPointCloud(tag string, buf frame.PointBuffer) error

	// PollKey waits up to timeout for a key press. ok is false on timeout.
	PollKey(timeout time.Duration) (key Key, ok bool)

	// Name returns the backend name (e.g., "gocv", "headless").
	Name() string

	io.Closer
}

// Stopper is implemented by backends whose user can close the viewer.
type Stopper interface {
	WasStopped() bool
}

// UpsertPointCloud updates the cloud named tag, inserting it when the
// backend reports it absent. No existence check is made up front.
func UpsertPointCloud(b Backend, tag string, buf frame.PointBuffer) error {
	err := b.UpdatePointCloud(tag, buf)
	if errors.Is(err, ErrCloudNotFound) {
		return b.AddPointCloud(tag, buf)
	}
	return err
}

// Renderer draws the three streams.
type Renderer interface {
	DrawColor(img *image.RGBA) error
	DrawDepth(d frame.DisplayDepth) error
	DrawCloud(buf frame.PointBuffer) error
}

// BackendRenderer is a Renderer over a Backend using the standard tags.
type BackendRenderer struct {
	backend Backend
}

// NewRenderer wraps b.
func NewRenderer(b Backend) *BackendRenderer {
	return &BackendRenderer{backend: b}
}

// DrawColor shows the color frame. Empty frames are skipped.
func (r *BackendRenderer) DrawColor(img *image.RGBA) error {
	if frame.ImageEmpty(img) {
		return nil
	}
	if err := r.backend.ShowImage(TagColor, img); err != nil {
		return fmt.Errorf("draw color: %w", err)
	}
	return nil
}

// DrawDepth shows the color-mapped depth frame. Empty frames are skipped.
func (r *BackendRenderer) DrawDepth(d frame.DisplayDepth) error {
	if d.Empty() {
		return nil
	}
	if err := r.backend.ShowImage(TagDepth, d.Color); err != nil {
		return fmt.Errorf("draw depth: %w", err)
	}
	return nil
}

// DrawCloud upserts the point cloud.
func (r *BackendRenderer) DrawCloud(buf frame.PointBuffer) error {
	if err := UpsertPointCloud(r.backend, TagCloud, buf); err != nil {
		return fmt.Errorf("draw cloud: %w", err)
	}
	return nil
}

var _ Renderer = (*BackendRenderer)(nil)
