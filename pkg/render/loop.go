// Package render runs the display loop that drains the frame store and draws
// whatever changed.
//
// The loop cycles Idle -> Draining -> Rendering -> Idle once per poll period.
// Each tick it waits up to one period for a key, tries to drain the store,
// and draws only when the drain returned a snapshot. Drawing happens with the
// store lock released, so producers are never held up by the backend.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-depthview/pkg/export"
	"github.com/teslashibe/go-depthview/pkg/framestore"
	"github.com/teslashibe/go-depthview/pkg/viz"
)

// ErrViewerStopped is returned by Run when the user closed the viewer.
var ErrViewerStopped = errors.New("render: viewer stopped")

// DefaultPollPeriod is the tick length when Config.PollPeriod is zero.
const DefaultPollPeriod = 10 * time.Millisecond

// State is the loop's position in its tick.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StateRendering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateRendering:
		return "rendering"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config controls the loop.
type Config struct {
	PollPeriod  time.Duration
	EnableCloud bool
	SaveKey     viz.Key
}

// Stats counts loop activity.
type Stats struct {
	State        string `json:"state"`
	Ticks        int64  `json:"ticks"`
	Frames       int64  `json:"frames"`
	Saves        int64  `json:"saves"`
	SaveErrors   int64  `json:"save_errors"`
	DrawErrors   int64  `json:"draw_errors"`
	SkippedColor int64  `json:"skipped_color"`
	SkippedDepth int64  `json:"skipped_depth"`
}

// Loop is the render loop. Run it on exactly one goroutine.
type Loop struct {
	store    *framestore.Store
	backend  viz.Backend
	renderer viz.Renderer
	exporter *export.Exporter
	cfg      Config
	logger   *slog.Logger

	state atomic.Int32

	// frameID names save files; it advances on every render pass.
	frameID atomic.Int64

	ticks        atomic.Int64
	saves        atomic.Int64
	saveErrors   atomic.Int64
	drawErrors   atomic.Int64
	skippedColor atomic.Int64
	skippedDepth atomic.Int64
}

// New creates a loop drawing to backend through a viz.BackendRenderer.
func New(store *framestore.Store, backend viz.Backend, exporter *export.Exporter, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = DefaultPollPeriod
	}
	return &Loop{
		store:    store,
		backend:  backend,
		renderer: viz.NewRenderer(backend),
		exporter: exporter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run loops until ctx is done or the backend reports the viewer stopped.
// It returns nil on cancellation and ErrViewerStopped in the latter case.
// Cancellation is observed within one poll period.
//
// Run owns the backend: it closes it on return, from the same OS thread that
// drew to it.
func (l *Loop) Run(ctx context.Context) error {
	// GUI toolkits expect every call from the thread that created the window.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer l.closeBackend()
	defer l.setState(StateStopped)

	stopper, _ := l.backend.(viz.Stopper)
	var snap framestore.Snapshot

	l.logger.Info("render loop started",
		"backend", l.backend.Name(),
		"period", l.cfg.PollPeriod,
		"cloud", l.cfg.EnableCloud,
	)

	for {
		if ctx.Err() != nil {
			l.logger.Info("render loop stopped", "frames", l.frameID.Load())
			return nil
		}
		if stopper != nil && stopper.WasStopped() {
			l.logger.Info("viewer closed", "frames", l.frameID.Load())
			return ErrViewerStopped
		}

		start := time.Now()
		key, pressed := l.backend.PollKey(l.cfg.PollPeriod)
		l.ticks.Add(1)

		l.setState(StateDraining)
		if l.store.DrainInto(&snap) {
			l.setState(StateRendering)
			l.render(&snap, key, pressed)
		}
		l.setState(StateIdle)

		if pressed {
			continue
		}
		if rest := l.cfg.PollPeriod - time.Since(start); rest > 0 {
			timer := time.NewTimer(rest)
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
			timer.Stop()
		}
	}
}

// render draws one snapshot and handles the save key. The key only counts
// on a tick that also drained a snapshot.
func (l *Loop) render(snap *framestore.Snapshot, key viz.Key, pressed bool) {
	id := l.frameID.Load()

	if snap.Color == nil || snap.Color.Bounds().Empty() {
		l.skippedColor.Add(1)
	} else if err := l.renderer.DrawColor(snap.Color); err != nil {
		l.drawErrors.Add(1)
		l.logger.Warn("draw failed", "error", err)
	}

	if snap.Depth.Empty() {
		l.skippedDepth.Add(1)
	} else if err := l.renderer.DrawDepth(snap.Depth); err != nil {
		l.drawErrors.Add(1)
		l.logger.Warn("draw failed", "error", err)
	}

	if l.cfg.EnableCloud {
		if err := l.renderer.DrawCloud(snap.Cloud); err != nil {
			l.drawErrors.Add(1)
			l.logger.Warn("draw failed", "error", err)
		}
	}

	if pressed && key == l.cfg.SaveKey && l.exporter != nil {
		l.save(id, snap)
	}
	l.frameID.Add(1)
}

func (l *Loop) save(id int64, snap *framestore.Snapshot) {
	l.logger.Info("save requested", "key", string(l.cfg.SaveKey), "frame", id)

	written, err := l.exporter.Save(id, snap.Color, snap.RawDepth)
	for _, w := range written {
		l.logger.Info("saved frame",
			"frame", id,
			"path", w.Path,
			"width", w.Width,
			"height", w.Height,
		)
	}
	if err != nil {
		l.saveErrors.Add(1)
		l.logger.Warn("save failed", "frame", id, "error", err)
		return
	}
	l.saves.Add(1)
}

func (l *Loop) closeBackend() {
	if err := l.backend.Close(); err != nil {
		l.logger.Warn("backend close failed", "backend", l.backend.Name(), "error", err)
	}
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// State returns the loop's current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		State:        l.State().String(),
		Ticks:        l.ticks.Load(),
		Frames:       l.frameID.Load(),
		Saves:        l.saves.Load(),
		SaveErrors:   l.saveErrors.Load(),
		DrawErrors:   l.drawErrors.Load(),
		SkippedColor: l.skippedColor.Load(),
		SkippedDepth: l.skippedDepth.Load(),
	}
}
