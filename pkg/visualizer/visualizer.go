// Package visualizer assembles acquisition, the frame store and the render
// loop into one supervised run.
//
// Run creates the display backend before any goroutine starts, so an
// unavailable backend fails the run early. The render loop owns the backend
// from then on and closes it on its own thread. It then starts the render loop, starts
// acquisition, and blocks until the context is cancelled or the viewer is
// closed. Shutdown stops acquisition, then waits for the render loop, which
// observes cancellation within one poll period.
package visualizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-depthview/pkg/export"
	"github.com/teslashibe/go-depthview/pkg/framestore"
	"github.com/teslashibe/go-depthview/pkg/producer"
	"github.com/teslashibe/go-depthview/pkg/render"
	"github.com/teslashibe/go-depthview/pkg/sensor"
	"github.com/teslashibe/go-depthview/pkg/viz"
	"github.com/teslashibe/go-depthview/pkg/web"
)

// ErrAlreadyRunning is returned by Run while another Run is in progress.
var ErrAlreadyRunning = errors.New("visualizer: already running")

// Stats aggregates counters from every component of the current run.
type Stats struct {
	RunID    string           `json:"run_id"`
	Running  bool             `json:"running"`
	Uptime   string           `json:"uptime"`
	Backend  string           `json:"backend"`
	Mode     string           `json:"colorization"`
	Source   sensor.Stats     `json:"source"`
	Producer producer.Stats   `json:"producer"`
	Store    framestore.Stats `json:"store"`
	Render   render.Stats     `json:"render"`
}

// Option customizes a Controller.
type Option func(*Controller)

// WithBackend uses b instead of creating one from Config.Backend.
// The controller closes b when Run returns.
func WithBackend(b viz.Backend) Option {
	return func(c *Controller) { c.backend = b }
}

// WithSource uses src instead of creating one from Config.Source.
func WithSource(src sensor.Source) Option {
	return func(c *Controller) { c.source = src }
}

// Controller supervises one visualizer.
type Controller struct {
	cfg      Config
	logger   *slog.Logger
	store    *framestore.Store
	producer *producer.Producer
	exporter *export.Exporter

	backend viz.Backend
	source  sensor.Source

	running atomic.Bool

	mu      sync.Mutex
	runID   string
	started time.Time
	loop    *render.Loop
	active  viz.Backend
	status  *web.Server
}

// New validates cfg and builds the frame pipeline. Nothing is started until Run.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(cfg.ExportFormat)
	if err != nil {
		return nil, err
	}

	store := framestore.New()
	c := &Controller{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		producer: producer.New(store, cfg.producerConfig(), logger.With("component", "producer")),
		exporter: export.New(cfg.OutputDir, format),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run blocks until ctx is done or the viewer is closed, then shuts down.
// A backend that cannot start is returned before acquisition begins.
// Closing the viewer is a normal shutdown and returns nil.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	source := c.source
	if source == nil {
		s, err := sensor.NewSource(c.cfg.Source, c.logger.With("component", "sensor"))
		if err != nil {
			return fmt.Errorf("visualizer: %w", err)
		}
		source = s
	}

	// The render loop closes the backend when it returns.
	backend := c.backend
	if backend == nil {
		b, err := viz.NewBackend(c.cfg.Backend, c.cfg.Gocv, c.logger.With("component", "viz"))
		if err != nil {
			return fmt.Errorf("visualizer: %w", err)
		}
		backend = b
	}

	runID := uuid.NewString()
	logger := c.logger.With("run", runID)
	loop := render.New(c.store, backend, c.exporter, c.cfg.renderConfig(), logger.With("component", "render"))

	c.mu.Lock()
	c.runID, c.started, c.loop, c.active = runID, time.Now(), loop, backend
	c.source = source
	c.mu.Unlock()

	logger.Info("visualizer starting",
		"backend", backend.Name(),
		"source", source.Name(),
		"colorization", c.producer.Mode(),
		"cloud", c.cfg.EnableCloud,
		"output_dir", c.exporter.Dir,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := loop.Run(gctx)
		if errors.Is(err, render.ErrViewerStopped) {
			cancel()
			return nil
		}
		return err
	})

	if err := source.Start(gctx, c.producer); err != nil {
		cancel()
		g.Wait()
		return fmt.Errorf("visualizer: start source: %w", err)
	}

	var srv *web.Server
	if c.cfg.StatusAddr != "" {
		srv = web.NewServer(c.cfg.StatusAddr, statusProvider{c}, logger.With("component", "web"))
		if err := srv.StartAsync(); err != nil {
			logger.Warn("status server disabled", "error", err)
			srv = nil
		}
		c.mu.Lock()
		c.status = srv
		c.mu.Unlock()
	}

	<-gctx.Done()
	logger.Info("visualizer stopping")

	if srv != nil {
		if err := srv.Shutdown(); err != nil {
			logger.Debug("status server shutdown", "error", err)
		}
		c.mu.Lock()
		c.status = nil
		c.mu.Unlock()
	}
	stopErr := source.Stop()
	err := g.Wait()

	st := c.Stats()
	logger.Info("visualizer stopped",
		"frames", st.Render.Frames,
		"saves", st.Render.Saves,
		"depth_in", st.Producer.DepthFrames,
		"color_in", st.Producer.ColorFrames,
	)
	return errors.Join(err, stopErr)
}

// Stats returns counters for the current or most recent run.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	runID, started, loop, active, source := c.runID, c.started, c.loop, c.active, c.source
	c.mu.Unlock()

	st := Stats{
		RunID:    runID,
		Running:  c.running.Load(),
		Mode:     c.producer.Mode(),
		Producer: c.producer.Stats(),
		Store:    c.store.Stats(),
	}
	if !started.IsZero() {
		st.Uptime = time.Since(started).Round(time.Millisecond).String()
	}
	if loop != nil {
		st.Render = loop.Stats()
	}
	if active != nil {
		st.Backend = active.Name()
	}
	if source != nil {
		st.Source = source.Stats()
	}
	return st
}

// StatusAddr returns the address the status server is bound to, or "" when
// it is not serving.
func (c *Controller) StatusAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == nil {
		return ""
	}
	return c.status.Addr()
}

// Config returns the configuration the controller was built with.
func (c *Controller) Config() Config {
	return c.cfg
}

// statusProvider adapts a Controller to web.Provider.
type statusProvider struct{ c *Controller }

func (p statusProvider) Status() any   { return p.c.Stats() }
func (p statusProvider) Settings() any { return p.c.Config() }
