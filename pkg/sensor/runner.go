package sensor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// runner owns the goroutines of a source: one per stream, all stopped
// together.
type runner struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	depthFrames atomic.Int64
	colorFrames atomic.Int64
}

// start launches each stream on its own goroutine. It is a no-op if the
// runner is already running.
func (r *runner) start(ctx context.Context, streams ...func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		s := s
		g.Go(func() error { return s(gctx) })
	}
	r.running, r.cancel, r.group = true, cancel, g

	r.logger.Info("sensor source started", "backend", r.name)
}

// stop cancels the streams and waits for them to return.
func (r *runner) stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel, g := r.cancel, r.group
	r.mu.Unlock()

	cancel()
	err := g.Wait()
	r.logger.Info("sensor source stopped",
		"backend", r.name,
		"depth_frames", r.depthFrames.Load(),
		"color_frames", r.colorFrames.Load(),
	)
	return err
}

func (r *runner) stats() Stats {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()

	return Stats{
		DepthFrames: r.depthFrames.Load(),
		ColorFrames: r.colorFrames.Load(),
		Running:     running,
		Backend:     r.name,
	}
}

// every calls fn once per period until ctx is done.
func every(ctx context.Context, period time.Duration, fn func()) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}
