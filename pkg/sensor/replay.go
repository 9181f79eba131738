package sensor

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/teslashibe/go-depthview/pkg/export"
	"github.com/teslashibe/go-depthview/pkg/frame"
)

// ReplaySource loops over frame_*__d.* and frame_*__rgb.* files in a
// directory, as written by the save key. Depth and color files are replayed
// independently, each stream in file name order.
type ReplaySource struct {
	cfg Config
	runner

	depth []frame.RawDepthFrame
	color []frame.RawColorFrame
}

// NewReplaySource creates a replay source. Files are loaded on Start.
func NewReplaySource(cfg Config, logger *slog.Logger) *ReplaySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplaySource{
		cfg:    cfg,
		runner: runner{name: "replay", logger: logger},
	}
}

// Start loads the frames and begins replaying them. It returns ErrNoFrames
// if the directory holds neither depth nor color files.
func (r *ReplaySource) Start(ctx context.Context, sink frame.FrameSink) error {
	if err := r.load(); err != nil {
		return err
	}

	var streams []func(context.Context) error
	if len(r.depth) > 0 {
		streams = append(streams, func(ctx context.Context) error {
			i := 0
			return every(ctx, interval(r.cfg.DepthFPS), func() {
				f := r.depth[i%len(r.depth)]
				f.Timestamp = time.Now()
				sink.OnDepth(f)
				r.depthFrames.Add(1)
				i++
			})
		})
	}
	if len(r.color) > 0 {
		streams = append(streams, func(ctx context.Context) error {
			i := 0
			return every(ctx, interval(r.cfg.ColorFPS), func() {
				f := r.color[i%len(r.color)]
				f.Timestamp = time.Now()
				sink.OnColor(f)
				r.colorFrames.Add(1)
				i++
			})
		})
	}
	r.start(ctx, streams...)
	return nil
}

func (r *ReplaySource) load() error {
	if r.depth != nil || r.color != nil {
		return nil
	}

	depthFiles, err := glob(r.cfg.Dir, "d")
	if err != nil {
		return err
	}
	colorFiles, err := glob(r.cfg.Dir, "rgb")
	if err != nil {
		return err
	}
	if len(depthFiles) == 0 && len(colorFiles) == 0 {
		return fmt.Errorf("%w in %s", ErrNoFrames, r.cfg.Dir)
	}

	for _, path := range depthFiles {
		f, err := loadDepth(path)
		if err != nil {
			return err
		}
		r.depth = append(r.depth, f)
	}
	for _, path := range colorFiles {
		f, err := loadColor(path)
		if err != nil {
			return err
		}
		r.color = append(r.color, f)
	}

	r.logger.Info("replay frames loaded",
		"dir", r.cfg.Dir,
		"depth", len(r.depth),
		"color", len(r.color),
	)
	return nil
}

func glob(dir, suffix string) ([]string, error) {
	var out []string
	for _, ext := range []string{"png", "tiff", "tif"} {
		m, err := filepath.Glob(filepath.Join(dir, "frame_*__"+suffix+"."+ext))
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	slices.Sort(out)
	return out, nil
}

func loadDepth(path string) (frame.RawDepthFrame, error) {
	img, err := export.Decode(path)
	if err != nil {
		return frame.RawDepthFrame{}, fmt.Errorf("replay: decode %s: %w", path, err)
	}
	g, ok := img.(*image.Gray16)
	if !ok {
		g = image.NewGray16(img.Bounds())
		draw.Draw(g, g.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	b := g.Bounds()
	f := frame.RawDepthFrame{Width: b.Dx(), Height: b.Dy(), Data: make([]uint16, b.Dx()*b.Dy())}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.Data[y*f.Width+x] = g.Gray16At(b.Min.X+x, b.Min.Y+y).Y
		}
	}
	return f, nil
}

func loadColor(path string) (frame.RawColorFrame, error) {
	img, err := export.Decode(path)
	if err != nil {
		return frame.RawColorFrame{}, fmt.Errorf("replay: decode %s: %w", path, err)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	b := rgba.Bounds()
	f := frame.RawColorFrame{
		Width:  b.Dx(),
		Height: b.Dy(),
		Data:   make([]byte, 3*b.Dx()*b.Dy()),
		Order:  frame.OrderRGB,
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := rgba.RGBAAt(b.Min.X+x, b.Min.Y+y)
			i := 3 * (y*f.Width + x)
			f.Data[i], f.Data[i+1], f.Data[i+2] = c.R, c.G, c.B
		}
	}
	return f, nil
}

// Stop halts replay.
func (r *ReplaySource) Stop() error {
	return r.stop()
}

// Name returns "replay".
func (r *ReplaySource) Name() string {
	return "replay"
}

// Stats returns source statistics.
func (r *ReplaySource) Stats() Stats {
	return r.stats()
}

var _ Source = (*ReplaySource)(nil)
