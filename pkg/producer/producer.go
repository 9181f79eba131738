// Package producer bridges raw sensor callbacks into frame store publishes.
//
// Each callback converts its frame on the calling goroutine, outside any
// lock, then publishes the result. Depth and color are independent partial
// updates; OnDepth and OnColor may run concurrently.
package producer

import (
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-depthview/pkg/colormap"
	"github.com/teslashibe/go-depthview/pkg/frame"
	"github.com/teslashibe/go-depthview/pkg/framestore"
	"github.com/teslashibe/go-depthview/pkg/pointcloud"
)

// Config controls how frames are transformed before publishing.
type Config struct {
	// Mapper selects fixed-range or auto-contrast depth colorization.
	Mapper colormap.Mapper

	// BuildCloud rebuilds the point buffer on every depth frame.
	BuildCloud bool

	// Intrinsics and CloudStride are used when BuildCloud is set.
	Intrinsics  pointcloud.Intrinsics
	CloudStride int
}

// DefaultConfig returns fixed-range colorization with cloud building on.
func DefaultConfig() Config {
	return Config{
		Mapper:      colormap.DefaultMapper(),
		BuildCloud:  true,
		Intrinsics:  pointcloud.DefaultIntrinsics(),
		CloudStride: 2,
	}
}

// Stats counts callback activity.
type Stats struct {
	DepthFrames     int64 `json:"depth_frames"`
	ColorFrames     int64 `json:"color_frames"`
	MalformedDepth  int64 `json:"malformed_depth"`
	MalformedColor  int64 `json:"malformed_color"`
	CloudsPublished int64 `json:"clouds_published"`
}

// Producer implements frame.FrameSink on top of a framestore.Store.
type Producer struct {
	store  *framestore.Store
	cfg    Config
	logger *slog.Logger

	depthFrames     atomic.Int64
	colorFrames     atomic.Int64
	malformedDepth  atomic.Int64
	malformedColor  atomic.Int64
	cloudsPublished atomic.Int64
}

// New creates a producer publishing into store.
func New(store *framestore.Store, cfg Config, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Producer{store: store, cfg: cfg, logger: logger}
	logger.Info("depth colorization", "mode", cfg.Mapper.String(), "cloud", cfg.BuildCloud)
	return p
}

// OnDepth colorizes f, publishes it with a copy of the raw samples, and
// optionally publishes a point cloud built from f and the latest color frame.
// A malformed f publishes an empty depth frame so the next render skips the
// depth view instead of redrawing the previous one.
func (p *Producer) OnDepth(f frame.RawDepthFrame) {
	if err := f.Validate(); err != nil {
		p.malformedDepth.Add(1)
		p.logger.Debug("malformed depth frame", "error", err)
		p.store.PublishDepth(frame.DisplayDepth{}, frame.RawDepthFrame{})
		if p.cfg.BuildCloud {
			p.store.PublishCloud(frame.PointBuffer{DepthTime: f.Timestamp})
		}
		return
	}
	p.depthFrames.Add(1)

	p.store.PublishDepth(p.cfg.Mapper.Apply(f), f)

	if !p.cfg.BuildCloud {
		return
	}
	// The color frame may be newer or older than f.
	var col *image.RGBA
	colorAt := p.store.LatestColor(&col)
	p.store.PublishCloud(pointcloud.Build(f, col, colorAt, p.cfg.Intrinsics, p.cfg.CloudStride))
	p.cloudsPublished.Add(1)
}

// OnColor converts f to RGBA display order and publishes it. A malformed f
// publishes an empty color frame.
func (p *Producer) OnColor(f frame.RawColorFrame) {
	if err := f.Validate(); err != nil {
		p.malformedColor.Add(1)
		p.logger.Debug("malformed color frame", "error", err)
		p.store.PublishColor(nil, f.Timestamp)
		return
	}
	p.colorFrames.Add(1)

	p.store.PublishColor(ToRGBA(f), f.Timestamp)
}

// Mode describes the depth colorization in effect.
func (p *Producer) Mode() string {
	return p.cfg.Mapper.String()
}

// Stats returns callback counters.
func (p *Producer) Stats() Stats {
	return Stats{
		DepthFrames:     p.depthFrames.Load(),
		ColorFrames:     p.colorFrames.Load(),
		MalformedDepth:  p.malformedDepth.Load(),
		MalformedColor:  p.malformedColor.Load(),
		CloudsPublished: p.cloudsPublished.Load(),
	}
}

// ToRGBA converts packed 3-channel samples into an opaque RGBA image,
// swapping channels when the source is BGR. f must be valid.
func ToRGBA(f frame.RawColorFrame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	ri, bi := 0, 2
	if f.Order == frame.OrderBGR {
		ri, bi = 2, 0
	}
	for i := 0; i < n; i++ {
		src := f.Data[3*i : 3*i+3 : 3*i+3]
		dst := img.Pix[4*i : 4*i+4 : 4*i+4]
		dst[0], dst[1], dst[2], dst[3] = src[ri], src[1], src[bi], 0xff
	}
	return img
}

var _ frame.FrameSink = (*Producer)(nil)
