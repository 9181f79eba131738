// Package pointcloud back-projects depth frames into colored 3D points using
// a pinhole camera model.
package pointcloud

import (
	"fmt"
	"image"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

// Intrinsics describes the depth camera.
type Intrinsics struct {
	Fx float64 `yaml:"fx" json:"fx"`
	Fy float64 `yaml:"fy" json:"fy"`
	Cx float64 `yaml:"cx" json:"cx"`
	Cy float64 `yaml:"cy" json:"cy"`

	// DepthScale converts a raw sample into meters.
	DepthScale float64 `yaml:"depth_scale" json:"depth_scale"`
}

// DefaultIntrinsics returns the usual values for a 640x480 OpenNI depth
// stream reporting millimeters.
func DefaultIntrinsics() Intrinsics {
	return Intrinsics{
		Fx:         525.0,
		Fy:         525.0,
		Cx:         319.5,
		Cy:         239.5,
		DepthScale: 0.001,
	}
}

// Validate checks the intrinsics are usable.
func (in Intrinsics) Validate() error {
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("focal lengths must be positive, got fx=%g fy=%g", in.Fx, in.Fy)
	}
	if in.DepthScale <= 0 {
		return fmt.Errorf("depth_scale must be positive, got %g", in.DepthScale)
	}
	return nil
}

// Build back-projects every stride-th pixel of depth. Pixels with a zero
// sample are skipped. Points take their color from col when col has the
// same dimensions as depth, and are white otherwise. colorAt is recorded as
// the cloud's ColorTime.
func Build(depth frame.RawDepthFrame, col *image.RGBA, colorAt time.Time, in Intrinsics, stride int) frame.PointBuffer {
	var buf frame.PointBuffer
	BuildInto(&buf, depth, col, colorAt, in, stride)
	return buf
}

// BuildInto is Build reusing dst's backing array.
func BuildInto(dst *frame.PointBuffer, depth frame.RawDepthFrame, col *image.RGBA, colorAt time.Time, in Intrinsics, stride int) {
	dst.Points = dst.Points[:0]
	dst.DepthTime = depth.Timestamp
	dst.ColorTime = colorAt
	if depth.Validate() != nil {
		return
	}
	if stride < 1 {
		stride = 1
	}
	matched := !frame.ImageEmpty(col) &&
		col.Bounds().Dx() == depth.Width && col.Bounds().Dy() == depth.Height

	for y := 0; y < depth.Height; y += stride {
		for x := 0; x < depth.Width; x += stride {
			raw := depth.At(x, y)
			if raw == 0 {
				continue
			}
			z := float64(raw) * in.DepthScale
			p := frame.Point{
				Pos: r3.Vec{
					X: (float64(x) - in.Cx) * z / in.Fx,
					Y: (float64(y) - in.Cy) * z / in.Fy,
					Z: z,
				},
				R: 255, G: 255, B: 255,
			}
			if matched {
				c := col.RGBAAt(col.Rect.Min.X+x, col.Rect.Min.Y+y)
				p.R, p.G, p.B = c.R, c.G, c.B
			}
			dst.Points = append(dst.Points, p)
		}
	}
}

// Bounds returns the axis-aligned bounding box of the points. ok is false
// for an empty buffer.
func Bounds(buf frame.PointBuffer) (min, max r3.Vec, ok bool) {
	n := len(buf.Points)
	if n == 0 {
		return r3.Vec{}, r3.Vec{}, false
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	for i, p := range buf.Points {
		xs[i], ys[i], zs[i] = p.Pos.X, p.Pos.Y, p.Pos.Z
	}
	min = r3.Vec{X: floats.Min(xs), Y: floats.Min(ys), Z: floats.Min(zs)}
	max = r3.Vec{X: floats.Max(xs), Y: floats.Max(ys), Z: floats.Max(zs)}
	return min, max, true
}

// Centroid returns the mean position of the points.
func Centroid(buf frame.PointBuffer) r3.Vec {
	var c r3.Vec
	if len(buf.Points) == 0 {
		return c
	}
	for _, p := range buf.Points {
		c = r3.Add(c, p.Pos)
	}
	return r3.Scale(1/float64(len(buf.Points)), c)
}
