// Package frame defines the frame types exchanged between the acquisition
// layer, the producer callbacks, the frame store and the render loop.
//
// Raw frames are owned by the acquisition layer until a callback returns.
// Anything that must outlive the callback is copied.
package frame

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrMalformedFrame is returned for zero-sized frames or frames whose buffer
// does not match their declared dimensions.
var ErrMalformedFrame = errors.New("frame: malformed frame")

// Kind identifies one of the independently updated streams.
type Kind int

const (
	KindDepth Kind = iota
	KindColor
	KindCloud
)

func (k Kind) String() string {
	switch k {
	case KindDepth:
		return "depth"
	case KindColor:
		return "color"
	case KindCloud:
		return "cloud"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ChannelOrder is the byte order of a 3-channel color sample.
type ChannelOrder int

const (
	// OrderBGR is what OpenNI style drivers deliver.
	OrderBGR ChannelOrder = iota
	OrderRGB
)

// RawDepthFrame is a width x height grid of 16-bit depth samples, row major.
// A sample of 0 means "no reading".
type RawDepthFrame struct {
	Width     int
	Height    int
	Data      []uint16
	Timestamp time.Time
}

// Validate reports ErrMalformedFrame for empty or inconsistent frames.
func (f RawDepthFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: depth %dx%d", ErrMalformedFrame, f.Width, f.Height)
	}
	if len(f.Data) < f.Width*f.Height {
		return fmt.Errorf("%w: depth buffer has %d samples, want %d",
			ErrMalformedFrame, len(f.Data), f.Width*f.Height)
	}
	return nil
}

// Empty reports whether the frame holds no samples.
func (f RawDepthFrame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0
}

// At returns the sample at column x, row y.
func (f RawDepthFrame) At(x, y int) uint16 {
	return f.Data[y*f.Width+x]
}

// Gray16 returns the frame as a 16-bit grayscale image suitable for lossless
// export. The returned image does not alias f.Data.
func (f RawDepthFrame) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		v := f.Data[i]
		img.Pix[2*i] = byte(v >> 8)
		img.Pix[2*i+1] = byte(v)
	}
	return img
}

// CopyInto copies f into dst, growing dst.Data only when it is too small.
func (f RawDepthFrame) CopyInto(dst *RawDepthFrame) {
	n := f.Width * f.Height
	if cap(dst.Data) < n {
		dst.Data = make([]uint16, n)
	}
	dst.Data = dst.Data[:n]
	copy(dst.Data, f.Data[:n])
	dst.Width, dst.Height, dst.Timestamp = f.Width, f.Height, f.Timestamp
}

// RawColorFrame is a width x height grid of packed 3-channel samples.
type RawColorFrame struct {
	Width     int
	Height    int
	Data      []byte
	Order     ChannelOrder
	Timestamp time.Time
}

// Validate reports ErrMalformedFrame for empty or inconsistent frames.
func (f RawColorFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: color %dx%d", ErrMalformedFrame, f.Width, f.Height)
	}
	if len(f.Data) < f.Width*f.Height*3 {
		return fmt.Errorf("%w: color buffer has %d bytes, want %d",
			ErrMalformedFrame, len(f.Data), f.Width*f.Height*3)
	}
	return nil
}

// DisplayDepth is the color-mapped rendition of a depth frame.
// Intensity holds the 8-bit scaled values that were fed through the palette.
type DisplayDepth struct {
	Intensity *image.Gray
	Color     *image.RGBA
}

// Empty reports whether there is nothing to draw.
func (d DisplayDepth) Empty() bool {
	return ImageEmpty(d.Color)
}

// Point is one colored 3D point. Coordinates are in meters, camera frame.
type Point struct {
	Pos     r3.Vec
	R, G, B uint8
}

// PointBuffer is a colored point cloud.
type PointBuffer struct {
	Points []Point
	// DepthTime and ColorTime record which frames the cloud was built from.
	// They can differ: the cloud pairs a depth frame with whatever color frame
	// was latest at the time.
	DepthTime time.Time
	ColorTime time.Time
}

// Len returns the number of points.
func (b PointBuffer) Len() int { return len(b.Points) }

// CopyInto copies b into dst, reusing dst's backing array when possible.
func (b PointBuffer) CopyInto(dst *PointBuffer) {
	if cap(dst.Points) < len(b.Points) {
		dst.Points = make([]Point, len(b.Points))
	}
	dst.Points = dst.Points[:len(b.Points)]
	copy(dst.Points, b.Points)
	dst.DepthTime, dst.ColorTime = b.DepthTime, b.ColorTime
}

// FrameSink receives frames from an acquisition source. Implementations must
// tolerate OnDepth and OnColor being called concurrently from different
// goroutines, and must not retain the raw buffers after returning.
type FrameSink interface {
	OnDepth(f RawDepthFrame)
	OnColor(f RawColorFrame)
}

// ImageEmpty reports whether img is nil or has a zero-sized bounds.
func ImageEmpty(img image.Image) bool {
	if img == nil {
		return true
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba == nil {
		return true
	}
	if g, ok := img.(*image.Gray); ok && g == nil {
		return true
	}
	return img.Bounds().Empty()
}

// CopyRGBA copies src into *dst, reallocating *dst only when it is nil or
// too small for src.
func CopyRGBA(dst **image.RGBA, src *image.RGBA) {
	if src == nil {
		*dst = nil
		return
	}
	r := src.Bounds()
	if *dst == nil || cap((*dst).Pix) < len(src.Pix) {
		*dst = image.NewRGBA(r)
	}
	d := *dst
	d.Pix = d.Pix[:len(src.Pix)]
	copy(d.Pix, src.Pix)
	d.Stride, d.Rect = src.Stride, r
}

// CopyGray is the *image.Gray counterpart of CopyRGBA.
func CopyGray(dst **image.Gray, src *image.Gray) {
	if src == nil {
		*dst = nil
		return
	}
	r := src.Bounds()
	if *dst == nil || cap((*dst).Pix) < len(src.Pix) {
		*dst = image.NewGray(r)
	}
	d := *dst
	d.Pix = d.Pix[:len(src.Pix)]
	copy(d.Pix, src.Pix)
	d.Stride, d.Rect = src.Stride, r
}
