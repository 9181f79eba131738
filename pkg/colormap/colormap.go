// Package colormap turns 16-bit depth frames into 8-bit color images for
// display. Everything here is a pure function of its inputs.
package colormap

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

// Default fixed display range, in raw sample units (millimeters for OpenNI).
const (
	DefaultMin = 30.0
	DefaultMax = 4000.0
)

// Mode selects how raw samples are scaled to 8 bits.
type Mode int

const (
	// ModeFixed scales by 255/(max-min) for a configured range. Output is
	// comparable across frames.
	ModeFixed Mode = iota
	// ModeAuto stretches each frame's own [lo, hi] onto [0, 255]. Output is
	// not comparable across frames.
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeFixed:
		return "fixed"
	case ModeAuto:
		return "auto"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// jet is a 256 entry lookup table for the "jet" ramp: dark blue, blue, cyan,
// yellow, red, dark red as the index grows.
var jet = buildJet()

func buildJet() [256]color.RGBA {
	var lut [256]color.RGBA
	for i := range lut {
		v := float64(i) / 255
		lut[i] = color.RGBA{
			R: unit(1.5 - math.Abs(4*v-3)),
			G: unit(1.5 - math.Abs(4*v-2)),
			B: unit(1.5 - math.Abs(4*v-1)),
			A: 0xff,
		}
	}
	return lut
}

func unit(x float64) uint8 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 255
	}
	return uint8(math.Round(x * 255))
}

// Jet returns the palette color for an 8-bit intensity.
func Jet(v uint8) color.RGBA {
	return jet[v]
}

// Scale maps a raw sample to 8 bits with scaled = round(raw*255/(max-min)),
// clamped to [0, 255]. The range only sets the gain; there is no offset.
func Scale(raw uint16, min, max float64) uint8 {
	span := max - min
	if span <= 0 {
		return 0
	}
	return clamp8(math.Round(float64(raw) * 255 / span))
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// Colorize maps a depth frame through the jet palette using a fixed range.
// Malformed frames yield an empty DisplayDepth.
func Colorize(f frame.RawDepthFrame, min, max float64) frame.DisplayDepth {
	if f.Validate() != nil {
		return frame.DisplayDepth{}
	}
	return apply(f, func(raw uint16) uint8 { return Scale(raw, min, max) })
}

// ColorizeAuto maps a depth frame through the jet palette using the frame's
// own minimum and maximum, so lo maps to 0 and hi to 255. It also returns the
// range it used.
func ColorizeAuto(f frame.RawDepthFrame) (d frame.DisplayDepth, lo, hi uint16) {
	if f.Validate() != nil {
		return frame.DisplayDepth{}, 0, 0
	}
	lo, hi = MinMax(f)
	span := float64(hi) - float64(lo)
	d = apply(f, func(raw uint16) uint8 {
		if span <= 0 {
			return 0
		}
		return clamp8(math.Round((float64(raw) - float64(lo)) * 255 / span))
	})
	return d, lo, hi
}

// MinMax returns the smallest and largest sample in the frame.
func MinMax(f frame.RawDepthFrame) (lo, hi uint16) {
	n := f.Width * f.Height
	if n == 0 || len(f.Data) < n {
		return 0, 0
	}
	lo, hi = f.Data[0], f.Data[0]
	for _, v := range f.Data[1:n] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func apply(f frame.RawDepthFrame, scale func(uint16) uint8) frame.DisplayDepth {
	r := image.Rect(0, 0, f.Width, f.Height)
	gray := image.NewGray(r)
	rgba := image.NewRGBA(r)
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		v := scale(f.Data[i])
		gray.Pix[i] = v
		c := jet[v]
		p := rgba.Pix[4*i : 4*i+4 : 4*i+4]
		p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
	}
	return frame.DisplayDepth{Intensity: gray, Color: rgba}
}

// Mapper bundles a mode and a fixed range.
type Mapper struct {
	Mode Mode
	Min  float64
	Max  float64
}

// DefaultMapper returns a fixed-range mapper over [DefaultMin, DefaultMax].
func DefaultMapper() Mapper {
	return Mapper{Mode: ModeFixed, Min: DefaultMin, Max: DefaultMax}
}

// Apply colorizes f according to the mapper's mode.
func (m Mapper) Apply(f frame.RawDepthFrame) frame.DisplayDepth {
	if m.Mode == ModeAuto {
		d, _, _ := ColorizeAuto(f)
		return d
	}
	return Colorize(f, m.Min, m.Max)
}

// String describes the mode in effect, for logs.
func (m Mapper) String() string {
	if m.Mode == ModeAuto {
		return "auto-contrast (per-frame min/max)"
	}
	return fmt.Sprintf("fixed [%g, %g]", m.Min, m.Max)
}
