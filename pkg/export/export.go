// Package export writes snapshot frames to disk when the user asks to save.
package export

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

// ErrEmptyImage is returned when asked to write an empty frame.
var ErrEmptyImage = errors.New("export: empty image")

// Format is a lossless raster file format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatTIFF Format = "tiff"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPNG, "":
		return FormatPNG, nil
	case FormatTIFF, "tif":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("export: unsupported format %q (want png or tiff)", s)
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	if f == FormatTIFF {
		return "tiff"
	}
	return "png"
}

// FileName returns frame_<9-digit counter>__<suffix>.<ext>.
func FileName(counter int64, suffix string, f Format) string {
	return fmt.Sprintf("frame_%09d__%s.%s", counter, suffix, f.Ext())
}

// Written describes one file produced by Save.
type Written struct {
	Path   string
	Width  int
	Height int
}

// Exporter writes color and raw depth frames into Dir.
type Exporter struct {
	Dir    string
	Format Format
}

// New returns an exporter writing into dir with the given format.
func New(dir string, format Format) *Exporter {
	if dir == "" {
		dir = "."
	}
	return &Exporter{Dir: dir, Format: format}
}

// Save writes the color frame and the raw 16-bit depth frame for counter.
// Empty inputs are skipped. Both writes are attempted even if the first
// fails; the returned error joins all failures.
func (e *Exporter) Save(counter int64, color *image.RGBA, depth frame.RawDepthFrame) ([]Written, error) {
	var out []Written
	var errs []error

	if !frame.ImageEmpty(color) {
		w, err := e.write(FileName(counter, "rgb", e.Format), color)
		if err != nil {
			errs = append(errs, err)
		} else {
			out = append(out, w)
		}
	}
	if depth.Validate() == nil {
		w, err := e.write(FileName(counter, "d", e.Format), depth.Gray16())
		if err != nil {
			errs = append(errs, err)
		} else {
			out = append(out, w)
		}
	}
	return out, errors.Join(errs...)
}

func (e *Exporter) write(name string, img image.Image) (Written, error) {
	if frame.ImageEmpty(img) {
		return Written{}, ErrEmptyImage
	}
	path := filepath.Join(e.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return Written{}, fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := Encode(f, img, e.Format); err != nil {
		f.Close()
		return Written{}, fmt.Errorf("export: encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return Written{}, fmt.Errorf("export: close %s: %w", path, err)
	}

	b := img.Bounds()
	return Written{Path: path, Width: b.Dx(), Height: b.Dy()}, nil
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return png.Encode(w, img)
	}
}

// Decode reads a png or tiff image, chosen by the file extension.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch filepath.Ext(path) {
	case ".tif", ".tiff":
		return tiff.Decode(f)
	default:
		return png.Decode(f)
	}
}
