package viz

import (
	"cmp"
	"image"
	"image/color"
	"slices"

	"github.com/teslashibe/go-depthview/pkg/frame"
	"github.com/teslashibe/go-depthview/pkg/pointcloud"
)

// ProjectCloud draws a front view (X right, Y down) of buf on a size x size
// white canvas, scaled to fit the cloud's bounds. Nearer points are drawn
// last so they cover farther ones.
func ProjectCloud(buf frame.PointBuffer, size int) *image.RGBA {
	var p CloudProjector
	return p.Project(buf, size)
}

// CloudProjector is ProjectCloud with a canvas and sort buffer reused across
// calls. The returned image is overwritten by the next Project. Not safe for
// concurrent use.
type CloudProjector struct {
	canvas *image.RGBA
	order  []int
}

// Project draws buf like ProjectCloud, reallocating only when size changes.
func (p *CloudProjector) Project(buf frame.PointBuffer, size int) *image.RGBA {
	r := image.Rect(0, 0, size, size)
	if p.canvas == nil || p.canvas.Rect != r {
		p.canvas = image.NewRGBA(r)
	}
	img := p.canvas
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}

	min, max, ok := pointcloud.Bounds(buf)
	if !ok || size < 2 {
		return img
	}
	span := max.X - min.X
	if dy := max.Y - min.Y; dy > span {
		span = dy
	}
	if span <= 0 {
		span = 1
	}
	scale := float64(size-1) / span

	// Farthest first.
	p.order = p.order[:0]
	for i := range buf.Points {
		p.order = append(p.order, i)
	}
	slices.SortStableFunc(p.order, func(a, b int) int {
		return cmp.Compare(buf.Points[b].Pos.Z, buf.Points[a].Pos.Z)
	})

	for _, i := range p.order {
		pt := buf.Points[i]
		x := int((pt.Pos.X - min.X) * scale)
		y := int((pt.Pos.Y - min.Y) * scale)
		img.SetRGBA(x, y, color.RGBA{R: pt.R, G: pt.G, B: pt.B, A: 0xff})
	}
	return img
}
