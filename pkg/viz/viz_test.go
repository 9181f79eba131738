package viz

import (
	"errors"
	"image"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

// countingBackend wraps Headless and counts calls, to check that upsert does
// not probe for existence before updating.
type countingBackend struct {
	*Headless
	updateCalls int
	addCalls    int
}

func (c *countingBackend) UpdatePointCloud(tag string, buf frame.PointBuffer) error {
	c.updateCalls++
	return c.Headless.UpdatePointCloud(tag, buf)
}

func (c *countingBackend) AddPointCloud(tag string, buf frame.PointBuffer) error {
	c.addCalls++
	return c.Headless.AddPointCloud(tag, buf)
}

func TestUpsertPointCloud(t *testing.T) {
	b := &countingBackend{Headless: NewHeadless(nil)}
	buf := frame.PointBuffer{Points: make([]frame.Point, 3)}

	if err := UpsertPointCloud(b, "pc", buf); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if b.updateCalls != 1 || b.addCalls != 1 {
		t.Errorf("first upsert: update=%d add=%d, want 1/1", b.updateCalls, b.addCalls)
	}

	for i := 0; i < 3; i++ {
		if err := UpsertPointCloud(b, "pc", buf); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	if b.updateCalls != 4 || b.addCalls != 1 {
		t.Errorf("after updates: update=%d add=%d, want 4/1", b.updateCalls, b.addCalls)
	}

	st := b.Stats()
	if st.CloudAdds != 1 || st.CloudUpdates != 3 || st.CloudPoints["pc"] != 3 {
		t.Errorf("headless stats: %+v", st)
	}
}

type failingBackend struct{ *Headless }

func (failingBackend) UpdatePointCloud(string, frame.PointBuffer) error {
	return errors.New("boom")
}

func TestUpsertPointCloud_PropagatesOtherErrors(t *testing.T) {
	b := failingBackend{NewHeadless(nil)}
	err := UpsertPointCloud(b, "pc", frame.PointBuffer{})
	if err == nil || errors.Is(err, ErrCloudNotFound) {
		t.Fatalf("expected update error to propagate, got %v", err)
	}
	if b.Stats().CloudAdds != 0 {
		t.Error("must not fall back to add on unrelated errors")
	}
}

func TestRenderer_SkipsEmpty(t *testing.T) {
	h := NewHeadless(nil)
	r := NewRenderer(h)

	if err := r.DrawColor(nil); err != nil {
		t.Fatal(err)
	}
	if err := r.DrawDepth(frame.DisplayDepth{}); err != nil {
		t.Fatal(err)
	}
	if err := r.DrawColor(image.NewRGBA(image.Rect(0, 0, 0, 0))); err != nil {
		t.Fatal(err)
	}
	if n := len(h.Stats().Shown); n != 0 {
		t.Errorf("empty frames were drawn: %v", h.Stats().Shown)
	}

	if err := r.DrawColor(image.NewRGBA(image.Rect(0, 0, 4, 3))); err != nil {
		t.Fatal(err)
	}
	st := h.Stats()
	if st.Shown[TagColor] != 1 {
		t.Errorf("color draws: got %d, want 1", st.Shown[TagColor])
	}
	if st.LastBounds[TagColor].Dx() != 4 {
		t.Errorf("bounds: got %v", st.LastBounds[TagColor])
	}
}

func TestHeadless_PollKey(t *testing.T) {
	h := NewHeadless(nil)

	start := time.Now()
	if _, ok := h.PollKey(20 * time.Millisecond); ok {
		t.Fatal("expected timeout with no key")
	}
	if el := time.Since(start); el < 15*time.Millisecond {
		t.Errorf("PollKey returned too early: %v", el)
	}

	h.PressKey('s')
	k, ok := h.PollKey(time.Second)
	if !ok || k != 's' {
		t.Errorf("got %q/%v, want 's'/true", k, ok)
	}
}

func TestHeadless_CloseAndStop(t *testing.T) {
	h := NewHeadless(nil)
	if h.WasStopped() {
		t.Fatal("fresh backend reports stopped")
	}
	h.Stop()
	if !h.WasStopped() {
		t.Error("Stop not reported")
	}

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal("second Close should be a no-op")
	}
	err := h.ShowImage(TagColor, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("show after close: got %v", err)
	}
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(BackendHeadless, DefaultGocvOptions(), nil)
	if err != nil || b.Name() != "headless" {
		t.Fatalf("headless: %v %v", b, err)
	}

	if _, err := NewBackend("vulkan", DefaultGocvOptions(), nil); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("unknown backend: got %v", err)
	}

	b, err = NewBackend(BackendAuto, DefaultGocvOptions(), nil)
	if err != nil || b == nil {
		t.Fatalf("auto must always produce a backend: %v", err)
	}
	b.Close()
}

func TestProjectCloud(t *testing.T) {
	empty := ProjectCloud(frame.PointBuffer{}, 10)
	if c := empty.RGBAAt(5, 5); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("empty cloud should be white, got %v", c)
	}

	buf := frame.PointBuffer{Points: []frame.Point{
		{Pos: r3.Vec{X: 0, Y: 0, Z: 2}, R: 0, G: 0, B: 255},
		{Pos: r3.Vec{X: 0, Y: 0, Z: 1}, R: 255, G: 0, B: 0},
		{Pos: r3.Vec{X: 1, Y: 1, Z: 1}, R: 0, G: 255, B: 0},
	}}
	img := ProjectCloud(buf, 10)

	if c := img.RGBAAt(0, 0); c.R != 255 || c.B != 0 {
		t.Errorf("nearer point should cover farther one, got %v", c)
	}
	if c := img.RGBAAt(9, 9); c.G != 255 || c.R != 0 {
		t.Errorf("far corner point: got %v", c)
	}
}

func TestCloudProjector_ReusesCanvas(t *testing.T) {
	var p CloudProjector
	first := p.Project(frame.PointBuffer{Points: []frame.Point{
		{Pos: r3.Vec{X: 0, Y: 0, Z: 1}},
		{Pos: r3.Vec{X: 1, Y: 1, Z: 1}},
	}}, 10)
	if c := first.RGBAAt(0, 0); c.R != 0 {
		t.Fatalf("point not drawn: %v", c)
	}

	second := p.Project(frame.PointBuffer{}, 10)
	if second != first {
		t.Error("same size should reuse the canvas")
	}
	if c := second.RGBAAt(0, 0); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("previous points left on canvas: %v", c)
	}

	if p.Project(frame.PointBuffer{}, 20).Bounds().Dx() != 20 {
		t.Error("canvas not resized")
	}
}
