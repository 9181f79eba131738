package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-depthview/pkg/colormap"
	"github.com/teslashibe/go-depthview/pkg/export"
	"github.com/teslashibe/go-depthview/pkg/frame"
	"github.com/teslashibe/go-depthview/pkg/framestore"
	"github.com/teslashibe/go-depthview/pkg/producer"
	"github.com/teslashibe/go-depthview/pkg/viz"
)

const testPeriod = 5 * time.Millisecond

func testConfig() Config {
	return Config{PollPeriod: testPeriod, EnableCloud: true, SaveKey: 's'}
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func publishPair(store *framestore.Store) {
	raw := frame.RawDepthFrame{Width: 4, Height: 1, Data: []uint16{100, 200, 300, 4000}}
	store.PublishDepth(colormap.Colorize(raw, 30, 4000), raw)
	store.PublishColor(image.NewRGBA(image.Rect(0, 0, 4, 1)), time.Now())
}

// startLoop runs l in the background and returns a function that cancels it
// and waits for Run to return.
func startLoop(t *testing.T, l *Loop) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(time.Second):
			t.Fatal("render loop did not stop")
			return nil
		}
	}
}

func TestLoop_RendersOnlyWhenDirty(t *testing.T) {
	store := framestore.New()
	backend := viz.NewHeadless(nil)
	l := New(store, backend, nil, testConfig(), nil)

	publishPair(store)
	stop := startLoop(t, l)
	defer stop()

	waitFor(t, time.Second, "first frame", func() bool { return l.Stats().Frames == 1 })

	// Several idle ticks must not render again.
	ticks := l.Stats().Ticks
	waitFor(t, time.Second, "idle ticks", func() bool { return l.Stats().Ticks >= ticks+5 })
	if got := l.Stats().Frames; got != 1 {
		t.Fatalf("frames after idle ticks: got %d, want 1", got)
	}

	st := backend.Stats()
	if st.Shown[viz.TagColor] != 1 || st.Shown[viz.TagDepth] != 1 {
		t.Errorf("draws: %v", st.Shown)
	}

	publishPair(store)
	waitFor(t, time.Second, "second frame", func() bool { return l.Stats().Frames == 2 })
}

func TestLoop_CloudUpsert(t *testing.T) {
	store := framestore.New()
	backend := viz.NewHeadless(nil)
	l := New(store, backend, nil, testConfig(), nil)

	stop := startLoop(t, l)
	defer stop()

	for i := 1; i <= 3; i++ {
		store.PublishCloud(frame.PointBuffer{Points: make([]frame.Point, i)})
		want := int64(i)
		waitFor(t, time.Second, "cloud frame", func() bool { return l.Stats().Frames == want })
	}

	st := backend.Stats()
	if st.CloudAdds != 1 || st.CloudUpdates != 2 {
		t.Errorf("cloud adds=%d updates=%d, want 1/2", st.CloudAdds, st.CloudUpdates)
	}
	if st.CloudPoints[viz.TagCloud] != 3 {
		t.Errorf("cloud points: got %d, want 3", st.CloudPoints[viz.TagCloud])
	}
}

func TestLoop_CloudDisabled(t *testing.T) {
	store := framestore.New()
	backend := viz.NewHeadless(nil)
	cfg := testConfig()
	cfg.EnableCloud = false
	l := New(store, backend, nil, cfg, nil)

	store.PublishCloud(frame.PointBuffer{Points: make([]frame.Point, 10)})
	stop := startLoop(t, l)
	defer stop()

	waitFor(t, time.Second, "frame", func() bool { return l.Stats().Frames == 1 })
	if st := backend.Stats(); st.CloudAdds != 0 || st.CloudUpdates != 0 {
		t.Errorf("cloud drawn while disabled: %+v", st)
	}
	st := l.Stats()
	if st.SkippedColor != 1 || st.SkippedDepth != 1 {
		t.Errorf("skipped counters: %+v", st)
	}
}

func TestLoop_SaveKey(t *testing.T) {
	dir := t.TempDir()
	store := framestore.New()
	backend := viz.NewHeadless(nil)
	l := New(store, backend, export.New(dir, export.FormatPNG), testConfig(), nil)

	// Queue the frame and the key before the first tick so both land on it.
	publishPair(store)
	backend.PressKey('s')

	stop := startLoop(t, l)
	defer func() { stop() }()

	waitFor(t, time.Second, "save", func() bool { return l.Stats().Saves == 1 })

	for _, name := range []string{"frame_000000000__rgb.png", "frame_000000000__d.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	// The counter advances on every pass, saved or not.
	publishPair(store)
	waitFor(t, time.Second, "second frame", func() bool { return l.Stats().Frames == 2 })
	if err := stop(); err != nil {
		t.Fatal(err)
	}

	publishPair(store)
	backend.PressKey('s')
	stop = startLoop(t, l)
	waitFor(t, time.Second, "second save", func() bool { return l.Stats().Saves == 2 })

	if _, err := os.Stat(filepath.Join(dir, "frame_000000002__rgb.png")); err != nil {
		t.Errorf("second save should use frame id 2: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "frame_000000001__rgb.png")); err == nil {
		t.Error("frame 1 was not saved and must not exist")
	}
}

func TestLoop_OtherKeysDoNotSave(t *testing.T) {
	dir := t.TempDir()
	store := framestore.New()
	backend := viz.NewHeadless(nil)
	l := New(store, backend, export.New(dir, export.FormatPNG), testConfig(), nil)

	publishPair(store)
	backend.PressKey('q')
	stop := startLoop(t, l)
	defer stop()

	waitFor(t, time.Second, "frame", func() bool { return l.Stats().Frames == 1 })
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 || l.Stats().Saves != 0 {
		t.Errorf("unexpected save: %d files", len(entries))
	}
}

func TestLoop_SaveFailureIsNotFatal(t *testing.T) {
	store := framestore.New()
	backend := viz.NewHeadless(nil)
	missing := filepath.Join(t.TempDir(), "nope")
	l := New(store, backend, export.New(missing, export.FormatPNG), testConfig(), nil)

	publishPair(store)
	backend.PressKey('s')
	stop := startLoop(t, l)
	defer stop()

	waitFor(t, time.Second, "save error", func() bool { return l.Stats().SaveErrors == 1 })

	publishPair(store)
	waitFor(t, time.Second, "next frame", func() bool { return l.Stats().Frames == 2 })
}

func TestLoop_StopsWithinTwoPeriods(t *testing.T) {
	const period = 20 * time.Millisecond
	store := framestore.New()
	backend := viz.NewHeadless(nil)
	cfg := testConfig()
	cfg.PollPeriod = period
	l := New(store, backend, nil, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitFor(t, time.Second, "loop running", func() bool { return l.Stats().Ticks >= 2 })

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
		if el := time.Since(start); el > 2*period {
			t.Errorf("loop took %v to stop, want <= %v", el, 2*period)
		}
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	if l.State() != StateStopped {
		t.Errorf("state: got %v", l.State())
	}
}

func TestLoop_ViewerStopped(t *testing.T) {
	store := framestore.New()
	backend := viz.NewHeadless(nil)
	l := New(store, backend, nil, testConfig(), nil)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	waitFor(t, time.Second, "loop running", func() bool { return l.Stats().Ticks >= 1 })
	backend.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrViewerStopped) {
			t.Errorf("got %v, want ErrViewerStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop ignored stopped viewer")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:      "idle",
		StateDraining:  "draining",
		StateRendering: "rendering",
		StateStopped:   "stopped",
	} {
		if s.String() != want {
			t.Errorf("%d: got %q, want %q", s, s.String(), want)
		}
	}
}

func TestLoop_MalformedDepthSkipsView(t *testing.T) {
	store := framestore.New()
	backend := viz.NewHeadless(nil)
	cfg := producer.DefaultConfig()
	cfg.BuildCloud = false
	p := producer.New(store, cfg, nil)
	l := New(store, backend, nil, testConfig(), nil)

	p.OnDepth(frame.RawDepthFrame{Width: 2, Height: 1, Data: []uint16{500, 900}})
	p.OnColor(frame.RawColorFrame{Width: 2, Height: 1, Data: make([]byte, 6)})
	stop := startLoop(t, l)
	defer stop()
	waitFor(t, time.Second, "first frame", func() bool { return l.Stats().Frames == 1 })

	p.OnDepth(frame.RawDepthFrame{})
	waitFor(t, time.Second, "second frame", func() bool { return l.Stats().Frames == 2 })

	st := backend.Stats()
	if st.Shown[viz.TagDepth] != 1 {
		t.Errorf("depth drawn %d times, want 1: the malformed tick must not redraw it", st.Shown[viz.TagDepth])
	}
	if st.Shown[viz.TagColor] != 2 {
		t.Errorf("color drawn %d times, want 2", st.Shown[viz.TagColor])
	}
	if got := l.Stats().SkippedDepth; got != 1 {
		t.Errorf("SkippedDepth: got %d, want 1", got)
	}
}

// goroutineID parses the current goroutine's id from its stack header.
func goroutineID() int {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	id, _ := strconv.Atoi(string(buf[:bytes.IndexByte(buf, ' ')]))
	return id
}

// threadRecorder remembers which goroutines drew to and closed the backend.
type threadRecorder struct {
	*viz.Headless

	mu     sync.Mutex
	draws  map[int]bool
	closer int
	closes int
}

func (r *threadRecorder) ShowImage(tag string, img image.Image) error {
	r.mu.Lock()
	r.draws[goroutineID()] = true
	r.mu.Unlock()
	return r.Headless.ShowImage(tag, img)
}

func (r *threadRecorder) Close() error {
	r.mu.Lock()
	r.closer = goroutineID()
	r.closes++
	r.mu.Unlock()
	return r.Headless.Close()
}

func TestLoop_ClosesBackendOnRenderGoroutine(t *testing.T) {
	store := framestore.New()
	backend := &threadRecorder{Headless: viz.NewHeadless(nil), draws: map[int]bool{}}
	l := New(store, backend, nil, testConfig(), nil)

	publishPair(store)
	stop := startLoop(t, l)
	waitFor(t, time.Second, "frame", func() bool { return l.Stats().Frames == 1 })
	if err := stop(); err != nil {
		t.Fatal(err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.closes != 1 {
		t.Fatalf("Close called %d times, want 1", backend.closes)
	}
	if len(backend.draws) != 1 || !backend.draws[backend.closer] {
		t.Errorf("closed on goroutine %d, drew on %v", backend.closer, backend.draws)
	}
	if !backend.Stats().Closed {
		t.Error("backend not closed")
	}
}
