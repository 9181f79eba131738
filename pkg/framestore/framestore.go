// Package framestore holds the latest frame of each kind and a dirty flag,
// shared between producer callbacks and the render loop.
//
// # Locking
//
// One mutex covers every field. A publish is "lock, overwrite in place, set
// dirty, unlock"; a drain is "lock, copy out, clear dirty, unlock". The render
// loop therefore never sees a half-written frame, and a drain always returns
// a consistent view of all kinds at one instant.
//
// # Latest wins
//
// There is no queue. Publishing a kind that has not been drained yet
// overwrites it and bumps that kind's Superseded counter. Producers never
// wait on the consumer beyond the critical section of the lock.
//
// # Staleness
//
// Kinds are updated independently. A snapshot can hold depth from one sensor
// instant, color from another and a cloud built from an older pair. Callers
// that care can compare Snapshot.Seq and the timestamps carried by each kind.
package framestore

import (
	"image"
	"sync"
	"time"

	"github.com/teslashibe/go-depthview/pkg/frame"
)

const numKinds = 3

// Seq holds per-kind publish sequence numbers. Zero means never published.
type Seq struct {
	Depth uint64 `json:"depth"`
	Color uint64 `json:"color"`
	Cloud uint64 `json:"cloud"`
}

// Snapshot is a copy of the store taken by a drain. It does not alias any
// buffer owned by the store.
type Snapshot struct {
	Color     *image.RGBA
	ColorTime time.Time
	Depth     frame.DisplayDepth
	RawDepth  frame.RawDepthFrame
	Cloud     frame.PointBuffer
	Seq       Seq
}

// Stats reports store activity.
type Stats struct {
	Published  Seq    `json:"published"`
	Superseded Seq    `json:"superseded"`
	Drains     uint64 `json:"drains"`
	Dirty      bool   `json:"dirty"`
}

// Store is the shared frame cell. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex

	color     *image.RGBA
	colorTime time.Time
	depth     frame.DisplayDepth
	raw       frame.RawDepthFrame
	cloud     frame.PointBuffer

	dirty      bool
	pending    [numKinds]bool
	seq        [numKinds]uint64
	superseded [numKinds]uint64
	drains     uint64
}

// New returns an empty store. Every kind starts as a zero-sized placeholder.
func New() *Store {
	return &Store{}
}

// markLocked records a publish of kind k. s.mu must be held.
func (s *Store) markLocked(k frame.Kind) {
	if s.pending[k] {
		s.superseded[k]++
	}
	s.pending[k] = true
	s.seq[k]++
	s.dirty = true
}

// PublishDepth overwrites the color-mapped depth frame and the raw depth it
// came from, and sets dirty. Buffers grow when the frame size grows.
func (s *Store) PublishDepth(d frame.DisplayDepth, raw frame.RawDepthFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame.CopyGray(&s.depth.Intensity, d.Intensity)
	frame.CopyRGBA(&s.depth.Color, d.Color)
	if raw.Validate() == nil {
		raw.CopyInto(&s.raw)
	} else {
		s.raw.Width, s.raw.Height, s.raw.Data = 0, 0, s.raw.Data[:0]
	}
	s.markLocked(frame.KindDepth)
}

// PublishColor overwrites the display color frame and sets dirty.
func (s *Store) PublishColor(img *image.RGBA, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame.CopyRGBA(&s.color, img)
	s.colorTime = ts
	s.markLocked(frame.KindColor)
}

// PublishCloud overwrites the point buffer and sets dirty.
func (s *Store) PublishCloud(buf frame.PointBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf.CopyInto(&s.cloud)
	s.markLocked(frame.KindCloud)
}

// Drain returns a fresh snapshot and clears dirty if anything was published
// since the last drain. Otherwise it returns false and changes nothing.
func (s *Store) Drain() (Snapshot, bool) {
	var snap Snapshot
	ok := s.DrainInto(&snap)
	return snap, ok
}

// DrainInto is Drain writing into dst, reusing dst's buffers. dst is left
// untouched when nothing is pending.
func (s *Store) DrainInto(dst *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return false
	}

	frame.CopyRGBA(&dst.Color, s.color)
	dst.ColorTime = s.colorTime
	frame.CopyGray(&dst.Depth.Intensity, s.depth.Intensity)
	frame.CopyRGBA(&dst.Depth.Color, s.depth.Color)
	s.raw.CopyInto(&dst.RawDepth)
	s.cloud.CopyInto(&dst.Cloud)
	dst.Seq = s.seqLocked()

	s.dirty = false
	s.pending = [numKinds]bool{}
	s.drains++
	return true
}

// LatestColor copies the current color frame into *dst and returns its
// timestamp. It does not touch the dirty flag.
func (s *Store) LatestColor(dst **image.RGBA) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame.CopyRGBA(dst, s.color)
	return s.colorTime
}

// Dirty reports whether a publish happened since the last drain.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Stats returns a copy of the store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Published: s.seqLocked(),
		Superseded: Seq{
			Depth: s.superseded[frame.KindDepth],
			Color: s.superseded[frame.KindColor],
			Cloud: s.superseded[frame.KindCloud],
		},
		Drains: s.drains,
		Dirty:  s.dirty,
	}
}

func (s *Store) seqLocked() Seq {
	return Seq{
		Depth: s.seq[frame.KindDepth],
		Color: s.seq[frame.KindColor],
		Cloud: s.seq[frame.KindCloud],
	}
}
