// Package frames owns the color+depth frame buffers shared between the
// supervisor and the per-crop tracking workers, and the loader that
// produces them from image pairs on disk.
package frames

import (
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
)

// Source provides read access to the current frame for the tracking
// workers. Implemented by both the plain Frame and the Shared buffer.
type Source interface {
	Bounds() image.Rectangle
	// Gray extracts the luma of the given region as a standalone image.
	Gray(r image.Rectangle) *image.Gray
	// DepthAt returns the raw depth sample at a full-frame pixel.
	DepthAt(x, y int) uint16
}

// Frame owns one tick's color and depth images in a fixed flat layout:
// RGB interleaved bytes and row-major uint16 depth. Buffers are fully
// replaced, never patched.
type Frame struct {
	W, H  int
	Color []uint8  // len W*H*3, RGB
	Depth []uint16 // len W*H
}

// NewFrame allocates an empty frame of the given dimensions.
func NewFrame(w, h int) *Frame {
	return &Frame{
		W:     w,
		H:     h,
		Color: make([]uint8, w*h*3),
		Depth: make([]uint16, w*h),
	}
}

// Bounds returns the full-frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.W, f.H)
}

// SetImages replaces both buffers from decoded images. The color image
// must match the frame dimensions; depth may be nil (left zeroed) but
// must match dimensions when present.
func (f *Frame) SetImages(colorImg image.Image, depthImg image.Image) error {
	cb := colorImg.Bounds()
	if cb.Dx() != f.W || cb.Dy() != f.H {
		return fmt.Errorf("frames: color image is %dx%d, frame is %dx%d",
			cb.Dx(), cb.Dy(), f.W, f.H)
	}
	for y := 0; y < f.H; y++ {
		for x := 0; x < f.W; x++ {
			r, g, b, _ := colorImg.At(cb.Min.X+x, cb.Min.Y+y).RGBA()
			base := (y*f.W + x) * 3
			f.Color[base] = uint8(r >> 8)
			f.Color[base+1] = uint8(g >> 8)
			f.Color[base+2] = uint8(b >> 8)
		}
	}

	if depthImg == nil {
		return nil
	}
	db := depthImg.Bounds()
	if db.Dx() != f.W || db.Dy() != f.H {
		return fmt.Errorf("frames: depth image is %dx%d, frame is %dx%d",
			db.Dx(), db.Dy(), f.W, f.H)
	}
	if g16, ok := depthImg.(*image.Gray16); ok {
		for y := 0; y < f.H; y++ {
			for x := 0; x < f.W; x++ {
				f.Depth[y*f.W+x] = g16.Gray16At(db.Min.X+x, db.Min.Y+y).Y
			}
		}
		return nil
	}
	for y := 0; y < f.H; y++ {
		for x := 0; x < f.W; x++ {
			g, _, _, _ := depthImg.At(db.Min.X+x, db.Min.Y+y).RGBA()
			f.Depth[y*f.W+x] = uint16(g)
		}
	}
	return nil
}

// Gray extracts the luma of the region (clipped to the frame) using the
// Rec. 601 weights.
func (f *Frame) Gray(r image.Rectangle) *image.Gray {
	r = r.Intersect(f.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			base := ((r.Min.Y+y)*f.W + r.Min.X + x) * 3
			cr := int(f.Color[base])
			cg := int(f.Color[base+1])
			cb := int(f.Color[base+2])
			luma := (299*cr + 587*cg + 114*cb) / 1000
			out.SetGray(x, y, color.Gray{Y: uint8(luma)})
		}
	}
	return out
}

// DepthAt returns the raw depth sample at (x, y), or 0 outside bounds.
func (f *Frame) DepthAt(x, y int) uint16 {
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return 0
	}
	return f.Depth[y*f.W+x]
}

// CopyFrom replaces the frame's buffers with those of src. Dimensions
// must match.
func (f *Frame) CopyFrom(src *Frame) error {
	if src.W != f.W || src.H != f.H {
		return fmt.Errorf("frames: copying %dx%d frame into %dx%d buffer",
			src.W, src.H, f.W, f.H)
	}
	copy(f.Color, src.Color)
	copy(f.Depth, src.Depth)
	return nil
}

// Shared is the cross-worker frame buffer: a fixed-layout arena written
// only by the supervisor and read by every worker. The publish/completion
// handshake in the pipeline guarantees no worker reads while the
// supervisor overwrites, so access is lock-free.
type Shared struct {
	frame *Frame
	gen   atomic.Uint64
}

// NewShared allocates the shared buffer for frames of fixed dimensions.
func NewShared(w, h int) *Shared {
	return &Shared{frame: NewFrame(w, h)}
}

// Publish copies the new frame into the arena and advances the
// generation counter. Only the supervisor calls Publish, and only after
// every worker has completed the previous tick.
func (s *Shared) Publish(fr *Frame) error {
	if err := s.frame.CopyFrom(fr); err != nil {
		return err
	}
	s.gen.Add(1)
	return nil
}

// Generation returns the number of frames published so far.
func (s *Shared) Generation() uint64 { return s.gen.Load() }

// Bounds implements Source.
func (s *Shared) Bounds() image.Rectangle { return s.frame.Bounds() }

// Gray implements Source.
func (s *Shared) Gray(r image.Rectangle) *image.Gray { return s.frame.Gray(r) }

// DepthAt implements Source.
func (s *Shared) DepthAt(x, y int) uint16 { return s.frame.DepthAt(x, y) }
