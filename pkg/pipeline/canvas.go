package pipeline

import (
	"image"

	"github.com/teslashibe/go-gazer/pkg/gaze"
	"golang.org/x/image/draw"
)

// Canvas is the scratch buffer frames are painted into before extraction.
type Canvas struct {
	img    *image.RGBA
	allocs int
}

// Resize reallocates the buffer only when the dimensions change.
// It reports whether a reallocation happened.
func (c *Canvas) Resize(w, h int) bool {
	if c.img != nil && c.img.Rect.Dx() == w && c.img.Rect.Dy() == h {
		return false
	}
	c.img = image.NewRGBA(image.Rect(0, 0, w, h))
	c.allocs++
	return true
}

// Paint scales src onto the whole canvas.
func (c *Canvas) Paint(src image.Image) {
	if c.img == nil {
		return
	}
	if src.Bounds().Size() == c.img.Rect.Size() {
		draw.Draw(c.img, c.img.Rect, src, src.Bounds().Min, draw.Src)
		return
	}
	draw.ApproxBiLinear.Scale(c.img, c.img.Rect, src, src.Bounds(), draw.Src, nil)
}

// Frame exposes the canvas to a tracker.
func (c *Canvas) Frame() gaze.Frame {
	if c.img == nil {
		return gaze.Frame{}
	}
	return gaze.Frame{Image: c.img, Width: c.img.Rect.Dx(), Height: c.img.Rect.Dy()}
}

// Width returns the canvas width, zero before the first frame.
func (c *Canvas) Width() int {
	if c.img == nil {
		return 0
	}
	return c.img.Rect.Dx()
}

// Allocations counts buffer reallocations.
func (c *Canvas) Allocations() int {
	return c.allocs
}
