// Package tracker defines how eye patches are extracted from a painted frame
// and provides the pure-Go building blocks that tracker back ends share.
package tracker

import (
	"image"

	"github.com/teslashibe/go-gazer/pkg/gaze"
)

// Tracker extracts eye features from a frame.
//
// Extract returns (nil, nil) when no face or eyes are found. A non-nil error
// is a back-end fault; callers treat it as absent features and keep running.
// Trackers holding native resources also implement io.Closer.
type Tracker interface {
	Name() string
	Extract(frame gaze.Frame) (*gaze.EyeFeatures, error)
}

// Func adapts a function to the Tracker interface.
type Func struct {
	ID string
	Fn func(frame gaze.Frame) (*gaze.EyeFeatures, error)
}

// Name returns the tracker name.
func (f Func) Name() string { return f.ID }

// Extract calls Fn.
func (f Func) Extract(frame gaze.Frame) (*gaze.EyeFeatures, error) { return f.Fn(frame) }

// CropGray copies r out of img as an 8-bit luma patch.
// r is clipped to the image bounds; an empty intersection yields an invalid patch.
func CropGray(img *image.RGBA, r image.Rectangle) gaze.EyePatch {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return gaze.EyePatch{}
	}

	w, h := r.Dx(), r.Dy()
	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(r.Min.X, r.Min.Y+y)
		for x := 0; x < w; x++ {
			p := img.Pix[off+x*4 : off+x*4+3 : off+x*4+3]
			pix[y*w+x] = luma(p[0], p[1], p[2])
		}
	}
	return gaze.EyePatch{X: r.Min.X, Y: r.Min.Y, Width: w, Height: h, Pix: pix}
}

// luma uses the Rec. 601 weights.
func luma(r, g, b byte) byte {
	return byte((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
}

// Features crops both eye rectangles and orders the patches left to right
// in image space. Returns nil when either patch is empty.
func Features(img *image.RGBA, a, b image.Rectangle) *gaze.EyeFeatures {
	if b.Min.X < a.Min.X {
		a, b = b, a
	}
	left := CropGray(img, a)
	right := CropGray(img, b)
	if !left.Valid() || !right.Valid() {
		return nil
	}
	return &gaze.EyeFeatures{Left: left, Right: right}
}
