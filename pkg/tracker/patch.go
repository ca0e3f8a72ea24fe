package tracker

import (
	"image"

	"github.com/teslashibe/go-gazer/pkg/gaze"
	"golang.org/x/image/draw"
)

// Resize scales a patch to w x h with bilinear interpolation.
// Invalid patches come back invalid.
func Resize(p gaze.EyePatch, w, h int) gaze.EyePatch {
	if !p.Valid() || w <= 0 || h <= 0 {
		return gaze.EyePatch{}
	}
	src := &image.Gray{Pix: p.Pix, Stride: p.Width, Rect: image.Rect(0, 0, p.Width, p.Height)}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return gaze.EyePatch{X: p.X, Y: p.Y, Width: w, Height: h, Pix: dst.Pix}
}

// Equalize spreads the patch histogram over the full 0-255 range.
func Equalize(p gaze.EyePatch) gaze.EyePatch {
	if !p.Valid() {
		return p
	}

	var hist [256]int
	for _, v := range p.Pix {
		hist[v]++
	}

	var cdf [256]int
	sum := 0
	for i, n := range hist {
		sum += n
		cdf[i] = sum
	}

	cdfMin := 0
	for _, c := range cdf {
		if c > 0 {
			cdfMin = c
			break
		}
	}

	total := len(p.Pix)
	out := make([]byte, total)
	if total == cdfMin {
		// flat patch
		copy(out, p.Pix)
	} else {
		for i, v := range p.Pix {
			out[i] = byte((cdf[v] - cdfMin) * 255 / (total - cdfMin))
		}
	}
	p.Pix = out
	return p
}

// Vector resizes and equalizes both patches and concatenates them left then
// right as float64 values.
func Vector(f *gaze.EyeFeatures, w, h int) []float64 {
	left := Equalize(Resize(f.Left, w, h))
	right := Equalize(Resize(f.Right, w, h))
	if !left.Valid() || !right.Valid() {
		return nil
	}

	out := make([]float64, 0, 2*w*h)
	for _, v := range left.Pix {
		out = append(out, float64(v))
	}
	for _, v := range right.Pix {
		out = append(out, float64(v))
	}
	return out
}
