package tracker

import (
	"image"

	"github.com/teslashibe/go-gazer/pkg/gaze"
)

// Region is a rectangle in normalized (0-1) frame coordinates.
type Region struct {
	X, Y float64
	W, H float64
}

// Rect converts the region into pixel coordinates for a w x h frame.
func (r Region) Rect(w, h int) image.Rectangle {
	x0 := int(r.X * float64(w))
	y0 := int(r.Y * float64(h))
	x1 := int((r.X + r.W) * float64(w))
	y1 := int((r.Y + r.H) * float64(h))
	return image.Rect(x0, y0, x1, y1)
}

// FixedConfig places the two eye regions.
type FixedConfig struct {
	Left  Region
	Right Region
}

// DefaultFixedConfig assumes a centred face at arm's length.
func DefaultFixedConfig() FixedConfig {
	return FixedConfig{
		Left:  Region{X: 0.38, Y: 0.38, W: 0.1, H: 0.06},
		Right: Region{X: 0.52, Y: 0.38, W: 0.1, H: 0.06},
	}
}

// Fixed crops eye patches at constant positions. It suits head-mounted and
// chin-rest setups where the eyes never move within the frame.
type Fixed struct {
	config FixedConfig
}

// NewFixed creates a fixed-region tracker.
func NewFixed(cfg FixedConfig) *Fixed {
	return &Fixed{config: cfg}
}

// Name returns "fixed".
func (f *Fixed) Name() string { return "fixed" }

// Extract crops the configured regions.
func (f *Fixed) Extract(frame gaze.Frame) (*gaze.EyeFeatures, error) {
	if frame.Image == nil || frame.Width == 0 || frame.Height == 0 {
		return nil, nil
	}
	return Features(frame.Image,
		f.config.Left.Rect(frame.Width, frame.Height),
		f.config.Right.Rect(frame.Width, frame.Height)), nil
}

var _ Tracker = (*Fixed)(nil)
