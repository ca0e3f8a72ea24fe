package pipeline

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/teslashibe/go-gazer/pkg/gaze"
)

// BlinkPolicy decides where blink-flagged frames are dropped.
type BlinkPolicy int

const (
	// BlinkSuppress drops blink frames from prediction and training.
	BlinkSuppress BlinkPolicy = iota
	// BlinkSuppressTraining predicts on blink frames but never trains on them.
	BlinkSuppressTraining
	// BlinkForward passes blink frames everywhere; predictors decide.
	BlinkForward
)

// String returns the policy name.
func (p BlinkPolicy) String() string {
	switch p {
	case BlinkSuppress:
		return "suppress"
	case BlinkSuppressTraining:
		return "suppress-training"
	case BlinkForward:
		return "forward"
	default:
		return fmt.Sprintf("BlinkPolicy(%d)", int(p))
	}
}

// ParseBlinkPolicy maps a name produced by String back to a policy.
func ParseBlinkPolicy(s string) (BlinkPolicy, error) {
	for _, p := range []BlinkPolicy{BlinkSuppress, BlinkSuppressTraining, BlinkForward} {
		if p.String() == s {
			return p, nil
		}
	}
	return BlinkSuppress, fmt.Errorf("unknown blink policy %q", s)
}

// drops reports whether a blink frame is discarded for purpose.
func (p BlinkPolicy) drops(purpose Purpose) bool {
	switch p {
	case BlinkSuppress:
		return true
	case BlinkSuppressTraining:
		return purpose == ForTraining
	default:
		return false
	}
}

// Purpose says why features are being extracted.
type Purpose int

const (
	ForPrediction Purpose = iota
	ForTraining
)

// Config holds pipeline parameters.
type Config struct {
	// Canvas size before scaling. Zero uses the source frame size.
	ImageWidth  int
	ImageHeight int
	VideoScale  float64

	SmoothingWindow int       // Points averaged for the overlay (default 4)
	AlwaysSmooth    bool      // Smooth even while the overlay is hidden
	Screen          gaze.Size // Clamp bounds for smoothed points

	BlinkPolicy BlinkPolicy
	Logger      *slog.Logger
}

// DefaultConfig returns defaults for a 720p webcam on a 1080p screen.
func DefaultConfig() Config {
	return Config{
		ImageWidth:      1280,
		ImageHeight:     720,
		VideoScale:      1,
		SmoothingWindow: 4,
		Screen:          gaze.Size{Width: 1920, Height: 1080},
		BlinkPolicy:     BlinkSuppress,
		Logger:          slog.Default(),
	}
}

// canvasSize returns the scratch canvas size for a source of the given size.
func (c Config) canvasSize(src image.Point) (int, int) {
	w, h := c.ImageWidth, c.ImageHeight
	if w <= 0 || h <= 0 {
		w, h = src.X, src.Y
	}
	scale := c.VideoScale
	if scale <= 0 {
		scale = 1
	}
	return int(float64(w) * scale), int(float64(h) * scale)
}
