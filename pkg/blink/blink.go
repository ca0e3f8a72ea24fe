// Package blink flags frames where the eyes look unlike their recent history,
// which in practice means the eyelids are closed.
package blink

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/teslashibe/go-gazer/pkg/datawindow"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/tracker"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrPatchMismatch is returned when a frame's eye vector differs in length
// from the history it is compared with.
var ErrPatchMismatch = errors.New("blink: eye vector size mismatch")

// Config holds blink detection parameters.
type Config struct {
	Window     int     // Open-eye frames kept for comparison (default 8)
	MinHistory int     // Frames needed before blinks are reported (default 3)
	Threshold  float64 // Correlation below this is a blink (default 0.55)
	PatchW     int     // Resize width per eye (default 12)
	PatchH     int     // Resize height per eye (default 8)
	Logger     *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:     8,
		MinHistory: 3,
		Threshold:  0.55,
		PatchW:     12,
		PatchH:     8,
		Logger:     slog.Default(),
	}
}

// Detector annotates eye features with a blink flag.
type Detector struct {
	config  Config
	history *datawindow.Window[[]float64]
	run     *datawindow.Window[[]float64] // consecutive blink vectors
	logger  *slog.Logger
}

// New creates a detector.
func New(cfg Config) *Detector {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Detector{
		config:  cfg,
		history: datawindow.New[[]float64](cfg.Window),
		run:     datawindow.New[[]float64](cfg.Window),
		logger:  cfg.Logger.With("component", "blink"),
	}
}

// Annotate returns a copy of f with Blink set. Nil in, nil out. Faults are
// logged and reported as nil so a bad frame never stops the pipeline.
func (d *Detector) Annotate(f *gaze.EyeFeatures) (out *gaze.EyeFeatures) {
	if f == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("blink detection panicked", "panic", r)
			out = nil
		}
	}()

	blink, err := d.detect(f)
	if err != nil {
		d.logger.Warn("blink detection failed", "error", err)
		return nil
	}

	c := *f
	c.Blink = blink
	return &c
}

// Reset forgets the open-eye history.
func (d *Detector) Reset() {
	d.history.Reset()
	d.run.Reset()
}

func (d *Detector) detect(f *gaze.EyeFeatures) (bool, error) {
	vec := tracker.Vector(f, d.config.PatchW, d.config.PatchH)
	if vec == nil {
		return false, fmt.Errorf("invalid eye patches %dx%d / %dx%d",
			f.Left.Width, f.Left.Height, f.Right.Width, f.Right.Height)
	}

	if d.history.Len() < d.config.MinHistory {
		d.history.Push(vec)
		return false, nil
	}

	mean := make([]float64, len(vec))
	for _, h := range d.history.Data() {
		if len(h) != len(vec) {
			return false, ErrPatchMismatch
		}
		floats.Add(mean, h)
	}
	floats.Scale(1/float64(d.history.Len()), mean)

	corr := stat.Correlation(vec, mean, nil)
	if math.IsNaN(corr) {
		// one side is flat; treat identical flat patches as open
		corr = 0
		if floats.Equal(vec, mean) {
			corr = 1
		}
	}

	if corr < d.config.Threshold {
		d.run.Push(vec)
		if d.run.Len() < d.run.Cap() {
			return true, nil
		}
		// A run this long is a lasting change in appearance (gaze, pose,
		// lighting), not a blink. Adopt it as the new baseline.
		d.logger.Debug("blink baseline replaced", "frames", d.run.Len(), "correlation", corr)
		d.history = datawindow.FromSlice(d.config.Window, d.run.Data())
		d.run.Reset()
		return false, nil
	}
	d.run.Reset()
	d.history.Push(vec)
	return false, nil
}
