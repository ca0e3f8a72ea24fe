// Package pipeline runs one gaze estimate per tick: paint the frame, extract
// eye features, annotate blinks, predict and smooth.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/teslashibe/go-gazer/pkg/datawindow"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/regression"
	"github.com/teslashibe/go-gazer/pkg/tracker"
)

// ErrNoSource is returned when no frame source is attached.
var ErrNoSource = errors.New("pipeline: no frame source")

// FrameSource supplies the current camera frame.
type FrameSource interface {
	Frame() (image.Image, error)
}

// BlinkAnnotator tags features with a blink judgment.
type BlinkAnnotator interface {
	Annotate(f *gaze.EyeFeatures) *gaze.EyeFeatures
}

// Result is the outcome of one tick.
type Result struct {
	// Prediction is the unsmoothed estimate with the per-member breakdown.
	Prediction *gaze.Prediction
	// Smoothed is the clamped moving average, set only when smoothing ran.
	Smoothed *gaze.Point
	Elapsed  time.Duration
	Err      error
}

// Pipeline wires a frame source, tracker, blink detector and ensemble.
// It is not safe for concurrent use; callers serialize ticks, training
// and swaps.
type Pipeline struct {
	config   Config
	logger   *slog.Logger
	canvas   Canvas
	source   FrameSource
	tracker  tracker.Tracker
	blink    BlinkAnnotator
	ensemble *regression.Ensemble
	smoother *datawindow.Window[gaze.Point]
	overlay  bool
	smoothed *gaze.Point
}

// New creates a pipeline. blink may be nil to skip blink detection.
func New(cfg Config, t tracker.Tracker, blink BlinkAnnotator, ensemble *regression.Ensemble) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SmoothingWindow < 1 {
		cfg.SmoothingWindow = 4
	}
	return &Pipeline{
		config:   cfg,
		logger:   cfg.Logger.With("component", "pipeline"),
		tracker:  t,
		blink:    blink,
		ensemble: ensemble,
		smoother: datawindow.New[gaze.Point](cfg.SmoothingWindow),
	}
}

// SetSource attaches a frame source; nil detaches.
func (p *Pipeline) SetSource(src FrameSource) { p.source = src }

// Source returns the attached frame source.
func (p *Pipeline) Source() FrameSource { return p.source }

// SetTracker swaps the tracker and returns the previous one.
func (p *Pipeline) SetTracker(t tracker.Tracker) tracker.Tracker {
	old := p.tracker
	p.tracker = t
	return old
}

// Tracker returns the active tracker.
func (p *Pipeline) Tracker() tracker.Tracker { return p.tracker }

// Ensemble returns the predictor ensemble.
func (p *Pipeline) Ensemble() *regression.Ensemble { return p.ensemble }

// ShowOverlay toggles the smoothed-point overlay, which also enables smoothing.
func (p *Pipeline) ShowOverlay(show bool) { p.overlay = show }

// OverlayShown reports whether the overlay is on.
func (p *Pipeline) OverlayShown() bool { return p.overlay }

// SetBlinkPolicy changes the blink policy.
func (p *Pipeline) SetBlinkPolicy(bp BlinkPolicy) { p.config.BlinkPolicy = bp }

// SetScreen changes the clamp bounds for smoothed points.
func (p *Pipeline) SetScreen(s gaze.Size) { p.config.Screen = s }

// IsReady reports whether a frame with non-zero size has been painted.
func (p *Pipeline) IsReady() bool { return p.canvas.Width() > 0 }

// Canvas exposes the scratch canvas.
func (p *Pipeline) Canvas() *Canvas { return &p.canvas }

// Smoothed returns the last smoothed point, or nil.
func (p *Pipeline) Smoothed() *gaze.Point { return p.smoothed }

// ResetSmoothing empties the smoothing window.
func (p *Pipeline) ResetSmoothing() {
	p.smoother.Reset()
	p.smoothed = nil
}

// Features captures the current frame and extracts blink-annotated eye
// features for purpose. Any failure along the way yields nil.
func (p *Pipeline) Features(purpose Purpose) *gaze.EyeFeatures {
	if p.source == nil || p.tracker == nil {
		return nil
	}

	img, err := p.source.Frame()
	if err != nil {
		p.logger.Debug("frame unavailable", "error", err)
		return nil
	}
	if img == nil {
		return nil
	}

	w, h := p.config.canvasSize(img.Bounds().Size())
	if w <= 0 || h <= 0 {
		return nil
	}
	p.canvas.Resize(w, h)
	p.canvas.Paint(img)

	f := p.extract(p.canvas.Frame())
	if f != nil && p.blink != nil {
		f = p.blink.Annotate(f)
	}
	if f != nil && f.Blink && p.config.BlinkPolicy.drops(purpose) {
		return nil
	}
	return f
}

// extract calls the tracker, converting errors and panics into absent features.
func (p *Pipeline) extract(frame gaze.Frame) (f *gaze.EyeFeatures) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("tracker panicked", "tracker", p.tracker.Name(), "panic", fmt.Sprint(r))
			f = nil
		}
	}()

	f, err := p.tracker.Extract(frame)
	if err != nil {
		p.logger.Warn("tracker failed", "tracker", p.tracker.Name(), "error", err)
		return nil
	}
	return f
}

// Predict runs one on-demand prediction. A nil prediction with a nil error
// means no features or no primary answer this time.
func (p *Pipeline) Predict() (*gaze.Prediction, error) {
	if p.ensemble == nil || p.ensemble.Len() == 0 {
		return nil, gaze.ErrNoRegression
	}

	f := p.Features(ForPrediction)
	if f == nil {
		return nil, nil
	}

	all, err := p.ensemble.PredictAll(f)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 || all[0] == nil {
		return nil, nil
	}
	return &gaze.Prediction{X: all[0].X, Y: all[0].Y, All: all}, nil
}

// Step runs one tick. The prediction in the result is unsmoothed; when the
// overlay is shown (or smoothing is forced) the primary point is also
// averaged over the smoothing window and clamped to the screen.
func (p *Pipeline) Step(elapsed time.Duration) Result {
	pred, err := p.Predict()
	res := Result{Prediction: pred, Elapsed: elapsed, Err: err}

	if pred != nil && (p.overlay || p.config.AlwaysSmooth) {
		p.smoother.Push(gaze.Point{X: pred.X, Y: pred.Y})
		pt := gaze.Bound(mean(p.smoother.Data()), p.config.Screen)
		p.smoothed = &pt
		res.Smoothed = &pt
	}
	return res
}

func mean(pts []gaze.Point) gaze.Point {
	var sx, sy float64
	for _, pt := range pts {
		sx += pt.X
		sy += pt.Y
	}
	n := float64(len(pts))
	return gaze.Point{X: sx / n, Y: sy / n}
}
