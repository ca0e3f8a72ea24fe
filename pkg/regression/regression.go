// Package regression maps eye features to screen coordinates with online
// ridge regression and groups predictors into an ensemble.
package regression

import (
	"time"

	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/registry"
)

// Predictor is a stateful online regressor.
type Predictor interface {
	// Predict is a pure function of the current training set and f.
	// It reports false when no coordinate can be produced.
	Predict(f *gaze.EyeFeatures) (gaze.Point, bool)

	// AddData incorporates one sample. Nil and blink features are ignored.
	AddData(f *gaze.EyeFeatures, label gaze.Label, kind gaze.EventKind)

	// SetData replaces the training set.
	SetData(samples []gaze.TrainingSample)

	// Data exports a copy of the training set.
	Data() []gaze.TrainingSample
}

// Registry names.
const (
	NameRidge         = "interaction"
	NameWeightedRidge = "weightedRidge"
)

// Config holds ridge regression parameters.
type Config struct {
	ClickWindow int           // Click samples retained (default 700)
	TrailWindow int           // Move samples retained (default 20)
	TrailTime   time.Duration // Move samples older than this are ignored (default 1s)
	Lambda      float64       // Ridge parameter (default 1e-5)
	PatchW      int           // Per-eye feature width (default 10)
	PatchH      int           // Per-eye feature height (default 6)
	Now         func() time.Time
}

// DefaultConfig returns the standard online ridge settings.
// The trail window holds one second of moves at a 50ms debounce.
func DefaultConfig() Config {
	return Config{
		ClickWindow: 700,
		TrailWindow: 20,
		TrailTime:   time.Second,
		Lambda:      1e-5,
		PatchW:      10,
		PatchH:      6,
		Now:         time.Now,
	}
}

// Register adds the ridge predictors to r.
func Register(r *registry.Registry[Predictor], cfg Config) {
	r.Register(NameRidge, func() (Predictor, error) { return NewRidge(cfg), nil })
	r.Register(NameWeightedRidge, func() (Predictor, error) { return NewWeightedRidge(cfg), nil })
}
