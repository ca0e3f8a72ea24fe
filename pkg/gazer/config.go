package gazer

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-gazer/pkg/blink"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/pipeline"
	"github.com/teslashibe/go-gazer/pkg/regression"
	"github.com/teslashibe/go-gazer/pkg/registry"
	"github.com/teslashibe/go-gazer/pkg/scheduler"
	"github.com/teslashibe/go-gazer/pkg/store"
	"github.com/teslashibe/go-gazer/pkg/tracker"
)

// SourceProvider acquires the live frame source at Begin. If the returned
// source implements io.Closer it is closed at End.
type SourceProvider func(ctx context.Context) (pipeline.FrameSource, error)

// StaticOpener opens a file-backed frame source for SetStaticVideo.
type StaticOpener func(path string) (pipeline.FrameSource, error)

// GazeListener receives every tick's unsmoothed prediction, or nil when
// there was none, with the time elapsed since Begin.
type GazeListener func(p *gaze.Prediction, elapsed time.Duration)

// OverlayFunc draws the smoothed point while prediction points are shown.
type OverlayFunc func(pt gaze.Point)

// Config holds session configuration.
type Config struct {
	Store        store.Store
	Sources      SourceProvider
	StaticOpener StaticOpener

	Trackers    *registry.Registry[tracker.Tracker]
	Regressions *registry.Registry[regression.Predictor]
	Tracker     string // Initial tracker (default "fixed")
	Regression  string // Initial primary regression (default "interaction")

	TickInterval time.Duration        // default 50ms
	TickSource   scheduler.TickSource // nil: ticks only via Session.Tick
	MoveDebounce time.Duration        // default 50ms

	Pipeline pipeline.Config
	Blink    blink.Config
	Overlay  OverlayFunc
	Settings map[string]any // Used until a stored record is loaded

	Now    func() time.Time
	Logger *slog.Logger
}

// Option configures a session.
type Option func(*Config)

// DefaultConfig returns a session with in-memory persistence, the fixed
// tracker and a single ridge regression.
func DefaultConfig() *Config {
	return &Config{
		Tracker:      "fixed",
		Regression:   regression.NameRidge,
		TickInterval: 50 * time.Millisecond,
		TickSource:   scheduler.NewTimeTicker,
		MoveDebounce: 50 * time.Millisecond,
		Pipeline:     pipeline.DefaultConfig(),
		Blink:        blink.DefaultConfig(),
		Now:          time.Now,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithStore sets the persistence store.
func WithStore(s store.Store) Option {
	return func(c *Config) { c.Store = s }
}

// WithSourceProvider sets how the live frame source is acquired.
func WithSourceProvider(p SourceProvider) Option {
	return func(c *Config) { c.Sources = p }
}

// WithStaticOpener sets how SetStaticVideo paths are opened.
func WithStaticOpener(o StaticOpener) Option {
	return func(c *Config) { c.StaticOpener = o }
}

// WithTrackers replaces the tracker registry.
func WithTrackers(r *registry.Registry[tracker.Tracker]) Option {
	return func(c *Config) { c.Trackers = r }
}

// WithRegressions replaces the regression registry.
func WithRegressions(r *registry.Registry[regression.Predictor]) Option {
	return func(c *Config) { c.Regressions = r }
}

// WithTracker selects the initial tracker.
func WithTracker(name string) Option {
	return func(c *Config) { c.Tracker = name }
}

// WithRegression selects the initial primary regression.
func WithRegression(name string) Option {
	return func(c *Config) { c.Regression = name }
}

// WithTickInterval sets the scheduling quantum.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) { c.TickInterval = d }
}

// WithTickSource sets the periodic tick provider. nil means the host calls
// Session.Tick itself.
func WithTickSource(src scheduler.TickSource) Option {
	return func(c *Config) { c.TickSource = src }
}

// WithMoveDebounce sets the minimum spacing of trained pointer moves.
func WithMoveDebounce(d time.Duration) Option {
	return func(c *Config) { c.MoveDebounce = d }
}

// WithSmoothingWindow sets how many predictions the overlay averages.
func WithSmoothingWindow(n int) Option {
	return func(c *Config) { c.Pipeline.SmoothingWindow = n }
}

// WithScreen sets the bounds smoothed points are clamped to.
func WithScreen(width, height int) Option {
	return func(c *Config) { c.Pipeline.Screen = gaze.Size{Width: width, Height: height} }
}

// WithBlinkPolicy sets where blink frames are dropped.
func WithBlinkPolicy(p pipeline.BlinkPolicy) Option {
	return func(c *Config) { c.Pipeline.BlinkPolicy = p }
}

// WithBlink sets blink detection parameters.
func WithBlink(b blink.Config) Option {
	return func(c *Config) { c.Blink = b }
}

// WithOverlay sets the smoothed-point renderer.
func WithOverlay(fn OverlayFunc) Option {
	return func(c *Config) { c.Overlay = fn }
}

// WithImageSize sets the scratch canvas size. Zero uses the source size.
func WithImageSize(width, height int) Option {
	return func(c *Config) {
		c.Pipeline.ImageWidth = width
		c.Pipeline.ImageHeight = height
	}
}

// WithVideoScale scales the scratch canvas.
func WithVideoScale(scale float64) Option {
	return func(c *Config) { c.Pipeline.VideoScale = scale }
}

// WithSettings sets the opaque settings saved alongside training data.
func WithSettings(s map[string]any) Option {
	return func(c *Config) { c.Settings = s }
}

// WithClock sets the time source used for elapsed times.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// NewTrackerRegistry returns a registry holding the pure-Go "fixed" tracker.
func NewTrackerRegistry() *registry.Registry[tracker.Tracker] {
	r := registry.New[tracker.Tracker]("tracker", gaze.ErrUnknownTracker)
	r.Register("fixed", func() (tracker.Tracker, error) {
		return tracker.NewFixed(tracker.DefaultFixedConfig()), nil
	})
	return r
}

// NewRegressionRegistry returns a registry holding both ridge variants.
func NewRegressionRegistry(cfg regression.Config) *registry.Registry[regression.Predictor] {
	r := registry.New[regression.Predictor]("regression", gaze.ErrUnknownRegression)
	regression.Register(r, cfg)
	return r
}
