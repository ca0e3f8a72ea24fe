// Package gazer is the public surface of the gaze estimator: one Session
// owns the tracker, the regression ensemble, the scheduler and the store.
package gazer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/teslashibe/go-gazer/pkg/blink"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/pipeline"
	"github.com/teslashibe/go-gazer/pkg/regression"
	"github.com/teslashibe/go-gazer/pkg/registry"
	"github.com/teslashibe/go-gazer/pkg/scheduler"
	"github.com/teslashibe/go-gazer/pkg/store"
	"github.com/teslashibe/go-gazer/pkg/tracker"
	"github.com/teslashibe/go-gazer/pkg/training"
)

// ErrNoStaticOpener is returned by SetStaticVideo when no opener is configured.
var ErrNoStaticOpener = errors.New("gazer: no static video opener configured")

// Session is one gaze estimation context.
//
// Ticks, training events and tracker or regression swaps are serialized on
// a single mutex, so a swap never lands in the middle of an extraction or
// prediction. Listener and overlay callbacks run after the mutex is
// released and may call back into the session.
type Session struct {
	mu sync.Mutex

	config      Config
	logger      *slog.Logger
	trackers    *registry.Registry[tracker.Tracker]
	regressions *registry.Registry[regression.Predictor]
	store       store.Store

	ensemble  *regression.Ensemble
	blink     *blink.Detector
	pipe      *pipeline.Pipeline
	scheduler *scheduler.Scheduler
	bridge    *training.Bridge

	listener   GazeListener
	settings   map[string]any
	loaded     []gaze.TrainingSample
	source     pipeline.FrameSource
	staticPath string
	started    time.Time
}

// New creates a stopped session.
func New(opts ...Option) (*Session, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Trackers == nil {
		cfg.Trackers = NewTrackerRegistry()
	}
	if cfg.Regressions == nil {
		rc := regression.DefaultConfig()
		rc.Now = cfg.Now
		cfg.Regressions = NewRegressionRegistry(rc)
	}
	cfg.Pipeline.Logger = cfg.Logger
	cfg.Blink.Logger = cfg.Logger

	s := &Session{
		config:      *cfg,
		logger:      cfg.Logger.With("component", "session"),
		trackers:    cfg.Trackers,
		regressions: cfg.Regressions,
		store:       cfg.Store,
		listener:    func(*gaze.Prediction, time.Duration) {},
		settings:    maps.Clone(cfg.Settings),
	}
	if s.settings == nil {
		s.settings = map[string]any{}
	}

	t, err := s.trackers.New(cfg.Tracker)
	if err != nil {
		return nil, fmt.Errorf("gazer: initial tracker: %w", err)
	}

	s.ensemble = regression.NewEnsemble(cfg.Logger)
	if cfg.Regression != "" {
		p, err := s.regressions.New(cfg.Regression)
		if err != nil {
			closeQuietly(t)
			return nil, fmt.Errorf("gazer: initial regression: %w", err)
		}
		s.ensemble.Add(cfg.Regression, p)
	}

	s.blink = blink.New(cfg.Blink)
	s.pipe = pipeline.New(cfg.Pipeline, t, s.blink, s.ensemble)

	s.scheduler = scheduler.New(scheduler.Config{
		Interval: cfg.TickInterval,
		Source:   cfg.TickSource,
		Hooks:    scheduler.Hooks{OnBegin: s.prepare, OnEnd: s.finish},
		Logger:   cfg.Logger,
	}, s.onTick)

	s.bridge = training.New(training.Config{
		Debounce: cfg.MoveDebounce,
		Gate:     func() bool { return s.scheduler.State() == scheduler.Running },
		Now:      cfg.Now,
		Logger:   cfg.Logger,
	}, s.pipe, s.ensemble)

	return s, nil
}

// Begin loads persisted data, acquires a frame source and starts ticking.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.scheduler.Begin(ctx); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	s.logger.Info("session started",
		"tracker", s.pipe.Tracker().Name(),
		"regressions", s.ensemble.Names(),
		"samples", len(s.loaded))
	return nil
}

// prepare runs as the scheduler's OnBegin hook, under s.mu.
func (s *Session) prepare(ctx context.Context) error {
	state := s.store.Load(ctx)
	if len(state.Settings) > 0 {
		s.settings = state.Settings
	}
	s.loaded = state.Data
	s.ensemble.SetData(state.Data)

	src, err := s.openSource(ctx)
	if err != nil {
		return err
	}
	s.source = src
	s.pipe.SetSource(src)
	s.pipe.ResetSmoothing()
	s.blink.Reset()
	s.bridge.Reset()
	s.started = s.config.Now()
	return nil
}

func (s *Session) openSource(ctx context.Context) (pipeline.FrameSource, error) {
	if s.staticPath != "" {
		if s.config.StaticOpener == nil {
			return nil, ErrNoStaticOpener
		}
		src, err := s.config.StaticOpener(s.staticPath)
		if err != nil {
			return nil, fmt.Errorf("open static video %q: %w", s.staticPath, err)
		}
		return src, nil
	}
	if s.config.Sources == nil {
		return nil, pipeline.ErrNoSource
	}
	src, err := s.config.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire frame source: %w", err)
	}
	return src, nil
}

func (s *Session) releaseSource() error {
	src := s.source
	s.source = nil
	s.pipe.SetSource(nil)
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Pause stops ticking and training until Resume. It is a no-op unless Running.
func (s *Session) Pause() { s.scheduler.Pause() }

// Resume restarts ticking. It is a no-op unless Paused.
func (s *Session) Resume() { s.scheduler.Resume() }

// End stops the session, releases the frame source and saves the data.
// Ending a stopped session is a no-op.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler.State() == scheduler.Stopped {
		return nil
	}
	err := s.scheduler.End(ctx)
	s.logger.Info("session ended")
	return err
}

// finish runs as the scheduler's OnEnd hook, under s.mu: release the
// frame source, then write the final save.
func (s *Session) finish(ctx context.Context) error {
	var errs []error
	if err := s.releaseSource(); err != nil {
		errs = append(errs, fmt.Errorf("release frame source: %w", err))
	}
	if err := s.save(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// State returns the scheduler state.
func (s *Session) State() scheduler.State { return s.scheduler.State() }

// IsReady reports whether a non-empty frame has been captured.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.IsReady()
}

// Tick runs one tick at now if Running and reports whether it ran. Hosts
// without a tick source call this from their own loop.
func (s *Session) Tick(now time.Time) bool {
	return s.scheduler.Tick(now)
}

func (s *Session) onTick(now time.Time) {
	s.mu.Lock()
	res := s.pipe.Step(now.Sub(s.started))
	listener := s.listener
	shown := s.pipe.OverlayShown()
	s.mu.Unlock()

	if res.Err != nil {
		s.logger.Debug("tick without prediction", "error", res.Err)
	}
	listener(res.Prediction, res.Elapsed)
	if shown && res.Smoothed != nil && s.config.Overlay != nil {
		s.config.Overlay(*res.Smoothed)
	}
}

// SetTracker swaps the active tracker. On error the previous tracker stays.
func (s *Session) SetTracker(name string) error {
	t, err := s.trackers.New(name)
	if err != nil {
		return fmt.Errorf("set tracker: %w", err)
	}

	s.mu.Lock()
	old := s.pipe.SetTracker(t)
	s.blink.Reset()
	s.mu.Unlock()

	closeQuietly(old)
	s.logger.Info("tracker set", "name", name)
	return nil
}

// SetRegression replaces the whole ensemble with name. The primary's data,
// or the loaded data when the ensemble is empty, carries over.
func (s *Session) SetRegression(name string) error {
	p, err := s.regressions.New(name)
	if err != nil {
		return fmt.Errorf("set regression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensemble.Replace(name, p, s.loaded)
	return nil
}

// AddRegression appends name to the ensemble, seeded with the primary's data.
func (s *Session) AddRegression(name string) error {
	p, err := s.regressions.New(name)
	if err != nil {
		return fmt.Errorf("add regression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensemble.Len() == 0 {
		s.ensemble.Replace(name, p, s.loaded)
		return nil
	}
	s.ensemble.Add(name, p)
	return nil
}

// Tracker returns the active tracker.
func (s *Session) Tracker() tracker.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.Tracker()
}

// Regressions returns the ensemble members, primary first.
func (s *Session) Regressions() []regression.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensemble.Members()
}

// TrackerNames lists the registered trackers.
func (s *Session) TrackerNames() []string { return s.trackers.List() }

// RegressionNames lists the registered regressions.
func (s *Session) RegressionNames() []string { return s.regressions.List() }

// SetGazeListener registers the per-tick consumer.
func (s *Session) SetGazeListener(fn GazeListener) {
	if fn == nil {
		fn = func(*gaze.Prediction, time.Duration) {}
	}
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// ClearGazeListener restores the no-op consumer.
func (s *Session) ClearGazeListener() { s.SetGazeListener(nil) }

// CurrentPrediction predicts from the current frame outside the tick
// cadence. A nil prediction with a nil error means no answer this time.
func (s *Session) CurrentPrediction() (*gaze.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.Predict()
}

// EventTypes lists the training event kinds.
func (s *Session) EventTypes() []gaze.EventKind { return gaze.EventKinds() }

// ShowPredictionPoints toggles the smoothed overlay. Hiding it discards the
// smoothing history.
func (s *Session) ShowPredictionPoints(show bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipe.ShowOverlay(show)
	if !show {
		s.pipe.ResetSmoothing()
	}
}

// OverlayShown reports whether prediction points are shown.
func (s *Session) OverlayShown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.OverlayShown()
}

// SetStaticVideo makes the next Begin read frames from path instead of the
// live source. An empty path goes back to the live source.
func (s *Session) SetStaticVideo(path string) error {
	if path != "" && s.config.StaticOpener == nil {
		return ErrNoStaticOpener
	}
	s.mu.Lock()
	s.staticPath = path
	s.mu.Unlock()
	return nil
}

// SaveData persists the settings and the primary regression's data.
func (s *Session) SaveData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx)
}

func (s *Session) save(ctx context.Context) error {
	data := s.loaded
	if s.ensemble.Len() > 0 {
		data = s.ensemble.Data()
	}
	st := store.State{Settings: s.settings, Data: data}
	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("save data: %w", err)
	}
	s.loaded = data
	s.logger.Debug("data saved", "samples", len(data))
	return nil
}

// ClearData erases the stored record and every regression's training data.
func (s *Session) ClearData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear data: %w", err)
	}
	s.ensemble.Clear()
	s.loaded = nil
	s.logger.Info("data cleared")
	return nil
}

// Settings returns a copy of the opaque settings.
func (s *Session) Settings() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.settings)
}

// SetSetting stores one setting; it is persisted on the next save.
func (s *Session) SetSetting(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
}

// HandleClick trains every regression on a click at (x, y).
func (s *Session) HandleClick(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge.HandleClick(x, y)
}

// HandleMove trains on a pointer move unless it is debounced. The debounce
// window runs on the session clock.
func (s *Session) HandleMove(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge.HandleMove(x, y)
}

// DetectCompatibility reports whether the session can run: a frame source
// can be acquired and at least one tracker is registered.
func (s *Session) DetectCompatibility() bool {
	return (s.config.Sources != nil || s.config.StaticOpener != nil) && s.trackers.Count() > 0
}

// Status is a snapshot for dashboards.
type Status struct {
	State       string         `json:"state"`
	Ready       bool           `json:"ready"`
	Tracker     string         `json:"tracker"`
	Regressions []string       `json:"regressions"`
	Samples     int            `json:"samples"`
	Overlay     bool           `json:"overlay"`
	Smoothed    *gaze.Point    `json:"smoothed,omitempty"`
	Training    training.Stats `json:"training"`
}

// Status returns the current session snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:       s.scheduler.State().String(),
		Ready:       s.pipe.IsReady(),
		Regressions: s.ensemble.Names(),
		Samples:     len(s.ensemble.Data()),
		Overlay:     s.pipe.OverlayShown(),
		Training:    s.bridge.Stats(),
	}
	if t := s.pipe.Tracker(); t != nil {
		st.Tracker = t.Name()
	}
	if pt := s.pipe.Smoothed(); pt != nil {
		p := *pt
		st.Smoothed = &p
	}
	return st
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}
