// Package training turns pointer interactions into labeled samples for the
// regression ensemble.
package training

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/pipeline"
)

// Event is a pointer interaction in screen coordinates.
type Event struct {
	Kind gaze.EventKind
	X, Y float64
}

// FeatureSource extracts features synchronously for an event.
type FeatureSource interface {
	Features(purpose pipeline.Purpose) *gaze.EyeFeatures
}

// Trainer receives samples. regression.Ensemble implements it.
type Trainer interface {
	AddData(f *gaze.EyeFeatures, label gaze.Label, kind gaze.EventKind) error
}

// Config holds bridge settings.
type Config struct {
	Debounce time.Duration    // Minimum spacing of processed moves (default 50ms)
	Gate     func() bool      // Events are ignored while this returns false
	Now      func() time.Time // Host clock for the debounce window
	Logger   *slog.Logger
}

// DefaultConfig returns a 50ms move debounce with no gate.
func DefaultConfig() Config {
	return Config{
		Debounce: 50 * time.Millisecond,
		Now:      time.Now,
		Logger:   slog.Default(),
	}
}

// Stats counts handled events.
type Stats struct {
	Clicks       int `json:"clicks"`
	Moves        int `json:"moves"`
	DroppedMoves int `json:"dropped_moves"`
	NoFeatures   int `json:"no_features"`
}

// Bridge converts clicks and debounced moves into training samples.
type Bridge struct {
	config   Config
	features FeatureSource
	trainer  Trainer
	logger   *slog.Logger

	mu       sync.Mutex
	lastMove time.Time
	hasMove  bool
	stats    Stats
}

// New creates a bridge.
func New(cfg Config, features FeatureSource, trainer Trainer) *Bridge {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		config:   cfg,
		features: features,
		trainer:  trainer,
		logger:   cfg.Logger.With("component", "training"),
	}
}

// Handle dispatches an event by kind.
func (b *Bridge) Handle(ev Event) error {
	switch ev.Kind {
	case gaze.EventClick:
		return b.HandleClick(ev.X, ev.Y)
	case gaze.EventMove:
		return b.HandleMove(ev.X, ev.Y)
	default:
		return fmt.Errorf("training: unknown event kind %q", ev.Kind)
	}
}

// HandleClick trains on a click at (x, y).
func (b *Bridge) HandleClick(x, y float64) error {
	if !b.open() {
		return nil
	}
	b.mu.Lock()
	b.stats.Clicks++
	b.mu.Unlock()
	return b.record(x, y, gaze.EventClick)
}

// HandleMove trains on a move at (x, y) unless it arrives inside the
// debounce window of the last processed move. The window is measured on
// the host clock when the move is handled, never on a sender's timestamp.
func (b *Bridge) HandleMove(x, y float64) error {
	if !b.open() {
		return nil
	}

	at := b.config.Now()
	b.mu.Lock()
	// A clock that stepped backwards restarts the window.
	if elapsed := at.Sub(b.lastMove); b.hasMove && elapsed >= 0 && elapsed < b.config.Debounce {
		b.stats.DroppedMoves++
		b.mu.Unlock()
		return nil
	}
	b.lastMove = at
	b.hasMove = true
	b.stats.Moves++
	b.mu.Unlock()

	return b.record(x, y, gaze.EventMove)
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Reset clears the debounce clock and counters.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hasMove = false
	b.lastMove = time.Time{}
	b.stats = Stats{}
}

func (b *Bridge) open() bool {
	return b.config.Gate == nil || b.config.Gate()
}

func (b *Bridge) record(x, y float64, kind gaze.EventKind) error {
	f := b.features.Features(pipeline.ForTraining)
	if f == nil {
		b.mu.Lock()
		b.stats.NoFeatures++
		b.mu.Unlock()
		return nil
	}
	if err := b.trainer.AddData(f, gaze.Label{x, y}, kind); err != nil {
		return fmt.Errorf("train on %s: %w", kind, err)
	}
	b.logger.Debug("sample added", "kind", kind, "x", x, "y", y)
	return nil
}
