// Package scheduler drives the per-tick gaze pipeline through a
// Stopped/Running/Paused lifecycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyStarted is returned by Begin when the scheduler is not stopped.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// State is a lifecycle state.
type State int

const (
	Stopped State = iota // initial and terminal until the next Begin
	Running              // ticks invoke the handler
	Paused               // ticks are ignored
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Handler runs once per tick while Running.
type Handler func(now time.Time)

// Listener is invoked on every state transition.
type Listener func(prev, next State)

// Hooks run at lifecycle boundaries with the context passed to Begin or End.
// OnBegin runs before entering Running and aborts Begin on error; OnEnd runs
// after entering Stopped, once the tick loop has been told to stop.
type Hooks struct {
	OnBegin func(ctx context.Context) error
	OnEnd   func(ctx context.Context) error
}

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration // Tick period (default 50ms)
	Source   TickSource    // Nil means ticks are injected with Tick
	Hooks    Hooks
	Logger   *slog.Logger
}

// DefaultConfig returns a 50ms wall-clock schedule.
func DefaultConfig() Config {
	return Config{
		Interval: 50 * time.Millisecond,
		Source:   NewTimeTicker,
		Logger:   slog.Default(),
	}
}

// Scheduler invokes a handler on every tick while Running.
type Scheduler struct {
	tmu sync.Mutex // serializes transitions
	mu  sync.RWMutex

	state     State
	config    Config
	handler   Handler
	listeners []Listener
	stop      chan struct{}
	logger    *slog.Logger
}

// New creates a stopped scheduler.
func New(cfg Config, h Handler) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		config:  cfg,
		handler: h,
		logger:  cfg.Logger.With("component", "scheduler"),
	}
}

// AddListener registers a transition listener.
func (s *Scheduler) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Begin moves Stopped to Running after OnBegin succeeds.
func (s *Scheduler) Begin(ctx context.Context) error {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if st := s.State(); st != Stopped {
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, st)
	}
	if s.config.Hooks.OnBegin != nil {
		if err := s.config.Hooks.OnBegin(ctx); err != nil {
			return err
		}
	}
	s.transition(Running)
	s.startLoop()
	return nil
}

// Pause moves Running to Paused. Any other state is a no-op.
func (s *Scheduler) Pause() {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if s.State() != Running {
		return
	}
	s.stopLoop()
	s.transition(Paused)
}

// Resume moves Paused to Running. Any other state is a no-op.
func (s *Scheduler) Resume() {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if s.State() != Paused {
		return
	}
	s.transition(Running)
	s.startLoop()
}

// End moves Running or Paused to Stopped and then runs OnEnd.
// Ending a stopped scheduler is a no-op.
func (s *Scheduler) End(ctx context.Context) error {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if s.State() == Stopped {
		return nil
	}
	s.stopLoop()
	s.transition(Stopped)
	if s.config.Hooks.OnEnd != nil {
		return s.config.Hooks.OnEnd(ctx)
	}
	return nil
}

// Tick invokes the handler if Running and reports whether it ran.
// An in-progress tick always completes, even if Pause races with it.
func (s *Scheduler) Tick(now time.Time) bool {
	if s.State() != Running {
		return false
	}
	if s.handler != nil {
		s.handler(now)
	}
	return true
}

func (s *Scheduler) transition(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Debug("state change", "from", prev, "to", next)
	for _, l := range listeners {
		l(prev, next)
	}
}

// startLoop launches the tick goroutine when a source is configured.
func (s *Scheduler) startLoop() {
	if s.config.Source == nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	t := s.config.Source(s.config.Interval)
	go s.loop(t, stop)
}

// stopLoop signals the goroutine without waiting, so a handler may pause
// or end the scheduler from inside a tick.
func (s *Scheduler) stopLoop() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Scheduler) loop(t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C():
			s.safeTick(now)
		}
	}
}

func (s *Scheduler) safeTick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tick handler panicked", "panic", r)
		}
	}()
	s.Tick(now)
}
