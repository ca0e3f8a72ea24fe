package scheduler

import "time"

// Ticker delivers periodic tick times.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickSource creates a ticker for an interval.
type TickSource func(interval time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop() { t.t.Stop() }

// NewTimeTicker is the wall-clock TickSource.
func NewTimeTicker(interval time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(interval)}
}

// Manual is a Ticker fired by hand, for hosts that own their own frame clock.
type Manual struct {
	ch chan time.Time
}

// NewManual creates a manual ticker.
func NewManual() *Manual {
	return &Manual{ch: make(chan time.Time)}
}

// Source returns a TickSource that always yields m.
func (m *Manual) Source() TickSource {
	return func(time.Duration) Ticker { return m }
}

// C implements Ticker.
func (m *Manual) C() <-chan time.Time { return m.ch }

// Stop implements Ticker. The channel stays open so Fire can time out.
func (m *Manual) Stop() {}

// Fire delivers now to the running loop. It reports false if nothing
// received the tick within timeout.
func (m *Manual) Fire(now time.Time, timeout time.Duration) bool {
	select {
	case m.ch <- now:
		return true
	case <-time.After(timeout):
		return false
	}
}
