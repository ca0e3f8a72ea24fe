package training

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-gazer/internal/log"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/pipeline"
	"github.com/teslashibe/go-gazer/pkg/regression"
)

type fixedFeatures struct {
	f        *gaze.EyeFeatures
	purposes []pipeline.Purpose
}

func (s *fixedFeatures) Features(p pipeline.Purpose) *gaze.EyeFeatures {
	s.purposes = append(s.purposes, p)
	return s.f
}

func features() *fixedFeatures {
	p := gaze.EyePatch{Width: 1, Height: 1, Pix: []byte{1}}
	return &fixedFeatures{f: &gaze.EyeFeatures{Left: p, Right: p}}
}

// clock is a settable host clock.
type clock struct{ now time.Time }

func newClock() *clock { return &clock{now: time.Unix(100, 0)} }

func (c *clock) Now() time.Time { return c.now }

// Set places the clock d after its start.
func (c *clock) Set(d time.Duration) { c.now = time.Unix(100, 0).Add(d) }

func newBridge(gate func() bool, src FeatureSource, tr Trainer) *Bridge {
	return newBridgeAt(newClock(), gate, src, tr)
}

func newBridgeAt(c *clock, gate func() bool, src FeatureSource, tr Trainer) *Bridge {
	cfg := DefaultConfig()
	cfg.Gate = gate
	cfg.Now = c.Now
	cfg.Logger = log.Discard()
	return New(cfg, src, tr)
}

func ensembleWithMock() (*regression.Ensemble, *regression.Mock) {
	e := regression.NewEnsemble(log.Discard())
	m := &regression.Mock{}
	e.Add("mock", m)
	return e, m
}

// Moves at t, t+10ms and t+60ms with a 50ms window keep t and t+60ms.
func TestMoveDebounce(t *testing.T) {
	ens, mock := ensembleWithMock()
	c := newClock()
	b := newBridgeAt(c, nil, features(), ens)

	for i, dt := range []time.Duration{0, 10 * time.Millisecond, 60 * time.Millisecond} {
		c.Set(dt)
		require.NoError(t, b.HandleMove(float64(i), 0))
	}

	data := mock.Data()
	require.Len(t, data, 2)
	assert.Equal(t, gaze.Label{0, 0}, data[0].Label)
	assert.Equal(t, gaze.Label{2, 0}, data[1].Label)
	assert.Equal(t, gaze.EventMove, data[1].EventKind)
	assert.Equal(t, Stats{Moves: 2, DroppedMoves: 1}, b.Stats())
}

func TestDroppedMovesDoNotAdvanceClock(t *testing.T) {
	ens, mock := ensembleWithMock()
	c := newClock()
	b := newBridgeAt(c, nil, features(), ens)

	for _, ms := range []int{0, 30, 45, 50} {
		c.Set(time.Duration(ms) * time.Millisecond)
		require.NoError(t, b.HandleMove(0, 0))
	}
	assert.Len(t, mock.Data(), 2, "the 50ms move is exactly one window after the first")
}

func TestClickAlwaysTrains(t *testing.T) {
	ens, mock := ensembleWithMock()
	src := features()
	b := newBridge(nil, src, ens)

	require.NoError(t, b.HandleClick(10, 20))
	require.NoError(t, b.HandleClick(10, 21))

	data := mock.Data()
	require.Len(t, data, 2)
	assert.Equal(t, gaze.EventClick, data[0].EventKind)
	assert.Equal(t, gaze.Label{10, 21}, data[1].Label)
	assert.Equal(t, []pipeline.Purpose{pipeline.ForTraining, pipeline.ForTraining}, src.purposes)
}

func TestGateBlocksTraining(t *testing.T) {
	ens, mock := ensembleWithMock()
	running := false
	b := newBridge(func() bool { return running }, features(), ens)

	require.NoError(t, b.HandleClick(1, 1))
	require.NoError(t, b.HandleMove(1, 1))
	assert.Empty(t, mock.Data())

	running = true
	require.NoError(t, b.HandleMove(1, 1))
	assert.Len(t, mock.Data(), 1, "gated moves must not advance the debounce clock")
}

func TestEmptyEnsembleReported(t *testing.T) {
	b := newBridge(nil, features(), regression.NewEnsemble(log.Discard()))
	assert.ErrorIs(t, b.HandleClick(1, 1), gaze.ErrNoRegression)
}

func TestAbsentFeaturesSkipped(t *testing.T) {
	ens, mock := ensembleWithMock()
	b := newBridge(nil, &fixedFeatures{}, ens)

	require.NoError(t, b.HandleClick(1, 1))
	assert.Empty(t, mock.Data())
	assert.Equal(t, 1, b.Stats().NoFeatures)
}

func TestHandleDispatch(t *testing.T) {
	ens, mock := ensembleWithMock()
	b := newBridge(nil, features(), ens)

	require.NoError(t, b.Handle(Event{Kind: gaze.EventClick, X: 1, Y: 2}))
	require.NoError(t, b.Handle(Event{Kind: gaze.EventMove, X: 3, Y: 4}))
	assert.Error(t, b.Handle(Event{Kind: "scroll"}))
	assert.Len(t, mock.Data(), 2)
}

// A host clock that steps backwards (NTP correction) must not stall training
// for longer than one debounce window.
func TestBackwardClockStepDoesNotStallMoves(t *testing.T) {
	ens, mock := ensembleWithMock()
	c := newClock()
	b := newBridgeAt(c, nil, features(), ens)

	c.Set(time.Hour)
	require.NoError(t, b.HandleMove(0, 0))
	for i := 1; i <= 100; i++ {
		c.Set(time.Duration(i) * 100 * time.Millisecond)
		require.NoError(t, b.HandleMove(float64(i), 0))
	}
	assert.Len(t, mock.Data(), 101)
	assert.Equal(t, Stats{Moves: 101}, b.Stats())
}
