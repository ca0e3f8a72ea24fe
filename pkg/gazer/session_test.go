package gazer

import (
	"context"
	"errors"
	"image"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-gazer/internal/log"
	"github.com/teslashibe/go-gazer/pkg/blink"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/pipeline"
	"github.com/teslashibe/go-gazer/pkg/regression"
	"github.com/teslashibe/go-gazer/pkg/registry"
	"github.com/teslashibe/go-gazer/pkg/scheduler"
	"github.com/teslashibe/go-gazer/pkg/store"
	"github.com/teslashibe/go-gazer/pkg/tracker"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type frameSource struct {
	closed atomic.Int32
}

func (s *frameSource) Frame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (s *frameSource) Close() error {
	s.closed.Add(1)
	return nil
}

// randomTracker returns fresh pseudo-random eye patches on every call.
func randomTracker(name string) tracker.Tracker {
	var seed atomic.Uint64
	return tracker.Func{ID: name, Fn: func(gaze.Frame) (*gaze.EyeFeatures, error) {
		n := seed.Add(1)
		rng := rand.New(rand.NewPCG(n, n*17+3))
		patch := func() gaze.EyePatch {
			pix := make([]byte, 20*12)
			for i := range pix {
				pix[i] = byte(rng.IntN(256))
			}
			return gaze.EyePatch{Width: 20, Height: 12, Pix: pix}
		}
		return &gaze.EyeFeatures{Left: patch(), Right: patch()}, nil
	}}
}

func testTrackers() *registry.Registry[tracker.Tracker] {
	r := NewTrackerRegistry()
	r.Register("random", func() (tracker.Tracker, error) { return randomTracker("random"), nil })
	r.Register("other", func() (tracker.Tracker, error) { return randomTracker("other"), nil })
	r.Register("broken", func() (tracker.Tracker, error) { return nil, errors.New("model missing") })
	return r
}

type fixture struct {
	session *Session
	source  *frameSource
	clock   *clock
	store   *store.MemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		source: &frameSource{},
		clock:  &clock{now: epoch},
		store:  store.NewMemoryStore(),
	}
	noBlinks := blink.DefaultConfig()
	noBlinks.Threshold = -2

	base := []Option{
		WithLogger(log.Discard()),
		WithStore(f.store),
		WithSourceProvider(func(context.Context) (pipeline.FrameSource, error) { return f.source, nil }),
		WithTrackers(testTrackers()),
		WithTracker("random"),
		WithTickSource(nil),
		WithClock(f.clock.Now),
		WithBlink(noBlinks),
		WithImageSize(0, 0),
	}
	s, err := New(append(base, opts...)...)
	require.NoError(t, err)
	f.session = s
	return f
}

func mockRegressions(at gaze.Point) (*registry.Registry[regression.Predictor], *[]*regression.Mock) {
	var mu sync.Mutex
	var made []*regression.Mock
	r := NewRegressionRegistry(regression.DefaultConfig())
	r.Register("mock", func() (regression.Predictor, error) {
		m := regression.NewMock(at)
		mu.Lock()
		made = append(made, m)
		mu.Unlock()
		return m, nil
	})
	return r, &made
}

func TestNewDefaults(t *testing.T) {
	s, err := New(WithLogger(log.Discard()), WithTickSource(nil))
	require.NoError(t, err)

	assert.Equal(t, scheduler.Stopped, s.State())
	assert.Equal(t, "fixed", s.Tracker().Name())
	assert.Equal(t, []string{"fixed"}, s.TrackerNames())
	assert.Equal(t, []string{regression.NameRidge, regression.NameWeightedRidge}, s.RegressionNames())
	require.Len(t, s.Regressions(), 1)
	assert.Equal(t, regression.NameRidge, s.Regressions()[0].Name)
	assert.Equal(t, []gaze.EventKind{gaze.EventClick, gaze.EventMove}, s.EventTypes())
	assert.False(t, s.DetectCompatibility())
}

func TestNewUnknownNames(t *testing.T) {
	_, err := New(WithLogger(log.Discard()), WithTracker("nope"))
	require.ErrorIs(t, err, gaze.ErrUnknownTracker)
	require.ErrorIs(t, err, registry.ErrNotFound)

	_, err = New(WithLogger(log.Discard()), WithRegression("nope"))
	require.ErrorIs(t, err, gaze.ErrUnknownRegression)
}

func TestBeginWithoutSource(t *testing.T) {
	s, err := New(WithLogger(log.Discard()), WithTickSource(nil))
	require.NoError(t, err)

	err = s.Begin(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoSource)
	assert.Equal(t, scheduler.Stopped, s.State())
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	s := f.session
	ctx := context.Background()

	s.Pause()
	assert.Equal(t, scheduler.Stopped, s.State(), "pause while stopped is a no-op")
	require.NoError(t, s.End(ctx), "end while stopped is a no-op")

	require.NoError(t, s.Begin(ctx))
	assert.Equal(t, scheduler.Running, s.State())
	assert.True(t, s.DetectCompatibility())

	require.ErrorIs(t, s.Begin(ctx), scheduler.ErrAlreadyStarted)

	s.Resume()
	assert.Equal(t, scheduler.Running, s.State(), "resume while running is a no-op")

	s.Pause()
	assert.Equal(t, scheduler.Paused, s.State())
	assert.False(t, s.Tick(f.clock.Now()), "paused sessions do not tick")

	s.Resume()
	assert.Equal(t, scheduler.Running, s.State())

	s.Pause()
	require.NoError(t, s.End(ctx), "end from paused is valid")
	assert.Equal(t, scheduler.Stopped, s.State())
	assert.EqualValues(t, 1, f.source.closed.Load())
}

func TestTickDeliversUnsmoothedPrediction(t *testing.T) {
	regs, _ := mockRegressions(gaze.Point{X: 100, Y: 200})
	f := newFixture(t, WithRegressions(regs), WithRegression("mock"))
	s := f.session
	require.NoError(t, s.Begin(context.Background()))

	var got *gaze.Prediction
	var elapsed time.Duration
	s.SetGazeListener(func(p *gaze.Prediction, e time.Duration) {
		got, elapsed = p, e
	})

	require.True(t, s.Tick(epoch.Add(250*time.Millisecond)))
	require.NotNil(t, got)
	assert.Equal(t, 100.0, got.X)
	assert.Equal(t, 200.0, got.Y)
	require.Len(t, got.All, 1)
	assert.Equal(t, 250*time.Millisecond, elapsed)
	assert.True(t, s.IsReady())

	s.ClearGazeListener()
	got = nil
	require.True(t, s.Tick(epoch.Add(300*time.Millisecond)))
	assert.Nil(t, got)
}

func TestOverlaySmoothing(t *testing.T) {
	var x atomic.Int64
	regs := NewRegressionRegistry(regression.DefaultConfig())
	regs.Register("ramp", func() (regression.Predictor, error) {
		m := regression.NewMock(gaze.Point{})
		m.PredictFunc = func(*gaze.EyeFeatures) (gaze.Point, bool) {
			return gaze.Point{X: float64(x.Add(100)), Y: 10}, true
		}
		return m, nil
	})

	var drawn []gaze.Point
	f := newFixture(t,
		WithRegressions(regs),
		WithRegression("ramp"),
		WithSmoothingWindow(2),
		WithScreen(1000, 1000),
		WithOverlay(func(pt gaze.Point) { drawn = append(drawn, pt) }),
	)
	s := f.session
	require.NoError(t, s.Begin(context.Background()))

	var raw []float64
	s.SetGazeListener(func(p *gaze.Prediction, _ time.Duration) { raw = append(raw, p.X) })

	s.Tick(epoch)
	assert.Empty(t, drawn, "overlay hidden")

	s.ShowPredictionPoints(true)
	s.Tick(epoch) // 200
	s.Tick(epoch) // 300
	s.Tick(epoch) // 400

	assert.Equal(t, []float64{100, 200, 300, 400}, raw)
	assert.Equal(t, []gaze.Point{{X: 200, Y: 10}, {X: 250, Y: 10}, {X: 350, Y: 10}}, drawn)
	assert.Equal(t, &gaze.Point{X: 350, Y: 10}, s.Status().Smoothed)

	s.ShowPredictionPoints(false)
	assert.Nil(t, s.Status().Smoothed)
}

func TestTrainingOnlyWhileRunning(t *testing.T) {
	regs, made := mockRegressions(gaze.Point{})
	f := newFixture(t, WithRegressions(regs), WithRegression("mock"))
	s := f.session
	ctx := context.Background()

	require.NoError(t, s.HandleClick(1, 2))
	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.HandleClick(3, 4))
	s.Pause()
	require.NoError(t, s.HandleClick(5, 6))
	s.Resume()

	m := (*made)[0]
	data := m.Data()
	require.Len(t, data, 1)
	assert.Equal(t, gaze.Label{3, 4}, data[0].Label)
	assert.Equal(t, gaze.EventClick, data[0].EventKind)
	assert.Equal(t, 1, s.Status().Training.Clicks)
}

func TestMoveDebounce(t *testing.T) {
	regs, made := mockRegressions(gaze.Point{})
	f := newFixture(t, WithRegressions(regs), WithRegression("mock"), WithMoveDebounce(50*time.Millisecond))
	s := f.session
	require.NoError(t, s.Begin(context.Background()))

	require.NoError(t, s.HandleMove(1, 1))
	f.clock.Advance(10 * time.Millisecond)
	require.NoError(t, s.HandleMove(2, 2))
	f.clock.Advance(50 * time.Millisecond)
	require.NoError(t, s.HandleMove(3, 3))

	data := (*made)[0].Data()
	require.Len(t, data, 2)
	assert.Equal(t, gaze.Label{1, 1}, data[0].Label)
	assert.Equal(t, gaze.Label{3, 3}, data[1].Label)
	assert.Equal(t, 1, s.Status().Training.DroppedMoves)
}

func TestAddRegressionMigratesData(t *testing.T) {
	f := newFixture(t)
	s := f.session
	require.NoError(t, s.Begin(context.Background()))

	for i := range 6 {
		require.NoError(t, s.HandleClick(float64(i*100), float64(i*50)))
	}
	before := s.Regressions()[0].Predictor.Data()
	require.Len(t, before, 6)

	require.NoError(t, s.AddRegression(regression.NameWeightedRidge))
	members := s.Regressions()
	require.Len(t, members, 2)
	assert.Equal(t, regression.NameWeightedRidge, members[1].Name)

	if diff := cmp.Diff(before, members[1].Predictor.Data(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("migrated data mismatch (-want +got):\n%s", diff)
	}
}

func TestSetRegressionTransplantsData(t *testing.T) {
	f := newFixture(t)
	s := f.session
	require.NoError(t, s.Begin(context.Background()))
	for i := range 4 {
		require.NoError(t, s.HandleClick(float64(i), float64(i)))
	}
	before := s.Regressions()[0].Predictor.Data()

	require.NoError(t, s.SetRegression(regression.NameWeightedRidge))
	members := s.Regressions()
	require.Len(t, members, 1)
	assert.Equal(t, regression.NameWeightedRidge, members[0].Name)
	if diff := cmp.Diff(before, members[0].Predictor.Data(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("transplanted data mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownNamesLeaveStateUnchanged(t *testing.T) {
	regs, _ := mockRegressions(gaze.Point{X: 7, Y: 8})
	f := newFixture(t, WithRegressions(regs), WithRegression("mock"))
	s := f.session
	require.NoError(t, s.Begin(context.Background()))

	err := s.SetTracker("doesNotExist")
	require.ErrorIs(t, err, gaze.ErrUnknownTracker)
	var nf *registry.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "doesNotExist", nf.Name)

	require.Error(t, s.SetTracker("broken"))
	assert.Equal(t, "random", s.Tracker().Name())

	require.ErrorIs(t, s.SetRegression("doesNotExist"), gaze.ErrUnknownRegression)
	require.ErrorIs(t, s.AddRegression("doesNotExist"), gaze.ErrUnknownRegression)
	assert.Len(t, s.Regressions(), 1)

	pred, err := s.CurrentPrediction()
	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.Equal(t, 7.0, pred.X)
}

func TestSetTrackerSwaps(t *testing.T) {
	f := newFixture(t)
	s := f.session
	require.NoError(t, s.SetTracker("other"))
	assert.Equal(t, "other", s.Tracker().Name())
	assert.Equal(t, "other", s.Status().Tracker)
}

func TestEmptyEnsemble(t *testing.T) {
	f := newFixture(t, WithRegression(""))
	s := f.session
	require.NoError(t, s.Begin(context.Background()))
	assert.Empty(t, s.Regressions())

	_, err := s.CurrentPrediction()
	require.ErrorIs(t, err, gaze.ErrNoRegression)

	err = s.HandleClick(1, 1)
	require.ErrorIs(t, err, gaze.ErrNoRegression)

	var called bool
	var got *gaze.Prediction
	s.SetGazeListener(func(p *gaze.Prediction, _ time.Duration) { called, got = true, p })
	require.True(t, s.Tick(epoch))
	assert.True(t, called)
	assert.Nil(t, got)
	assert.Equal(t, scheduler.Running, s.State())

	require.NoError(t, s.AddRegression(regression.NameRidge))
	assert.Len(t, s.Regressions(), 1)
}

func TestPersistenceAcrossSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithSettings(map[string]any{"theme": "dark"}))
	s := f.session
	require.NoError(t, s.Begin(ctx))
	for i := range 5 {
		require.NoError(t, s.HandleClick(float64(i*10), float64(i*20)))
	}
	want := s.Regressions()[0].Predictor.Data()
	require.NoError(t, s.End(ctx))

	stored := f.store.Load(ctx)
	assert.Len(t, stored.Data, 5)
	assert.Equal(t, "dark", stored.Settings["theme"])

	g := newFixture(t, WithStore(f.store))
	require.NoError(t, g.session.Begin(ctx))
	got := g.session.Regressions()[0].Predictor.Data()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("reloaded data mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "dark", g.session.Settings()["theme"])
	assert.Equal(t, 5, g.session.Status().Samples)
}

func TestClearData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session
	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.HandleClick(1, 2))
	require.NoError(t, s.SaveData(ctx))
	require.Len(t, f.store.Load(ctx).Data, 1)

	require.NoError(t, s.ClearData(ctx))
	assert.Equal(t, store.DefaultState(), f.store.Load(ctx))
	assert.Zero(t, s.Status().Samples)
}

func TestStaticVideo(t *testing.T) {
	s, err := New(WithLogger(log.Discard()), WithTickSource(nil))
	require.NoError(t, err)
	require.ErrorIs(t, s.SetStaticVideo("clip.mp4"), ErrNoStaticOpener)

	var opened string
	src := &frameSource{}
	f := newFixture(t, WithStaticOpener(func(path string) (pipeline.FrameSource, error) {
		opened = path
		return src, nil
	}))
	require.NoError(t, f.session.SetStaticVideo("clip.mp4"))
	require.NoError(t, f.session.Begin(context.Background()))
	assert.Equal(t, "clip.mp4", opened)

	require.NoError(t, f.session.End(context.Background()))
	assert.EqualValues(t, 1, src.closed.Load())
	assert.Zero(t, f.source.closed.Load(), "live source never opened")
}

func TestTickSourceDrivesSession(t *testing.T) {
	manual := scheduler.NewManual()
	regs, _ := mockRegressions(gaze.Point{X: 1, Y: 1})
	f := newFixture(t, WithRegressions(regs), WithRegression("mock"), WithTickSource(manual.Source()))
	s := f.session

	ticks := make(chan *gaze.Prediction, 4)
	s.SetGazeListener(func(p *gaze.Prediction, _ time.Duration) { ticks <- p })

	require.NoError(t, s.Begin(context.Background()))
	require.True(t, manual.Fire(epoch, time.Second))

	select {
	case p := <-ticks:
		require.NotNil(t, p)
		assert.Equal(t, 1.0, p.X)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick delivered")
	}
	require.NoError(t, s.End(context.Background()))
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Save(context.Context, store.State) error { return errors.New("disk full") }

func TestEndStopsAndReleasesWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithStore(failingStore{store.NewMemoryStore()}))
	s := f.session
	require.NoError(t, s.Begin(ctx))

	err := s.End(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, scheduler.Stopped, s.State())
	assert.EqualValues(t, 1, f.source.closed.Load())

	require.NoError(t, s.End(ctx), "the final save runs once")
}

func TestRegressionsSnapshotDuringSwaps(t *testing.T) {
	f := newFixture(t)
	s := f.session
	require.NoError(t, s.Begin(context.Background()))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if n := len(s.Regressions()); n != 1 {
				t.Errorf("snapshot has %d members during a swap", n)
				return
			}
		}
	}()

	names := []string{regression.NameWeightedRidge, regression.NameRidge}
	for i := range 50 {
		require.NoError(t, s.SetRegression(names[i%2]))
	}
	close(done)
	wg.Wait()
}
