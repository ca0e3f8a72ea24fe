package regression

import (
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-gazer/pkg/datawindow"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/tracker"
	"gonum.org/v1/gonum/mat"
)

const maxRidgeRetries = 5

type entry struct {
	sample gaze.TrainingSample
	vec    []float64
	at     time.Time
}

// Ridge is an online ridge regressor trained on clicks and a short trail of
// recent pointer moves.
type Ridge struct {
	mu       sync.RWMutex
	config   Config
	weighted bool
	clicks   *datawindow.Window[entry]
	trail    *datawindow.Window[entry]
}

// NewRidge creates an unweighted ridge regressor.
func NewRidge(cfg Config) *Ridge {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ridge{
		config: cfg,
		clicks: datawindow.New[entry](cfg.ClickWindow),
		trail:  datawindow.New[entry](cfg.TrailWindow),
	}
}

// NewWeightedRidge creates a ridge regressor that favours recent clicks.
// Click i of n (oldest first) is weighted by sqrt(1/(n-i)).
func NewWeightedRidge(cfg Config) *Ridge {
	r := NewRidge(cfg)
	r.weighted = true
	return r
}

// AddData stores a sample. Clicks and moves are kept in separate windows.
func (r *Ridge) AddData(f *gaze.EyeFeatures, label gaze.Label, kind gaze.EventKind) {
	if f == nil || f.Blink {
		return
	}
	vec := tracker.Vector(f, r.config.PatchW, r.config.PatchH)
	if vec == nil {
		return
	}

	e := entry{
		sample: gaze.TrainingSample{Features: f, Label: label, EventKind: kind},
		vec:    vec,
		at:     r.config.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case gaze.EventClick:
		r.clicks.Push(e)
	case gaze.EventMove:
		r.trail.Push(e)
	}
}

// SetData replaces the training set with samples, in order.
func (r *Ridge) SetData(samples []gaze.TrainingSample) {
	r.mu.Lock()
	r.clicks.Reset()
	r.trail.Reset()
	r.mu.Unlock()

	for _, s := range samples {
		r.AddData(s.Features, s.Label, s.EventKind)
	}
}

// Data exports retained clicks followed by retained moves.
func (r *Ridge) Data() []gaze.TrainingSample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]gaze.TrainingSample, 0, r.clicks.Len()+r.trail.Len())
	for _, e := range r.clicks.Data() {
		out = append(out, e.sample)
	}
	for _, e := range r.trail.Data() {
		out = append(out, e.sample)
	}
	return out
}

// Predict solves the ridge system over the current samples and applies it to f.
func (r *Ridge) Predict(f *gaze.EyeFeatures) (gaze.Point, bool) {
	if f == nil {
		return gaze.Point{}, false
	}
	vec := tracker.Vector(f, r.config.PatchW, r.config.PatchH)
	if vec == nil {
		return gaze.Point{}, false
	}

	r.mu.RLock()
	clicks := r.clicks.Data()
	trail := r.trail.Data()
	r.mu.RUnlock()

	if len(clicks) == 0 {
		return gaze.Point{}, false
	}

	cutoff := r.config.Now().Add(-r.config.TrailTime)
	rows := make([]entry, 0, len(clicks)+len(trail))
	weights := make([]float64, 0, cap(rows))
	for i, e := range clicks {
		rows = append(rows, e)
		w := 1.0
		if r.weighted {
			w = math.Sqrt(1 / float64(len(clicks)-i))
		}
		weights = append(weights, w)
	}
	for _, e := range trail {
		if e.at.Before(cutoff) {
			continue
		}
		rows = append(rows, e)
		weights = append(weights, 1)
	}

	n, p := len(rows), len(vec)
	x := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 2, nil)
	for i, e := range rows {
		if len(e.vec) != p {
			return gaze.Point{}, false
		}
		w := weights[i]
		for j, v := range e.vec {
			x.Set(i, j, v*w)
		}
		y.Set(i, 0, e.sample.Label[0]*w)
		y.Set(i, 1, e.sample.Label[1]*w)
	}

	beta, ok := ridge(x, y, r.config.Lambda)
	if !ok {
		return gaze.Point{}, false
	}

	in := mat.NewDense(1, p, vec)
	var out mat.Dense
	out.Mul(in, beta)
	return gaze.Point{X: math.Floor(out.At(0, 0)), Y: math.Floor(out.At(0, 1))}, true
}

// ridge solves min |Xβ - y|² + k|β|² as the least squares problem
// [X; √k·I]β = [y; 0], growing k tenfold while the system is singular.
func ridge(x, y *mat.Dense, k float64) (*mat.Dense, bool) {
	n, p := x.Dims()
	_, c := y.Dims()

	for attempt := 0; attempt <= maxRidgeRetries; attempt++ {
		a := mat.NewDense(n+p, p, nil)
		a.Slice(0, n, 0, p).(*mat.Dense).Copy(x)
		sk := math.Sqrt(k)
		for i := 0; i < p; i++ {
			a.Set(n+i, i, sk)
		}
		b := mat.NewDense(n+p, c, nil)
		b.Slice(0, n, 0, c).(*mat.Dense).Copy(y)

		var beta mat.Dense
		if err := beta.Solve(a, b); err == nil {
			return &beta, true
		}
		k *= 10
	}
	return nil, false
}

var _ Predictor = (*Ridge)(nil)
