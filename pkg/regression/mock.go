package regression

import (
	"sync"

	"github.com/teslashibe/go-gazer/pkg/gaze"
)

// Mock implements Predictor for testing.
type Mock struct {
	// PredictFunc is called when Predict is invoked.
	PredictFunc func(f *gaze.EyeFeatures) (gaze.Point, bool)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu      sync.Mutex
	samples []gaze.TrainingSample
	calls   []string
	closed  bool
}

// NewMock creates a mock that always predicts at.
func NewMock(at gaze.Point) *Mock {
	return &Mock{
		PredictFunc: func(*gaze.EyeFeatures) (gaze.Point, bool) { return at, true },
	}
}

// Predict calls PredictFunc and records the call.
func (m *Mock) Predict(f *gaze.EyeFeatures) (gaze.Point, bool) {
	m.record("Predict")
	if m.PredictFunc != nil {
		return m.PredictFunc(f)
	}
	return gaze.Point{}, false
}

// AddData appends the sample unless f is nil.
func (m *Mock) AddData(f *gaze.EyeFeatures, label gaze.Label, kind gaze.EventKind) {
	m.record("AddData")
	if f == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, gaze.TrainingSample{Features: f, Label: label, EventKind: kind})
}

// SetData replaces the stored samples.
func (m *Mock) SetData(samples []gaze.TrainingSample) {
	m.record("SetData")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append([]gaze.TrainingSample(nil), samples...)
}

// Data returns a copy of the stored samples.
func (m *Mock) Data() []gaze.TrainingSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gaze.TrainingSample(nil), m.samples...)
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.record("Close")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Calls returns the recorded method names.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

var _ Predictor = (*Mock)(nil)
