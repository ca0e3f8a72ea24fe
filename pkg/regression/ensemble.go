package regression

import (
	"io"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-gazer/pkg/gaze"
)

// Member is a named predictor in an ensemble.
type Member struct {
	Name      string
	Predictor Predictor
}

// Ensemble is an ordered list of predictors queried together.
//
// The first member is the primary: its prediction is the headline result,
// its data seeds new members, and it is the one persisted.
type Ensemble struct {
	mu      sync.RWMutex
	members []Member
	logger  *slog.Logger
}

// NewEnsemble creates an empty ensemble.
func NewEnsemble(logger *slog.Logger) *Ensemble {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ensemble{logger: logger.With("component", "ensemble")}
}

// Len returns the number of members.
func (e *Ensemble) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.members)
}

// Members returns the members in registration order.
func (e *Ensemble) Members() []Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Member(nil), e.members...)
}

// Names returns member names in registration order.
func (e *Ensemble) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.members))
	for i, m := range e.members {
		names[i] = m.Name
	}
	return names
}

// Primary returns the first member.
func (e *Ensemble) Primary() (Member, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.members) == 0 {
		return Member{}, false
	}
	return e.members[0], true
}

// PredictAll returns one entry per member; nil where a member had no answer.
func (e *Ensemble) PredictAll(f *gaze.EyeFeatures) ([]*gaze.Point, error) {
	members := e.Members()
	if len(members) == 0 {
		return nil, gaze.ErrNoRegression
	}

	out := make([]*gaze.Point, len(members))
	for i, m := range members {
		if pt, ok := m.Predictor.Predict(f); ok {
			out[i] = &pt
		}
	}
	return out, nil
}

// PredictPrimary returns the primary member's prediction.
func (e *Ensemble) PredictPrimary(f *gaze.EyeFeatures) (*gaze.Point, error) {
	p, ok := e.Primary()
	if !ok {
		return nil, gaze.ErrNoRegression
	}
	if pt, ok := p.Predictor.Predict(f); ok {
		return &pt, nil
	}
	return nil, nil
}

// AddData trains every member on one sample.
func (e *Ensemble) AddData(f *gaze.EyeFeatures, label gaze.Label, kind gaze.EventKind) error {
	members := e.Members()
	if len(members) == 0 {
		return gaze.ErrNoRegression
	}
	for _, m := range members {
		m.Predictor.AddData(f, label, kind)
	}
	return nil
}

// Data exports the primary member's training set, or nil when empty.
func (e *Ensemble) Data() []gaze.TrainingSample {
	p, ok := e.Primary()
	if !ok {
		return nil
	}
	return p.Predictor.Data()
}

// Add appends p, seeded with the primary member's data.
func (e *Ensemble) Add(name string, p Predictor) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.members) > 0 {
		p.SetData(e.members[0].Predictor.Data())
	}
	e.members = append(e.members, Member{Name: name, Predictor: p})
	e.logger.Info("regression added", "name", name, "members", len(e.members))
}

// Replace swaps the whole ensemble for p. The primary's data, or fallback
// when the ensemble is empty, is transplanted before prior members are
// discarded.
func (e *Ensemble) Replace(name string, p Predictor, fallback []gaze.TrainingSample) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := fallback
	if len(e.members) > 0 {
		data = e.members[0].Predictor.Data()
	}
	p.SetData(data)

	old := e.members
	e.members = []Member{{Name: name, Predictor: p}}
	for _, m := range old {
		if c, ok := m.Predictor.(io.Closer); ok {
			if err := c.Close(); err != nil {
				e.logger.Warn("close regression", "name", m.Name, "error", err)
			}
		}
	}
	e.logger.Info("regression set", "name", name, "samples", len(data))
}

// SetData replaces every member's training set.
func (e *Ensemble) SetData(samples []gaze.TrainingSample) {
	for _, m := range e.Members() {
		m.Predictor.SetData(samples)
	}
}

// Clear empties every member's training set.
func (e *Ensemble) Clear() {
	e.SetData(nil)
}
