// Package store persists the session settings and the primary predictor's
// training data between sessions.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-gazer/pkg/gaze"
)

// DefaultSlot is the record name used when none is configured.
const DefaultSlot = "webgazerGlobalData"

const currentVersion = 1

// State is the persisted record: opaque settings plus training samples.
type State struct {
	Settings map[string]any        `json:"settings"`
	Data     []gaze.TrainingSample `json:"data"`
}

// DefaultState returns the empty state {settings: {}, data: []}.
func DefaultState() State {
	return State{Settings: map[string]any{}, Data: []gaze.TrainingSample{}}
}

// Store defines persistence operations.
type Store interface {
	// Load returns the saved state, or DefaultState when the record is
	// missing or unreadable. It never fails.
	Load(ctx context.Context) State

	// Save writes the state as one atomic record.
	Save(ctx context.Context, s State) error

	// Clear erases the record.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Options configure every store implementation.
type Options struct {
	Slot    string       // Record name (default DefaultSlot)
	Profile string       // Installation ID written with each record (default: random UUID)
	Logger  *slog.Logger // Default slog.Default()
}

func (o Options) withDefaults() Options {
	if o.Slot == "" {
		o.Slot = DefaultSlot
	}
	if o.Profile == "" {
		o.Profile = uuid.New().String()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// record is the envelope written to disk or the database.
type record struct {
	Version   int                   `json:"version"`
	UpdatedAt string                `json:"updated_at"`
	Profile   string                `json:"profile"`
	Settings  map[string]any        `json:"settings"`
	Data      []gaze.TrainingSample `json:"data"`
}

func encode(s State, profile string) ([]byte, error) {
	rec := record{
		Version:   currentVersion,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Profile:   profile,
		Settings:  s.Settings,
		Data:      s.Data,
	}
	if rec.Settings == nil {
		rec.Settings = map[string]any{}
	}
	if rec.Data == nil {
		rec.Data = []gaze.TrainingSample{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

func decode(data []byte) (State, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return DefaultState(), fmt.Errorf("parse state: %w", err)
	}
	if rec.Version > currentVersion {
		return DefaultState(), fmt.Errorf("unsupported state version %d", rec.Version)
	}
	s := State{Settings: rec.Settings, Data: rec.Data}
	if s.Settings == nil {
		s.Settings = map[string]any{}
	}
	if s.Data == nil {
		s.Data = []gaze.TrainingSample{}
	}
	return s, nil
}
