package gaze

import "errors"

// Sentinel errors shared across the pipeline.
var (
	// ErrNoRegression is returned when the ensemble has no members.
	ErrNoRegression = errors.New("gaze: no regression module configured")

	// ErrUnknownTracker is returned when a tracker name is not registered.
	ErrUnknownTracker = errors.New("gaze: unknown tracker")

	// ErrUnknownRegression is returned when a regression name is not registered.
	ErrUnknownRegression = errors.New("gaze: unknown regression")
)
