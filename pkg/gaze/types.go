// Package gaze defines the data that flows through the gaze pipeline:
// frames, eye patches, training samples and predictions.
package gaze

import (
	"image"
	"math"
)

// Frame is the painted scratch canvas handed to a tracker.
type Frame struct {
	Image  *image.RGBA
	Width  int
	Height int
}

// EyePatch is a grayscale crop of one eye, row-major, positioned in
// canvas coordinates.
type EyePatch struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"pix"`
}

// Valid reports whether the patch dimensions match its pixel buffer.
func (p EyePatch) Valid() bool {
	return p.Width > 0 && p.Height > 0 && len(p.Pix) == p.Width*p.Height
}

// At returns the gray value at (x, y) within the patch.
func (p EyePatch) At(x, y int) byte {
	return p.Pix[y*p.Width+x]
}

// EyeFeatures is what a tracker extracts from one frame.
// Blink is set by the blink detector once the features have been annotated.
type EyeFeatures struct {
	Left  EyePatch `json:"left"`
	Right EyePatch `json:"right"`
	Blink bool     `json:"blink"`
}

// Clone returns a deep copy so annotation never aliases tracker buffers.
func (f *EyeFeatures) Clone() *EyeFeatures {
	if f == nil {
		return nil
	}
	c := *f
	c.Left.Pix = append([]byte(nil), f.Left.Pix...)
	c.Right.Pix = append([]byte(nil), f.Right.Pix...)
	return &c
}

// Label is a screen coordinate, serialized as [x, y].
type Label [2]float64

// EventKind distinguishes click and move training samples.
type EventKind string

const (
	EventClick EventKind = "click"
	EventMove  EventKind = "move"
)

// EventKinds lists the supported interaction event types in order.
func EventKinds() []EventKind {
	return []EventKind{EventClick, EventMove}
}

// TrainingSample is one (features, label, kind) triple kept by a predictor.
type TrainingSample struct {
	Features  *EyeFeatures `json:"features"`
	Label     Label        `json:"label"`
	EventKind EventKind    `json:"eventKind"`
}

// Point is a position in screen space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Prediction is the output of one tick. All holds one entry per ensemble
// member in member order; a nil entry means that member had no answer.
type Prediction struct {
	X   float64  `json:"x"`
	Y   float64  `json:"y"`
	All []*Point `json:"all"`
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Bound clamps pt into [0, screen.Width] x [0, screen.Height].
// A zero screen size leaves the point unclamped.
func Bound(pt Point, screen Size) Point {
	if screen.Width <= 0 || screen.Height <= 0 {
		return pt
	}
	pt.X = math.Max(0, math.Min(pt.X, float64(screen.Width)))
	pt.Y = math.Max(0, math.Min(pt.Y, float64(screen.Height)))
	return pt
}
