package tracker

import "image"

// Face is a detected face in pixel coordinates with its two eye centres.
type Face struct {
	Box        image.Rectangle
	EyeA, EyeB image.Point
	Confidence float64
}

// Area returns the bounding box area in pixels.
func (f Face) Area() float64 {
	return float64(f.Box.Dx() * f.Box.Dy())
}

// SelectBest picks the most likely subject from multiple faces.
// Priority: confidence * 0.7 + relative area * 0.3.
func SelectBest(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}
	if maxArea == 0 {
		maxArea = 1
	}

	bestScore := -1.0
	var best *Face
	for i := range faces {
		score := faces[i].Confidence*0.7 + (faces[i].Area()/maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}
	return best
}

// EyeBoxes returns patch rectangles centred on the eye landmarks.
// Patch width is a fifth of the face width with a 5:3 aspect ratio,
// matching the 10x6 feature grid downstream.
func EyeBoxes(f Face) (image.Rectangle, image.Rectangle) {
	w := f.Box.Dx() / 5
	if w < 5 {
		w = 5
	}
	h := w * 3 / 5
	box := func(c image.Point) image.Rectangle {
		return image.Rect(c.X-w/2, c.Y-h/2, c.X-w/2+w, c.Y-h/2+h)
	}
	return box(f.EyeA), box(f.EyeB)
}
