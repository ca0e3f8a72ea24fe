package cv

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/tracker"
	"gocv.io/x/gocv"
)

// HaarConfig points at the OpenCV cascade files.
type HaarConfig struct {
	FaceCascade string
	EyeCascade  string
}

// DefaultHaarConfig uses the cascades shipped with OpenCV.
func DefaultHaarConfig() HaarConfig {
	return HaarConfig{
		FaceCascade: "models/haarcascade_frontalface_default.xml",
		EyeCascade:  "models/haarcascade_eye.xml",
	}
}

// Haar finds the largest face and then the two largest eyes in its upper half.
type Haar struct {
	face gocv.CascadeClassifier
	eye  gocv.CascadeClassifier
	mu   sync.Mutex
}

// NewHaar loads both cascades.
func NewHaar(cfg HaarConfig) (*Haar, error) {
	face := gocv.NewCascadeClassifier()
	if !face.Load(cfg.FaceCascade) {
		face.Close()
		return nil, fmt.Errorf("load face cascade: %s", cfg.FaceCascade)
	}
	eye := gocv.NewCascadeClassifier()
	if !eye.Load(cfg.EyeCascade) {
		face.Close()
		eye.Close()
		return nil, fmt.Errorf("load eye cascade: %s", cfg.EyeCascade)
	}
	return &Haar{face: face, eye: eye}, nil
}

// Name returns "haar".
func (h *Haar) Name() string { return "haar" }

// Extract runs face then eye detection.
func (h *Haar) Extract(frame gaze.Frame) (*gaze.EyeFeatures, error) {
	if frame.Image == nil {
		return nil, nil
	}

	img, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	h.mu.Lock()
	defer h.mu.Unlock()

	faces := h.face.DetectMultiScale(gray)
	if len(faces) == 0 {
		return nil, nil
	}
	sortByArea(faces)
	face := faces[0]

	upper := image.Rect(face.Min.X, face.Min.Y, face.Max.X, face.Min.Y+face.Dy()/2)
	region := gray.Region(upper)
	defer region.Close()

	eyes := h.eye.DetectMultiScale(region)
	if len(eyes) < 2 {
		return nil, nil
	}
	sortByArea(eyes)

	a := eyes[0].Add(upper.Min)
	b := eyes[1].Add(upper.Min)
	return tracker.Features(frame.Image, a, b), nil
}

// Close releases both cascades.
func (h *Haar) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.face.Close()
	h.eye.Close()
	return nil
}

func sortByArea(rs []image.Rectangle) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Dx()*rs[i].Dy() > rs[j].Dx()*rs[j].Dy()
	})
}

var _ tracker.Tracker = (*Haar)(nil)
