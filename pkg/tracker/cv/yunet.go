// Package cv provides OpenCV-backed trackers and frame sources.
package cv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/tracker"
	"gocv.io/x/gocv"
)

// YuNetConfig holds face landmark detector configuration.
type YuNetConfig struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.6)
	InputWidth       int     // Initial model input width
	InputHeight      int     // Initial model input height
}

// DefaultYuNetConfig returns production defaults.
func DefaultYuNetConfig() YuNetConfig {
	return YuNetConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.6,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// YuNet locates eyes from the landmarks of OpenCV's FaceDetectorYN.
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex // Protects inference
}

// NewYuNet loads the detector model.
func NewYuNet(cfg YuNetConfig) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &YuNet{detector: detector}, nil
}

// Name returns "yunet".
func (y *YuNet) Name() string { return "yunet" }

// Extract detects the best face and crops patches around its eye landmarks.
func (y *YuNet) Extract(frame gaze.Frame) (*gaze.EyeFeatures, error) {
	if frame.Image == nil {
		return nil, nil
	}

	img, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	y.mu.Lock()
	defer y.mu.Unlock()

	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	y.detector.Detect(img, &faces)

	// YuNet output format (15 columns):
	// 0-3: x, y, w, h
	// 4-7: right eye x,y then left eye x,y
	// 8-13: nose, mouth corners
	// 14: face score
	candidates := make([]tracker.Face, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		at := func(c int) int { return int(faces.GetFloatAt(r, c)) }
		x, yy, w, h := at(0), at(1), at(2), at(3)
		candidates = append(candidates, tracker.Face{
			Box:        image.Rect(x, yy, x+w, yy+h),
			EyeA:       image.Pt(at(4), at(5)),
			EyeB:       image.Pt(at(6), at(7)),
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}

	best := tracker.SelectBest(candidates)
	if best == nil {
		return nil, nil
	}
	a, b := tracker.EyeBoxes(*best)
	return tracker.Features(frame.Image, a, b), nil
}

// Close releases the detector resources.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.detector.Close()
	return nil
}

var _ tracker.Tracker = (*YuNet)(nil)
