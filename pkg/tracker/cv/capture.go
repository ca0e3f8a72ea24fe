package cv

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when the device produced no frame.
var ErrNoFrame = errors.New("cv: no frame available")

// Capture reads frames from a camera device or a video file.
// Video files loop so a static recording can drive a long session.
type Capture struct {
	mu    sync.Mutex
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	file  bool
	label string
}

// OpenCamera opens a capture device by index.
func OpenCamera(device int) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	return &Capture{vc: vc, mat: gocv.NewMat(), label: fmt.Sprintf("camera:%d", device)}, nil
}

// OpenFile opens a video file that is replayed from the start on EOF.
func OpenFile(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	return &Capture{vc: vc, mat: gocv.NewMat(), file: true, label: "file:" + path}, nil
}

// String names the source for logs.
func (c *Capture) String() string { return c.label }

// Frame grabs the next frame.
func (c *Capture) Frame() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		if !c.file {
			return nil, ErrNoFrame
		}
		c.vc.Set(gocv.VideoCapturePosFrames, 0)
		if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
			return nil, ErrNoFrame
		}
	}
	return c.mat.ToImage()
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mat.Close()
	return c.vc.Close()
}
