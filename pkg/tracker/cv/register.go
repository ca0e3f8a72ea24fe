package cv

import (
	"github.com/teslashibe/go-gazer/pkg/registry"
	"github.com/teslashibe/go-gazer/pkg/tracker"
)

// Config groups the model paths of every OpenCV tracker.
type Config struct {
	YuNet YuNetConfig
	Haar  HaarConfig
}

// DefaultConfig returns default model locations.
func DefaultConfig() Config {
	return Config{YuNet: DefaultYuNetConfig(), Haar: DefaultHaarConfig()}
}

// Register adds the "yunet" and "haar" trackers. Models are loaded lazily
// when a tracker is selected, so a missing file only fails that selection.
func Register(r *registry.Registry[tracker.Tracker], cfg Config) {
	r.Register("yunet", func() (tracker.Tracker, error) { return NewYuNet(cfg.YuNet) })
	r.Register("haar", func() (tracker.Tracker, error) { return NewHaar(cfg.Haar) })
}
