// gazer - webcam gaze estimation daemon with implicit click/move training
// Serves a dashboard and overlay stream; optionally accepts browser clients
// that stream their own webcam frames.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/teslashibe/go-gazer/internal/config"
	"github.com/teslashibe/go-gazer/internal/log"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/gazer"
	"github.com/teslashibe/go-gazer/pkg/pipeline"
	"github.com/teslashibe/go-gazer/pkg/protocol"
	"github.com/teslashibe/go-gazer/pkg/remote"
	"github.com/teslashibe/go-gazer/pkg/store"
	"github.com/teslashibe/go-gazer/pkg/tracker/cv"
	"github.com/teslashibe/go-gazer/pkg/web"
)

type options struct {
	camera      int
	video       string
	remote      bool
	port        int
	storeKind   string
	storePath   string
	slot        string
	tracker     string
	regression  string
	overlay     bool
	blink       string
	yunetModel  string
	faceCascade string
	eyeCascade  string
	logLevel    string
}

func main() {
	opts := parseFlags()
	log.Init(opts.logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		log.Error("gazer failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags; GAZER_* environment variables
// provide the defaults.
func parseFlags() options {
	cvDefaults := cv.DefaultConfig()
	var o options

	flag.IntVar(&o.camera, "camera", 0, "Camera device index")
	flag.StringVar(&o.video, "video", "", "Read frames from a video file instead of the camera")
	flag.BoolVar(&o.remote, "remote", false, "Accept browser clients on /ws/client instead of a local camera")
	flag.IntVar(&o.port, "port", config.Port(), "Dashboard port")
	flag.StringVar(&o.storeKind, "store", config.StoreKind(), "Persistence backend: json, sqlite, memory")
	flag.StringVar(&o.storePath, "store-path", config.StorePath(), "Directory for persisted training data")
	flag.StringVar(&o.slot, "slot", store.DefaultSlot, "Persisted record name")
	flag.StringVar(&o.tracker, "tracker", config.String("GAZER_TRACKER", "yunet"), "Eye tracker: yunet, haar, fixed")
	flag.StringVar(&o.regression, "regression", config.String("GAZER_REGRESSION", "interaction"), "Regression: interaction, weightedRidge")
	flag.BoolVar(&o.overlay, "overlay", false, "Stream smoothed prediction points to overlay viewers")
	flag.StringVar(&o.blink, "blink", pipeline.BlinkSuppress.String(), "Blink policy: suppress, suppress-training, forward")
	flag.StringVar(&o.yunetModel, "yunet-model", cvDefaults.YuNet.ModelPath, "YuNet ONNX model path")
	flag.StringVar(&o.faceCascade, "face-cascade", cvDefaults.Haar.FaceCascade, "Haar face cascade path")
	flag.StringVar(&o.eyeCascade, "eye-cascade", cvDefaults.Haar.EyeCascade, "Haar eye cascade path")
	flag.StringVar(&o.logLevel, "log-level", config.LogLevel(), "Log level: debug, info, warn, error")
	flag.Parse()
	return o
}

func run(ctx context.Context, o options) error {
	logger := log.L()

	blinkPolicy, err := pipeline.ParseBlinkPolicy(o.blink)
	if err != nil {
		return err
	}

	st, err := store.Open(o.storeKind, o.storePath, store.Options{Slot: o.slot, Logger: logger})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cvCfg := cv.DefaultConfig()
	cvCfg.YuNet.ModelPath = o.yunetModel
	cvCfg.Haar.FaceCascade = o.faceCascade
	cvCfg.Haar.EyeCascade = o.eyeCascade
	trackers := gazer.NewTrackerRegistry()
	cv.Register(trackers, cvCfg)

	// The gateway forwards pointer events to the session created below.
	var session *gazer.Session
	gateway := remote.New(remote.Config{
		OnClick: func(id string, x, y float64, _ time.Time) {
			if err := session.HandleClick(x, y); err != nil {
				logger.Warn("click not trained", "client", id, "error", err)
			}
		},
		OnMove: func(id string, x, y float64, _ time.Time) {
			if err := session.HandleMove(x, y); err != nil {
				logger.Warn("move not trained", "client", id, "error", err)
			}
		},
		Logger: logger,
	})

	var server *web.Server
	session, err = gazer.New(
		gazer.WithLogger(logger),
		gazer.WithStore(st),
		gazer.WithTrackers(trackers),
		gazer.WithTracker(o.tracker),
		gazer.WithRegression(o.regression),
		gazer.WithBlinkPolicy(blinkPolicy),
		gazer.WithSourceProvider(sourceProvider(o, gateway)),
		gazer.WithStaticOpener(openFile),
		gazer.WithOverlay(func(pt gaze.Point) { server.PublishSmoothed(pt) }),
	)
	if err != nil {
		return err
	}
	if !session.DetectCompatibility() {
		return fmt.Errorf("no frame source or tracker available")
	}
	if o.video != "" {
		if err := session.SetStaticVideo(o.video); err != nil {
			return err
		}
	}
	session.ShowPredictionPoints(o.overlay)

	server = web.NewServer(session, web.Config{Port: strconv.Itoa(o.port), Logger: logger})
	if o.remote {
		gateway.RegisterRoutes(server.App())
	}

	session.SetGazeListener(func(p *gaze.Prediction, elapsed time.Duration) {
		server.PublishGaze(p, elapsed)
		if o.remote && p != nil {
			if msg, err := protocol.NewGazeMessage(protocol.GazeData{X: p.X, Y: p.Y, ElapsedMs: elapsed.Milliseconds()}); err == nil {
				gateway.Broadcast(msg)
			}
		}
	})

	if err := session.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.End(endCtx); err != nil {
			logger.Error("end session", "error", err)
		}
	}()

	go publishStatus(ctx, server)

	logger.Info("gazer running",
		"port", o.port,
		"tracker", session.Tracker().Name(),
		"store", o.storeKind,
		"remote", o.remote)
	return server.Start(ctx)
}

func sourceProvider(o options, gateway *remote.Gateway) gazer.SourceProvider {
	return func(context.Context) (pipeline.FrameSource, error) {
		if o.remote {
			return gateway.Source(), nil
		}
		c, err := cv.OpenCamera(o.camera)
		if err != nil {
			return nil, err
		}
		log.Info("camera opened", "source", c.String())
		return c, nil
	}
}

func openFile(path string) (pipeline.FrameSource, error) {
	c, err := cv.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func publishStatus(ctx context.Context, server *web.Server) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			server.PublishStatus()
		}
	}
}
