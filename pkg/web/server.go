// Package web serves the gazer dashboard: a small REST control surface and
// a websocket stream of gaze estimates for overlays.
package web

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/teslashibe/go-gazer/pkg/gazer"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/hub"
	"github.com/teslashibe/go-gazer/pkg/protocol"
)

// Controller is the session surface the dashboard drives.
// *gazer.Session implements it.
type Controller interface {
	Status() gazer.Status
	TrackerNames() []string
	RegressionNames() []string
	SetTracker(name string) error
	SetRegression(name string) error
	AddRegression(name string) error
	Pause()
	Resume()
	SaveData(ctx context.Context) error
	ClearData(ctx context.Context) error
	ShowPredictionPoints(show bool)
}

// Config configures the dashboard server.
type Config struct {
	Port      string // Listen port for Start (default "8190")
	StaticDir string // Served at / when set
	Logger    *slog.Logger
}

// Server is the web dashboard server.
type Server struct {
	app    *fiber.App
	config Config
	ctrl   Controller
	logger *slog.Logger

	gazeHub   *hub.Hub
	statusHub *hub.Hub
}

// NewServer creates a dashboard for ctrl.
func NewServer(ctrl Controller, cfg Config) *Server {
	if cfg.Port == "" {
		cfg.Port = "8190"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		config:    cfg,
		ctrl:      ctrl,
		logger:    cfg.Logger.With("component", "web"),
		gazeHub:   hub.New("gaze", cfg.Logger),
		statusHub: hub.New("status", cfg.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "gazer",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/trackers", s.handleTrackers)
	api.Get("/regressions", s.handleRegressions)
	api.Post("/tracker/:name", s.handleSetTracker)
	api.Post("/regression/:name", s.handleSetRegression)
	api.Post("/regression/:name/add", s.handleAddRegression)
	api.Post("/pause", s.handlePause)
	api.Post("/resume", s.handleResume)
	api.Post("/save", s.handleSave)
	api.Post("/clear", s.handleClear)
	api.Post("/overlay/:on", s.handleOverlay)

	app.Use("/ws", hub.UpgradeRequired)
	app.Get("/ws/gaze", s.gazeHub.Handler())
	app.Get("/ws/status", s.statusHub.Handler())

	s.app = app
	return s
}

// App exposes the fiber app so other components can mount routes.
func (s *Server) App() *fiber.App { return s.app }

// Start runs the hubs and serves on the configured port until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.config.Port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.gazeHub.Run(ctx)
	go s.statusHub.Run(ctx)
	go func() {
		<-ctx.Done()
		s.app.ShutdownWithTimeout(5 * time.Second)
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// PublishGaze streams one tick's prediction to overlay viewers. Nil
// predictions are skipped.
func (s *Server) PublishGaze(p *gaze.Prediction, elapsed time.Duration) {
	if p == nil {
		return
	}
	data := protocol.GazeData{X: p.X, Y: p.Y, ElapsedMs: elapsed.Milliseconds()}
	for _, pt := range p.All {
		if pt == nil {
			data.All = append(data.All, nil)
			continue
		}
		data.All = append(data.All, &protocol.PointData{X: pt.X, Y: pt.Y})
	}
	msg, err := protocol.NewGazeMessage(data)
	s.publish(s.gazeHub, msg, err)
}

// PublishSmoothed streams the overlay's smoothed point.
func (s *Server) PublishSmoothed(pt gaze.Point) {
	msg, err := protocol.NewGazeMessage(protocol.GazeData{X: pt.X, Y: pt.Y, Smoothed: true})
	s.publish(s.gazeHub, msg, err)
}

// PublishStatus streams the current session status.
func (s *Server) PublishStatus() {
	st := s.ctrl.Status()
	msg, err := protocol.NewStatusMessage(protocol.StatusData{
		State:       st.State,
		Ready:       st.Ready,
		Tracker:     st.Tracker,
		Regressions: st.Regressions,
		Samples:     st.Samples,
	})
	s.publish(s.statusHub, msg, err)
}

func (s *Server) publish(h *hub.Hub, msg *protocol.Message, err error) {
	if err == nil {
		err = h.BroadcastProtocol(msg)
	}
	if err != nil {
		s.logger.Warn("publish failed", "error", err)
	}
}

// Viewers returns the number of connected overlay viewers.
func (s *Server) Viewers() int { return s.gazeHub.ClientCount() }

// Shutdown stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
