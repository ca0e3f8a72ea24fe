// Package remote accepts browser clients that stream webcam frames and
// pointer events over a websocket and receive gaze estimates back.
package remote

import (
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-gazer/pkg/protocol"
)

// ErrNotConnected is returned when sending to an unknown client.
var ErrNotConnected = errors.New("remote: client not connected")

// PointerFunc receives a click or move from a client. at is the client's
// timestamp when it sent one, otherwise the receive time. Client clocks are
// not trusted, so at is informational only.
type PointerFunc func(clientID string, x, y float64, at time.Time)

// Config configures a Gateway.
type Config struct {
	OnClick PointerFunc
	OnMove  PointerFunc
	Logger  *slog.Logger
}

// Conn is one connected browser client.
type Conn struct {
	ID        string
	Connected time.Time

	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
	last atomic.Int64
}

// LastSeen returns when the client last sent anything.
func (c *Conn) LastSeen() time.Time {
	return time.UnixMilli(c.last.Load())
}

// Send writes msg to the client.
func (c *Conn) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Gateway manages remote client connections. Frames from every client feed
// a single Source, so the newest frame wins.
type Gateway struct {
	cfg    Config
	logger *slog.Logger
	source *Source

	mu      sync.RWMutex
	clients map[string]*Conn

	received atomic.Uint64
	sent     atomic.Uint64
	frames   atomic.Uint64
	badFrame atomic.Uint64
}

// New creates a gateway.
func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:     cfg,
		logger:  logger.With("component", "remote"),
		source:  NewSource(),
		clients: make(map[string]*Conn),
	}
}

// Source returns the frame source fed by connected clients.
func (g *Gateway) Source() *Source { return g.source }

// RegisterRoutes mounts /ws/client and /ws/client/:id on app.
func (g *Gateway) RegisterRoutes(app fiber.Router) {
	app.Use("/ws/client", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/client", websocket.New(g.handle))
	app.Get("/ws/client/:id", websocket.New(g.handle))
}

func (g *Gateway) handle(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	conn := &Conn{ID: id, Connected: time.Now(), conn: c}
	conn.last.Store(conn.Connected.UnixMilli())

	g.mu.Lock()
	g.clients[id] = conn
	n := len(g.clients)
	g.mu.Unlock()
	g.logger.Info("client connected", "client", id, "total", n)

	defer func() {
		g.mu.Lock()
		if g.clients[id] == conn {
			delete(g.clients, id)
		}
		n := len(g.clients)
		g.mu.Unlock()
		g.logger.Info("client disconnected", "client", id, "total", n)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			g.logger.Debug("read ended", "client", id, "error", err)
			return
		}
		conn.last.Store(time.Now().UnixMilli())
		g.received.Add(1)
		g.dispatch(conn, data)
	}
}

func (g *Gateway) dispatch(conn *Conn, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		g.logger.Warn("bad message", "client", conn.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		frame, err := msg.GetFrameData()
		if err != nil {
			g.badFrame.Add(1)
			return
		}
		img, err := frame.DecodeImage()
		if err != nil {
			g.badFrame.Add(1)
			g.logger.Debug("undecodable frame", "client", conn.ID, "error", err)
			return
		}
		g.frames.Add(1)
		g.source.Put(img)

	case protocol.TypeClick, protocol.TypeMove:
		p, err := msg.GetPointerData()
		if err != nil {
			return
		}
		at := msg.Time()
		if at.IsZero() {
			at = time.Now()
		}
		cb := g.cfg.OnMove
		if msg.Type == protocol.TypeClick {
			cb = g.cfg.OnClick
		}
		if cb != nil {
			cb(conn.ID, p.X, p.Y, at)
		}

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		pingID := ""
		if ping != nil {
			pingID = ping.ID
		}
		pong, err := protocol.NewPongMessage(pingID, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			g.send(conn, pong)
		}
	}
}

func (g *Gateway) send(conn *Conn, msg *protocol.Message) error {
	g.sent.Add(1)
	return conn.Send(msg)
}

// SendTo sends msg to one client.
func (g *Gateway) SendTo(clientID string, msg *protocol.Message) error {
	g.mu.RLock()
	conn, ok := g.clients[clientID]
	g.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	return g.send(conn, msg)
}

// Broadcast sends msg to every client, logging individual failures.
func (g *Gateway) Broadcast(msg *protocol.Message) {
	for _, conn := range g.Clients() {
		if err := g.send(conn, msg); err != nil {
			g.logger.Debug("broadcast failed", "client", conn.ID, "error", err)
		}
	}
}

// Clients returns a snapshot of connected clients.
func (g *Gateway) Clients() []*Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Conn, 0, len(g.clients))
	for _, c := range g.clients {
		out = append(out, c)
	}
	return out
}

// ClientCount returns the number of connected clients.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Stats contains gateway counters.
type Stats struct {
	Clients   int    `json:"clients"`
	Received  uint64 `json:"messages_received"`
	Sent      uint64 `json:"messages_sent"`
	Frames    uint64 `json:"frames_received"`
	BadFrames uint64 `json:"frames_rejected"`
}

// Stats returns the gateway counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Clients:   g.ClientCount(),
		Received:  g.received.Load(),
		Sent:      g.sent.Load(),
		Frames:    g.frames.Load(),
		BadFrames: g.badFrame.Load(),
	}
}

// Source holds the most recent frame received from any client.
type Source struct {
	mu    sync.RWMutex
	frame image.Image
	at    time.Time
}

// ErrNoFrame is returned before any client has sent a frame.
var ErrNoFrame = errors.New("remote: no frame received yet")

// NewSource creates an empty source.
func NewSource() *Source { return &Source{} }

// Put replaces the current frame.
func (s *Source) Put(img image.Image) {
	s.mu.Lock()
	s.frame = img
	s.at = time.Now()
	s.mu.Unlock()
}

// Frame returns the latest frame.
func (s *Source) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}

// Updated returns when the latest frame arrived.
func (s *Source) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.at
}

// Close drops the held frame.
func (s *Source) Close() error {
	s.mu.Lock()
	s.frame = nil
	s.mu.Unlock()
	return nil
}
