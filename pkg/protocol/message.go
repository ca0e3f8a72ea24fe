// Package protocol defines the WebSocket messages exchanged between browser
// clients, the gaze daemon and overlay viewers.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Daemon messages
	TypeFrame MessageType = "frame" // Webcam frame
	TypeClick MessageType = "click" // Pointer click (training label)
	TypeMove  MessageType = "move"  // Pointer move (training label)

	// Daemon → Client messages
	TypeGaze   MessageType = "gaze"   // Per-tick gaze estimate
	TypeStatus MessageType = "status" // Session status snapshot

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Time returns the message timestamp, or the zero time when unset.
func (m *Message) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Timestamp)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// FrameData contains a webcam frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg" or "png"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// PointerData is a click or move in screen pixels
type PointerData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointData is one ensemble member's estimate; nil entries mean no answer
type PointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GazeData is one tick's prediction
type GazeData struct {
	X         float64      `json:"x"`
	Y         float64      `json:"y"`
	All       []*PointData `json:"all,omitempty"`
	ElapsedMs int64        `json:"elapsed_ms"`
	Smoothed  bool         `json:"smoothed,omitempty"` // X/Y are the overlay average
}

// StatusData summarizes the session
type StatusData struct {
	State       string   `json:"state"`
	Ready       bool     `json:"ready"`
	Tracker     string   `json:"tracker"`
	Regressions []string `json:"regressions"`
	Samples     int      `json:"samples"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
