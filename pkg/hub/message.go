// Package hub fans gaze updates out to websocket viewers such as the
// browser overlay.
package hub

import "github.com/teslashibe/go-gazer/pkg/protocol"

// Kind is the websocket frame type of a message.
type Kind int

const (
	Text Kind = iota
	Binary
)

// Message is one queued websocket write.
type Message struct {
	Kind Kind
	Data []byte
}

// FromProtocol encodes a protocol message as a text frame.
func FromProtocol(m *protocol.Message) (Message, error) {
	data, err := m.Bytes()
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: Text, Data: data}, nil
}
