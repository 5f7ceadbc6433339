// Package protocol defines the message types exchanged between devices and
// the step counting server. The same JSON payloads are used on the device
// websocket and on MQTT sample topics.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-stepcount/pkg/step"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Device → Server messages
	TypeSample  MessageType = "sample"  // One accelerometer reading
	TypeSamples MessageType = "samples" // Ordered batch of readings
	TypeReset   MessageType = "reset"   // Reset the device's step count

	// Server → Device messages
	TypeSteps MessageType = "steps" // Step count update
	TypeError MessageType = "error" // Rejected message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
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

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Device → Server Message Types
// =============================================================================

// SampleData contains one accelerometer reading
type SampleData struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	TS int64   `json:"ts,omitempty"` // Unix milliseconds, 0 if unknown
}

// ErrMissingAxis is returned when a reading lacks x, y or z.
var ErrMissingAxis = errors.New("reading must have x, y and z")

// UnmarshalJSON decodes a reading, requiring all three axes.
func (d *SampleData) UnmarshalJSON(b []byte) error {
	var raw struct {
		X  *float64 `json:"x"`
		Y  *float64 `json:"y"`
		Z  *float64 `json:"z"`
		TS int64    `json:"ts"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.X == nil || raw.Y == nil || raw.Z == nil {
		return ErrMissingAxis
	}

	*d = SampleData{X: *raw.X, Y: *raw.Y, Z: *raw.Z, TS: raw.TS}
	return nil
}

// Sample converts the reading into a detector sample
func (d SampleData) Sample() step.Sample {
	s := step.Sample{X: d.X, Y: d.Y, Z: d.Z}
	if d.TS != 0 {
		s.Time = time.UnixMilli(d.TS)
	}
	return s
}

// FromSample converts a detector sample into wire form
func FromSample(s step.Sample) SampleData {
	d := SampleData{X: s.X, Y: s.Y, Z: s.Z}
	if !s.Time.IsZero() {
		d.TS = s.Time.UnixMilli()
	}
	return d
}

// SamplesData contains an ordered batch of readings
type SamplesData struct {
	Samples []SampleData `json:"samples"`
}

// =============================================================================
// Server → Device Message Types
// =============================================================================

// StepsData reports a device's step count
type StepsData struct {
	DeviceID string `json:"device_id,omitempty"`
	Count    uint64 `json:"count"`
}

// ErrorData describes a rejected message
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

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
