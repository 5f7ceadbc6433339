package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/teslashibe/go-stepcount/pkg/step"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewSampleMessage creates a single-sample message
func NewSampleMessage(s step.Sample) (*Message, error) {
	return NewMessage(TypeSample, FromSample(s))
}

// NewSamplesMessage creates a batch message preserving sample order
func NewSamplesMessage(samples []step.Sample) (*Message, error) {
	data := SamplesData{Samples: make([]SampleData, len(samples))}
	for i, s := range samples {
		data.Samples[i] = FromSample(s)
	}
	return NewMessage(TypeSamples, data)
}

// NewResetMessage creates a reset request
func NewResetMessage() (*Message, error) {
	return NewMessage(TypeReset, nil)
}

// NewStepsMessage creates a step count update
func NewStepsMessage(deviceID string, count uint64) (*Message, error) {
	return NewMessage(TypeSteps, StepsData{
		DeviceID: deviceID,
		Count:    count,
	})
}

// NewErrorMessage creates an error reply
func NewErrorMessage(format string, args ...any) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		Message: fmt.Sprintf(format, args...),
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID: id,
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetSampleData extracts a single sample from a message
func (m *Message) GetSampleData() (*SampleData, error) {
	var data SampleData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSamplesData extracts a sample batch from a message
func (m *Message) GetSamplesData() (*SamplesData, error) {
	var data SamplesData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Samples returns the detector samples carried by a sample or samples message.
func (m *Message) Samples() ([]step.Sample, error) {
	switch m.Type {
	case TypeSample, TypeSamples:
		if len(m.Data) == 0 {
			return nil, fmt.Errorf("%s message has no data", m.Type)
		}
	}

	switch m.Type {
	case TypeSample:
		data, err := m.GetSampleData()
		if err != nil {
			return nil, err
		}
		return []step.Sample{data.Sample()}, nil
	case TypeSamples:
		data, err := m.GetSamplesData()
		if err != nil {
			return nil, err
		}
		out := make([]step.Sample, len(data.Samples))
		for i, d := range data.Samples {
			out[i] = d.Sample()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("message type %q carries no samples", m.Type)
	}
}

// GetStepsData extracts a step count update from a message
func (m *Message) GetStepsData() (*StepsData, error) {
	var data StepsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error details from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeSamples decodes a raw payload as published on MQTT sample topics.
// Accepted forms: a bare reading object, an array of readings, or a full
// sample/samples message.
func DecodeSamples(payload []byte) ([]step.Sample, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if trimmed[0] == '[' {
		var batch []SampleData
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode sample batch: %w", err)
		}
		out := make([]step.Sample, len(batch))
		for i, d := range batch {
			out[i] = d.Sample()
		}
		return out, nil
	}

	var probe struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode sample: %w", err)
	}
	if probe.Type != "" {
		msg, err := ParseMessage(trimmed)
		if err != nil {
			return nil, err
		}
		return msg.Samples()
	}

	var d SampleData
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, fmt.Errorf("failed to decode sample: %w", err)
	}
	return []step.Sample{d.Sample()}, nil
}
