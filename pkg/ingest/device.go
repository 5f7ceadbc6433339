package ingest

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-stepcount/pkg/pedometer"
	"github.com/teslashibe/go-stepcount/pkg/protocol"
	"github.com/teslashibe/go-stepcount/pkg/sensor"
)

// Device is a connected phone or wearable streaming samples.
type Device struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	source    *sensor.PushSource
	pedometer *pedometer.Pedometer

	mu       sync.Mutex
	lastSeen time.Time
	writeMu  sync.Mutex
}

// Send writes a message to the device.
func (d *Device) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.Conn.WriteMessage(websocket.TextMessage, data)
}

// Count returns the device's step count.
func (d *Device) Count() uint64 {
	return d.pedometer.Count()
}

// Pedometer returns the device's pedometer.
func (d *Device) Pedometer() *pedometer.Pedometer {
	return d.pedometer
}

func (d *Device) touch() {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()
}

// LastSeen returns when the device last sent a message.
func (d *Device) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

// DeviceInfo contains info about a connected device.
type DeviceInfo struct {
	ID        string                       `json:"id"`
	Connected time.Time                    `json:"connected"`
	LastSeen  time.Time                    `json:"last_seen"`
	Steps     uint64                       `json:"steps"`
	Threshold float64                      `json:"threshold"`
	Source    sensor.SourceStats           `json:"source"`
	Delivery  *pedometer.SubscriptionStats `json:"delivery,omitempty"`
}

// Info returns a snapshot of the device state.
func (d *Device) Info() DeviceInfo {
	state := d.pedometer.Snapshot()
	info := DeviceInfo{
		ID:        d.ID,
		Connected: d.Connected,
		LastSeen:  d.LastSeen(),
		Steps:     state.Count,
		Threshold: state.Threshold,
		Source:    d.source.Stats(),
	}
	if sub := d.pedometer.Subscription(); sub != nil {
		stats := sub.Stats()
		info.Delivery = &stats
	}
	return info
}
