// Package ingest accepts sample streams from devices over websocket and
// counts steps per device.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-stepcount/pkg/pedometer"
	"github.com/teslashibe/go-stepcount/pkg/protocol"
	"github.com/teslashibe/go-stepcount/pkg/sensor"
	"github.com/teslashibe/go-stepcount/pkg/step"
)

// ErrDeviceNotConnected is returned when addressing an unknown device.
var ErrDeviceNotConnected = errors.New("ingest: device not connected")

// Config holds per-device detector settings.
type Config struct {
	// Threshold is the step threshold for each device's detector.
	Threshold float64 `yaml:"threshold" json:"threshold" toml:"threshold"`

	// Buffer is the sample stream capacity per device.
	Buffer int `yaml:"buffer" json:"buffer" toml:"buffer"`
}

// DefaultConfig returns the default ingest configuration.
func DefaultConfig() Config {
	return Config{
		Threshold: step.DefaultThreshold,
		Buffer:    64,
	}
}

// StepEvent is reported for every step a device makes.
type StepEvent struct {
	DeviceID string    `json:"device_id"`
	Count    uint64    `json:"count"`
	Time     time.Time `json:"time"`
}

// Hub manages websocket connections from devices.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	devices map[string]*Device

	onStep       func(StepEvent)
	onConnect    func(deviceID string)
	onDisconnect func(deviceID string)

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	samplesReceived  atomic.Uint64
	stepsDetected    atomic.Uint64
	rejected         atomic.Uint64
}

// NewHub creates a new device hub.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}

	return &Hub{
		cfg:     cfg,
		logger:  logger.With("component", "ingest"),
		devices: make(map[string]*Device),
	}
}

// OnStep sets the callback for step updates from any device.
func (h *Hub) OnStep(callback func(StepEvent)) {
	h.mu.Lock()
	h.onStep = callback
	h.mu.Unlock()
}

// OnConnect sets the callback for device connections.
func (h *Hub) OnConnect(callback func(deviceID string)) {
	h.mu.Lock()
	h.onConnect = callback
	h.mu.Unlock()
}

// OnDisconnect sets the callback for device disconnections.
func (h *Hub) OnDisconnect(callback func(deviceID string)) {
	h.mu.Lock()
	h.onDisconnect = callback
	h.mu.Unlock()
}

// RegisterRoutes registers the device websocket routes on a Fiber app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/device", websocket.New(h.handleDevice))
	app.Get("/ws/device/:id", websocket.New(h.handleDevice))
}

// handleDevice runs one device connection until it closes.
func (h *Hub) handleDevice(c *websocket.Conn) {
	deviceID := c.Params("id")
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	logger := h.logger.With("device", deviceID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	device, err := h.attach(ctx, deviceID, c)
	if err != nil {
		logger.Warn("device rejected", "error", err)
		if msg, merr := protocol.NewErrorMessage("%v", err); merr == nil {
			data, _ := msg.Bytes()
			c.WriteMessage(websocket.TextMessage, data)
		}
		return
	}
	defer h.detach(device)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("device read ended", "error", err)
			return
		}

		device.touch()
		h.messagesReceived.Add(1)
		h.handleMessage(ctx, device, data)
	}
}

// attach registers a device and subscribes its pedometer to its stream.
func (h *Hub) attach(ctx context.Context, deviceID string, c *websocket.Conn) (*Device, error) {
	srcCfg := sensor.DefaultConfig()
	srcCfg.Backend = sensor.BackendPush
	srcCfg.Buffer = h.cfg.Buffer

	now := time.Now()
	device := &Device{
		ID:        deviceID,
		Conn:      c,
		Connected: now,
		lastSeen:  now,
		source:    sensor.NewPushSource(srcCfg, h.logger.With("device", deviceID)),
	}
	device.pedometer = pedometer.New(
		step.New(step.WithThreshold(h.cfg.Threshold)),
		h.logger.With("device", deviceID),
		pedometer.WithOnStep(func(count uint64) {
			h.reportStep(device, count)
		}),
	)

	h.mu.Lock()
	if _, exists := h.devices[deviceID]; exists {
		h.mu.Unlock()
		device.source.Close()
		return nil, errors.New("device id already connected")
	}
	h.devices[deviceID] = device
	count := len(h.devices)
	connectCb := h.onConnect
	h.mu.Unlock()

	if err := device.pedometer.Start(ctx, device.source); err != nil {
		h.mu.Lock()
		delete(h.devices, deviceID)
		h.mu.Unlock()
		device.source.Close()
		return nil, err
	}

	h.logger.Info("device connected", "device", deviceID, "total", count)
	if connectCb != nil {
		connectCb(deviceID)
	}
	return device, nil
}

// detach tears down a device's subscription and forgets it.
func (h *Hub) detach(device *Device) {
	device.pedometer.Stop()
	device.source.Close()

	h.mu.Lock()
	delete(h.devices, device.ID)
	count := len(h.devices)
	disconnectCb := h.onDisconnect
	h.mu.Unlock()

	h.logger.Info("device disconnected",
		"device", device.ID,
		"steps", device.Count(),
		"remaining", count,
	)
	if disconnectCb != nil {
		disconnectCb(device.ID)
	}
}

// handleMessage processes an incoming message from a device.
func (h *Hub) handleMessage(ctx context.Context, device *Device, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.reject(device, "parse error: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeSample, protocol.TypeSamples:
		samples, err := msg.Samples()
		if err != nil {
			h.reject(device, "bad %s message: %v", msg.Type, err)
			return
		}
		for _, s := range samples {
			if err := device.source.Push(ctx, s); err != nil {
				h.logger.Warn("sample dropped", "device", device.ID, "error", err)
				return
			}
			h.samplesReceived.Add(1)
		}

	case protocol.TypeReset:
		h.resetDevice(device)

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id := ""
		if ping != nil {
			id = ping.ID
		}
		h.send(device, func() (*protocol.Message, error) {
			return protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		})

	default:
		h.reject(device, "unsupported message type %q", msg.Type)
	}
}

func (h *Hub) reportStep(device *Device, count uint64) {
	h.stepsDetected.Add(1)

	h.send(device, func() (*protocol.Message, error) {
		return protocol.NewStepsMessage(device.ID, count)
	})

	h.mu.RLock()
	stepCb := h.onStep
	h.mu.RUnlock()
	if stepCb != nil {
		stepCb(StepEvent{DeviceID: device.ID, Count: count, Time: time.Now()})
	}
}

func (h *Hub) resetDevice(device *Device) {
	device.pedometer.Reset()

	h.send(device, func() (*protocol.Message, error) {
		return protocol.NewStepsMessage(device.ID, 0)
	})

	h.mu.RLock()
	stepCb := h.onStep
	h.mu.RUnlock()
	if stepCb != nil {
		stepCb(StepEvent{DeviceID: device.ID, Count: 0, Time: time.Now()})
	}
}

func (h *Hub) reject(device *Device, format string, args ...any) {
	h.rejected.Add(1)
	h.logger.Debug("message rejected", "device", device.ID, "reason", format)
	h.send(device, func() (*protocol.Message, error) {
		return protocol.NewErrorMessage(format, args...)
	})
}

func (h *Hub) send(device *Device, build func() (*protocol.Message, error)) {
	msg, err := build()
	if err != nil {
		h.logger.Error("failed to build message", "device", device.ID, "error", err)
		return
	}
	h.messagesSent.Add(1)
	if err := device.Send(msg); err != nil {
		h.logger.Debug("send failed", "device", device.ID, "error", err)
	}
}

// Reset zeroes a connected device's step count and notifies the device.
func (h *Hub) Reset(deviceID string) error {
	device := h.GetDevice(deviceID)
	if device == nil {
		return ErrDeviceNotConnected
	}
	h.resetDevice(device)
	return nil
}

// GetDevice returns a device by ID, or nil.
func (h *Hub) GetDevice(deviceID string) *Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[deviceID]
}

// GetDevices returns all connected devices.
func (h *Hub) GetDevices() []*Device {
	h.mu.RLock()
	defer h.mu.RUnlock()

	devices := make([]*Device, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	return devices
}

// DeviceCount returns the number of connected devices.
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// GetDeviceInfos returns info about all connected devices.
func (h *Hub) GetDeviceInfos() []DeviceInfo {
	devices := h.GetDevices()
	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, d.Info())
	}
	return infos
}

// Stats contains hub statistics.
type Stats struct {
	DeviceCount      int    `json:"device_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	SamplesReceived  uint64 `json:"samples_received"`
	StepsDetected    uint64 `json:"steps_detected"`
	Rejected         uint64 `json:"rejected"`
}

// GetStats returns hub statistics.
func (h *Hub) GetStats() Stats {
	return Stats{
		DeviceCount:      h.DeviceCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		SamplesReceived:  h.samplesReceived.Load(),
		StepsDetected:    h.stepsDetected.Load(),
		Rejected:         h.rejected.Load(),
	}
}
