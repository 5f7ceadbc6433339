// Package device is a websocket client that streams samples from a local
// source to a step server, the way a phone app would.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-stepcount/pkg/protocol"
	"github.com/teslashibe/go-stepcount/pkg/sensor"
	"github.com/teslashibe/go-stepcount/pkg/step"
)

var (
	// ErrNotConnected is returned when sending before Connect.
	ErrNotConnected = errors.New("device: not connected")

	// ErrNonFinite is returned for samples JSON cannot carry.
	ErrNonFinite = errors.New("device: sample has a non-finite component")
)

// Client streams samples to a server and tracks the reported count.
type Client struct {
	serverURL string
	deviceID  string
	batch     int
	logger    *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	count     atomic.Uint64
	sent      atomic.Uint64
	closed    atomic.Bool
	readDone  chan struct{}
	connected atomic.Bool

	// Callbacks
	OnSteps func(count uint64)
	OnError func(message string)
	OnPong  func(latency time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithBatch sends samples in batches of n.
func WithBatch(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batch = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the given server base URL
// (e.g. ws://localhost:8080).
func NewClient(serverURL, deviceID string, opts ...Option) *Client {
	c := &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		deviceID:  deviceID,
		batch:     1,
		logger:    slog.Default(),
		readDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("device", deviceID)
	return c
}

// Endpoint returns the websocket URL the client dials.
func (c *Client) Endpoint() (string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws/device"
	if c.deviceID != "" {
		u.Path += "/" + url.PathEscape(c.deviceID)
	}
	return u.String(), nil
}

// Connect dials the server and starts the reply reader.
func (c *Client) Connect(ctx context.Context) error {
	endpoint, err := c.Endpoint()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()
	c.connected.Store(true)

	go c.handleMessages()

	c.logger.Info("connected", "endpoint", endpoint)
	return nil
}

// handleMessages reads server replies until the connection closes.
func (c *Client) handleMessages() {
	defer close(c.readDone)
	defer c.connected.Store(false)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("connection lost", "error", err)
			}
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.logger.Debug("unparseable reply", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeSteps:
			steps, err := msg.GetStepsData()
			if err != nil {
				continue
			}
			c.count.Store(steps.Count)
			if c.OnSteps != nil {
				c.OnSteps(steps.Count)
			}

		case protocol.TypeError:
			e, err := msg.GetErrorData()
			if err != nil {
				continue
			}
			c.logger.Warn("server rejected message", "reason", e.Message)
			if c.OnError != nil {
				c.OnError(e.Message)
			}

		case protocol.TypePong:
			pong, err := msg.GetPongData()
			if err != nil {
				continue
			}
			if c.OnPong != nil {
				c.OnPong(time.Duration(pong.LatencyMs) * time.Millisecond)
			}
		}
	}
}

func (c *Client) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// SendSamples sends an ordered batch of samples.
func (c *Client) SendSamples(samples ...step.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, s := range samples {
		if !finite(s) {
			return ErrNonFinite
		}
	}

	var msg *protocol.Message
	var err error
	if len(samples) == 1 {
		msg, err = protocol.NewSampleMessage(samples[0])
	} else {
		msg, err = protocol.NewSamplesMessage(samples)
	}
	if err != nil {
		return err
	}

	if err := c.send(msg); err != nil {
		return err
	}
	c.sent.Add(uint64(len(samples)))
	return nil
}

// Reset asks the server to zero this device's count.
func (c *Client) Reset() error {
	msg, err := protocol.NewResetMessage()
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Ping sends a health check.
func (c *Client) Ping(id string) error {
	msg, err := protocol.NewPingMessage(id)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Stream starts src and forwards its samples until the source ends or ctx
// is cancelled. The source is stopped on return.
func (c *Client) Stream(ctx context.Context, src sensor.Source) error {
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s source: %w", src.Name(), err)
	}
	defer src.Stop()

	pending := make([]step.Sample, 0, c.batch)
	flush := func() error {
		err := c.SendSamples(pending...)
		pending = pending[:0]
		return err
	}

	for {
		s, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return flush()
		}
		if err != nil {
			return err
		}

		pending = append(pending, s)
		if len(pending) >= c.batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// Count returns the last count reported by the server.
func (c *Client) Count() uint64 {
	return c.count.Load()
}

// Sent returns the number of samples sent.
func (c *Client) Sent() uint64 {
	return c.sent.Load()
}

// Close closes the connection and waits for the reader to exit.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.wsMu.Lock()
	ws := c.ws
	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	c.wsMu.Unlock()

	if ws == nil {
		return nil
	}
	err := ws.Close()
	<-c.readDone
	return err
}

func finite(s step.Sample) bool {
	return !math.IsNaN(s.X) && !math.IsNaN(s.Y) && !math.IsNaN(s.Z) &&
		!math.IsInf(s.X, 0) && !math.IsInf(s.Y, 0) && !math.IsInf(s.Z, 0)
}
