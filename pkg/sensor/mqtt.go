package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/teslashibe/go-stepcount/pkg/protocol"
	"github.com/teslashibe/go-stepcount/pkg/step"
)

// MQTTSource subscribes to sample payloads published on an MQTT 5 broker.
// Payloads are decoded with protocol.DecodeSamples. Samples arriving while
// the stream is full are dropped and counted as overruns so the broker
// connection is never stalled.
type MQTTSource struct {
	cfg    Config
	logger *slog.Logger
	*stream

	clientMu sync.Mutex
	client   *paho.Client
	removeCb func()
}

// NewMQTTSource creates a new MQTT sample source.
// Call Start to connect and subscribe.
func NewMQTTSource(cfg Config, logger *slog.Logger) (*MQTTSource, error) {
	if cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address required")
	}
	if cfg.MQTT.Topic == "" {
		return nil, fmt.Errorf("mqtt topic required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "stepcount-" + uuid.NewString()
	}

	return &MQTTSource{
		cfg:    cfg,
		logger: logger.With("backend", "mqtt", "client_id", cfg.MQTT.ClientID),
		stream: newStream(cfg.Buffer),
	}, nil
}

// Start connects to the broker and subscribes to the sample topic.
func (m *MQTTSource) Start(ctx context.Context) error {
	started, err := m.begin()
	if err != nil || !started {
		return err
	}

	if err := m.connect(ctx); err != nil {
		m.Stop()
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-m.stopCh:
		}
	}()

	return nil
}

func (m *MQTTSource) connect(ctx context.Context) error {
	addr, err := brokerAddress(m.cfg.MQTT.Broker)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial broker %s: %w", addr, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		Conn:     conn,
		ClientID: m.cfg.MQTT.ClientID,
		OnClientError: func(err error) {
			m.logger.Warn("mqtt client error", "error", err)
			go m.Stop()
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.logger.Warn("mqtt server disconnected", "reason_code", d.ReasonCode)
			go m.Stop()
		},
	})

	removeCb := client.AddOnPublishReceived(m.onPublish)

	cp := &paho.Connect{
		ClientID:     m.cfg.MQTT.ClientID,
		CleanStart:   true,
		KeepAlive:    uint16(m.cfg.MQTT.KeepAlive.Seconds()),
		Username:     m.cfg.MQTT.Username,
		UsernameFlag: m.cfg.MQTT.Username != "",
		Password:     []byte(m.cfg.MQTT.Password),
		PasswordFlag: m.cfg.MQTT.Password != "",
	}

	if _, err := client.Connect(ctx, cp); err != nil {
		removeCb()
		conn.Close()
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic: m.cfg.MQTT.Topic,
			QoS:   m.cfg.MQTT.QoS,
		}},
	}); err != nil {
		removeCb()
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("failed to subscribe to %s: %w", m.cfg.MQTT.Topic, err)
	}

	m.clientMu.Lock()
	m.client = client
	m.removeCb = removeCb
	m.clientMu.Unlock()

	m.logger.Info("mqtt sensor subscribed",
		"broker", addr,
		"topic", m.cfg.MQTT.Topic,
		"qos", m.cfg.MQTT.QoS,
	)
	return nil
}

func (m *MQTTSource) onPublish(pr paho.PublishReceived) (bool, error) {
	samples, err := protocol.DecodeSamples(pr.Packet.Payload)
	if err != nil {
		m.logger.Debug("dropping undecodable payload",
			"topic", pr.Packet.Topic,
			"error", err,
		)
		return true, nil
	}

	for _, s := range samples {
		if !m.offer(s) {
			m.logger.Debug("mqtt sensor: buffer full, dropping sample")
		}
	}
	return true, nil
}

// Stop unsubscribes, disconnects and closes the stream.
func (m *MQTTSource) Stop() error {
	if !m.halt() {
		return nil
	}

	m.clientMu.Lock()
	client, removeCb := m.client, m.removeCb
	m.client, m.removeCb = nil, nil
	m.clientMu.Unlock()

	if removeCb != nil {
		removeCb()
	}
	if client != nil {
		if err := client.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
			m.logger.Debug("mqtt disconnect", "error", err)
		}
	}

	m.logger.Info("mqtt sensor stopped",
		"samples", m.samplesRead.Load(),
		"overruns", m.overruns.Load(),
	)
	return nil
}

// Read reads the next sample.
func (m *MQTTSource) Read(ctx context.Context) (step.Sample, error) {
	return m.read(ctx)
}

// Stream returns the sample channel.
func (m *MQTTSource) Stream() <-chan step.Sample {
	return m.ch
}

// Config returns the source configuration.
func (m *MQTTSource) Config() Config {
	return m.cfg
}

// Name returns "mqtt".
func (m *MQTTSource) Name() string {
	return string(BackendMQTT)
}

// Close releases resources.
func (m *MQTTSource) Close() error {
	if !m.markClosed() {
		return nil
	}
	return m.Stop()
}

// Stats returns source statistics.
func (m *MQTTSource) Stats() SourceStats {
	return m.stats(m.Name())
}

var _ SourceWithStats = (*MQTTSource)(nil)

// brokerAddress turns "tcp://host:port", "mqtt://host" or "host:port" into
// a dialable address.
func brokerAddress(broker string) (string, error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	u, err := url.Parse(broker)
	if err != nil {
		return "", fmt.Errorf("invalid broker address %q: %w", broker, err)
	}

	switch u.Scheme {
	case "tcp", "mqtt":
	default:
		return "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "1883")
	}
	return host, nil
}
