// Package web serves the step dashboard: device ingest, REST status and a
// live step broadcast.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-stepcount/pkg/hub"
	"github.com/teslashibe/go-stepcount/pkg/ingest"
)

const maxEvents = 500

// Config holds dashboard server settings.
type Config struct {
	// Port is the HTTP listen port.
	Port string `yaml:"port" json:"port" toml:"port"`

	// StaticDir serves dashboard assets from / when set.
	StaticDir string `yaml:"static_dir" json:"static_dir" toml:"static_dir"`

	// AccessLog enables per-request logging.
	AccessLog bool `yaml:"access_log" json:"access_log" toml:"access_log"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Port: "8080",
	}
}

// StepUpdate is broadcast to dashboard clients on every count change.
type StepUpdate struct {
	Time     string `json:"time"`
	DeviceID string `json:"device_id"`
	Count    uint64 `json:"count"`
}

// Server is the dashboard server.
type Server struct {
	app     *fiber.App
	cfg     Config
	logger  *slog.Logger
	started time.Time

	devices  *ingest.Hub
	stepsHub *hub.Hub

	// Latest count per source, including local pedometers
	counts   map[string]uint64
	events   []StepUpdate
	eventsMu sync.RWMutex
}

// NewServer creates a dashboard server around a device hub.
func NewServer(cfg Config, devices *ingest.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == "" {
		cfg.Port = DefaultConfig().Port
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger.With("component", "web"),
		started:  time.Now(),
		devices:  devices,
		stepsHub: hub.New("steps", logger),
		counts:   make(map[string]uint64),
		events:   make([]StepUpdate, 0, maxEvents),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Step Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.AccessLog {
		app.Use(fiberlog.New())
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Get("/counts", s.handleCounts)

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	// Device ingest
	devices.RegisterRoutes(app)
	devices.RegisterAPIRoutes(api)
	devices.OnStep(func(ev ingest.StepEvent) {
		s.PublishStep(ev.DeviceID, ev.Count)
	})
	devices.OnDisconnect(func(deviceID string) {
		s.eventsMu.Lock()
		delete(s.counts, deviceID)
		s.eventsMu.Unlock()
	})

	// Dashboard broadcast
	app.Use("/ws/steps", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/steps", websocket.New(s.handleStepsWS))

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.stepsHub.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown error", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "url", "http://localhost:"+s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// PublishStep records a count update and broadcasts it to dashboard
// clients. Local pedometers report through here too.
func (s *Server) PublishStep(sourceID string, count uint64) {
	update := StepUpdate{
		Time:     time.Now().Format("15:04:05.000"),
		DeviceID: sourceID,
		Count:    count,
	}

	s.eventsMu.Lock()
	s.counts[sourceID] = count
	s.events = append(s.events, update)
	if len(s.events) > maxEvents {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	if err := s.stepsHub.BroadcastJSON(update); err != nil {
		s.logger.Error("broadcast failed", "error", err)
	}
}

// StepsHub returns the broadcast hub for step updates.
func (s *Server) StepsHub() *hub.Hub {
	return s.stepsHub
}
