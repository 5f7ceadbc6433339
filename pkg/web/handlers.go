package web

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-stepcount/pkg/hub"
	"github.com/teslashibe/go-stepcount/pkg/ingest"
)

// Status is the dashboard overview.
type Status struct {
	Uptime     string            `json:"uptime"`
	Devices    int               `json:"devices"`
	TotalSteps uint64            `json:"total_steps"`
	Counts     map[string]uint64 `json:"counts"`
	Ingest     ingest.Stats      `json:"ingest"`
	Broadcast  hub.Stats         `json:"broadcast"`
}

// handleStatus returns the current overview
func (s *Server) handleStatus(c *fiber.Ctx) error {
	counts := s.snapshotCounts()

	var total uint64
	for _, n := range counts {
		total += n
	}

	return c.JSON(Status{
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Devices:    s.devices.DeviceCount(),
		TotalSteps: total,
		Counts:     counts,
		Ingest:     s.devices.GetStats(),
		Broadcast:  s.stepsHub.GetStats(),
	})
}

// handleEvents returns recent step updates
func (s *Server) handleEvents(c *fiber.Ctx) error {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	return c.JSON(s.events)
}

// handleCounts returns the latest count per source
func (s *Server) handleCounts(c *fiber.Ctx) error {
	return c.JSON(s.snapshotCounts())
}

func (s *Server) snapshotCounts() map[string]uint64 {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()

	counts := make(map[string]uint64, len(s.counts))
	for id, n := range s.counts {
		counts[id] = n
	}
	return counts
}

// handleStepsWS streams step updates, starting with the current counts.
// The client registers before the snapshot is taken so no update falls
// between the two; broadcasts queue until Run starts the write pump.
func (s *Server) handleStepsWS(c *websocket.Conn) {
	client := hub.NewClient(s.stepsHub, c)
	if client == nil {
		return
	}

	for id, n := range s.snapshotCounts() {
		if err := c.WriteJSON(StepUpdate{
			Time:     time.Now().Format("15:04:05.000"),
			DeviceID: id,
			Count:    n,
		}); err != nil {
			break
		}
	}

	client.Run()
}

// handleHealth is the liveness probe
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"devices": s.devices.DeviceCount(),
	})
}

// handleMetrics exposes counters in Prometheus text format
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	ingestStats := s.devices.GetStats()
	hubStats := s.stepsHub.GetStats()

	return c.SendString(fmt.Sprintf(`# HELP stepcount_devices Connected device count
# TYPE stepcount_devices gauge
stepcount_devices %d

# HELP stepcount_samples_received Total samples received from devices
# TYPE stepcount_samples_received counter
stepcount_samples_received %d

# HELP stepcount_steps_detected Total steps detected across devices
# TYPE stepcount_steps_detected counter
stepcount_steps_detected %d

# HELP stepcount_messages_rejected Total device messages rejected
# TYPE stepcount_messages_rejected counter
stepcount_messages_rejected %d

# HELP stepcount_dashboard_clients Connected dashboard clients
# TYPE stepcount_dashboard_clients gauge
stepcount_dashboard_clients %d
`, ingestStats.DeviceCount, ingestStats.SamplesReceived, ingestStats.StepsDetected,
		ingestStats.Rejected, hubStats.Clients))
}
