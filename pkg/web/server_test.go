package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-stepcount/pkg/ingest"
	"github.com/teslashibe/go-stepcount/pkg/protocol"
	"github.com/teslashibe/go-stepcount/pkg/step"
)

func newTestServer(port string) *Server {
	return NewServer(Config{Port: port}, ingest.NewHub(ingest.DefaultConfig(), nil), nil)
}

func TestStatusEmpty(t *testing.T) {
	s := newTestServer("0")

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Devices != 0 || status.TotalSteps != 0 {
		t.Errorf("Expected empty status, got %+v", status)
	}
}

func TestPublishStep(t *testing.T) {
	s := newTestServer("0")

	s.PublishStep("local", 3)
	s.PublishStep("phone", 2)
	s.PublishStep("local", 4)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	var status Status
	json.NewDecoder(resp.Body).Decode(&status)

	if status.TotalSteps != 6 {
		t.Errorf("TotalSteps = %d, want 6", status.TotalSteps)
	}
	if status.Counts["local"] != 4 {
		t.Errorf("Counts[local] = %d, want 4", status.Counts["local"])
	}

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/events", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	var events []StepUpdate
	json.NewDecoder(resp.Body).Decode(&events)
	if len(events) != 3 {
		t.Errorf("len(events) = %d, want 3", len(events))
	}
}

func TestEventsBounded(t *testing.T) {
	s := newTestServer("0")
	for i := 0; i < maxEvents+10; i++ {
		s.PublishStep("local", uint64(i))
	}

	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	if len(s.events) != maxEvents {
		t.Errorf("len(events) = %d, want %d", len(s.events), maxEvents)
	}
	if s.events[0].Count != 10 {
		t.Errorf("oldest event = %d, want 10", s.events[0].Count)
	}
}

func TestDeviceRoutesMounted(t *testing.T) {
	s := newTestServer("0")

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/devices/stats", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	resp, _ = s.App().Test(httptest.NewRequest("GET", "/ws/steps", nil))
	if resp.StatusCode != 426 {
		t.Errorf("plain GET /ws/steps = %d, want 426", resp.StatusCode)
	}
}

func TestDashboardReceivesDeviceSteps(t *testing.T) {
	s := newTestServer("18095")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	dash, _, err := websocket.DefaultDialer.Dial("ws://localhost:18095/ws/steps", nil)
	if err != nil {
		t.Fatalf("dashboard dial error: %v", err)
	}
	defer dash.Close()

	phone, _, err := websocket.DefaultDialer.Dial("ws://localhost:18095/ws/device/phone", nil)
	if err != nil {
		t.Fatalf("device dial error: %v", err)
	}
	defer phone.Close()
	time.Sleep(50 * time.Millisecond)

	msg, _ := protocol.NewSampleMessage(step.Sample{X: 2})
	data, _ := msg.Bytes()
	phone.WriteMessage(websocket.TextMessage, data)

	dash.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update StepUpdate
	if err := dash.ReadJSON(&update); err != nil {
		t.Fatalf("dashboard read error: %v", err)
	}
	if update.DeviceID != "phone" || update.Count != 1 {
		t.Errorf("update = %+v, want phone/1", update)
	}
}

func TestDashboardSnapshotThenUpdates(t *testing.T) {
	s := newTestServer("18096")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	s.PublishStep("local", 3)

	dash, _, err := websocket.DefaultDialer.Dial("ws://localhost:18096/ws/steps", nil)
	if err != nil {
		t.Fatalf("dashboard dial error: %v", err)
	}
	defer dash.Close()

	// Published while the handler may still be sending the snapshot.
	s.PublishStep("local", 4)

	dash.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first StepUpdate
	if err := dash.ReadJSON(&first); err != nil {
		t.Fatalf("dashboard read error: %v", err)
	}
	if first.DeviceID != "local" || (first.Count != 3 && first.Count != 4) {
		t.Errorf("first update = %+v, want local/3 or local/4", first)
	}

	latest := first
	for latest.Count != 4 {
		if err := dash.ReadJSON(&latest); err != nil {
			t.Fatalf("Expected update local/4, got read error: %v", err)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer("0")

	resp, err := s.App().Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	resp, err = s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "stepcount_devices 0") {
		t.Errorf("metrics missing device gauge:\n%s", body)
	}
}
