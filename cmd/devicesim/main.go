// devicesim: simulated phones
// Streams synthetic (or recorded) accelerometer samples to a stepserver
// and prints the counts the server reports back.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/teslashibe/go-stepcount/internal/config"
	"github.com/teslashibe/go-stepcount/internal/httpc"
	"github.com/teslashibe/go-stepcount/internal/log"
	"github.com/teslashibe/go-stepcount/pkg/device"
	"github.com/teslashibe/go-stepcount/pkg/ingest"
	"github.com/teslashibe/go-stepcount/pkg/sensor"
)

var (
	server    = flag.String("server", "", "Step server URL (default $STEP_SERVER or ws://localhost:8080)")
	devices   = flag.Int("devices", 1, "Number of simulated phones")
	prefix    = flag.String("id", "sim", "Device ID prefix")
	duration  = flag.Duration("duration", 30*time.Second, "How long to walk")
	interval  = flag.Duration("interval", 50*time.Millisecond, "Sampling interval")
	cadence   = flag.Float64("cadence", 1.8, "Steps per second")
	amplitude = flag.Float64("amplitude", 1.0, "Bounce amplitude (g)")
	batch     = flag.Int("batch", 1, "Samples per message")
	recording = flag.String("replay", "", "CSV recording to stream instead of the synthetic gait")
	debug     = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)
	logger := log.L()

	serverURL := *server
	if serverURL == "" {
		serverURL = config.ServerURL(config.DefaultServerURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	fmt.Println()
	fmt.Printf("📱 devicesim: %d phone(s) → %s for %s\n", *devices, serverURL, *duration)
	fmt.Println()

	var wg sync.WaitGroup
	for i := 0; i < *devices; i++ {
		id := fmt.Sprintf("%s-%d", *prefix, i+1)

		src, err := newSource(i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		client := device.NewClient(serverURL, id,
			device.WithBatch(*batch),
			device.WithLogger(logger),
		)
		client.OnSteps = func(count uint64) {
			fmt.Printf("%-10s steps: %d\n", id, count)
		}

		if err := client.Connect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer src.Close()
			defer client.Close()

			if err := client.Stream(ctx, src); err != nil && ctx.Err() == nil {
				logger.Error("stream failed", "device", id, "error", err)
			}
			// Give the last replies a moment before reporting.
			time.Sleep(200 * time.Millisecond)
			report(id, serverURL, client)
		}()
	}

	wg.Wait()
}

func newSource(i int) (sensor.Source, error) {
	cfg := sensor.DefaultConfig()
	cfg.Interval = *interval

	if *recording != "" {
		cfg.Backend = sensor.BackendReplay
		cfg.Device = *recording
		return sensor.NewSource(cfg, log.L())
	}

	cfg.Backend = sensor.BackendMock
	// Spread the phones out a little so they don't step in lockstep.
	gait := *cadence * (1 + 0.05*float64(i))
	return sensor.NewMockSource(cfg, log.L(), sensor.WithGait(gait, *amplitude)), nil
}

// report prints the server's view of the device alongside the local one.
func report(id, serverURL string, client *device.Client) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = "/api/devices/" + url.PathEscape(id)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var info ingest.DeviceInfo
	if err := httpc.GetJSON(ctx, u.String(), &info); err != nil {
		fmt.Printf("%-10s sent %d samples, last count %d (server: %v)\n", id, client.Sent(), client.Count(), err)
		return
	}
	fmt.Printf("%-10s sent %d samples, server counted %d steps\n", id, client.Sent(), info.Steps)
}
