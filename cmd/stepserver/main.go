// stepserver: step counting service
// Accepts sample streams from devices over WebSocket, counts steps per
// device and serves a live dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-stepcount/internal/config"
	"github.com/teslashibe/go-stepcount/internal/log"
	"github.com/teslashibe/go-stepcount/pkg/ingest"
	"github.com/teslashibe/go-stepcount/pkg/pedometer"
	"github.com/teslashibe/go-stepcount/pkg/sensor"
	"github.com/teslashibe/go-stepcount/pkg/step"
	"github.com/teslashibe/go-stepcount/pkg/web"
)

var (
	version    = "1.0.0"
	configPath = flag.String("config", "", "Config file (.yaml or .toml)")
	port       = flag.String("port", "", "HTTP server port (overrides config and PORT)")
	static     = flag.String("static", "", "Directory with dashboard assets")
	local      = flag.Bool("local", false, "Also count steps from the configured sensor source")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *static != "" {
		cfg.Server.StaticDir = *static
	}
	if *debug {
		cfg.LogLevel = "debug"
		cfg.Server.AccessLog = true
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	fmt.Println()
	fmt.Println("👟 stepserver v" + version)
	fmt.Printf("   Devices:   ws://localhost:%s/ws/device/:id\n", cfg.Server.Port)
	fmt.Printf("   Dashboard: ws://localhost:%s/ws/steps\n", cfg.Server.Port)
	fmt.Printf("   Status:    http://localhost:%s/api/status\n", cfg.Server.Port)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	devices := ingest.NewHub(cfg.Ingest(), logger)
	server := web.NewServer(cfg.Server, devices, logger)

	if *local {
		p, err := startLocal(ctx, cfg, server)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer p.Stop()
	}

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	fmt.Println("👋 Goodbye!")
}

// startLocal counts steps from the configured sensor source and reports
// them on the dashboard under the backend's name.
func startLocal(ctx context.Context, cfg config.Config, server *web.Server) (*pedometer.Pedometer, error) {
	logger := log.With("source", "local")

	src, err := sensor.NewSource(cfg.Sensor, logger)
	if err != nil {
		return nil, err
	}

	id := "local-" + src.Name()
	p := pedometer.New(
		step.New(step.WithThreshold(cfg.Threshold)),
		logger,
		pedometer.WithOnStep(func(count uint64) {
			server.PublishStep(id, count)
		}),
	)
	if err := p.Start(ctx, src); err != nil {
		src.Close()
		return nil, err
	}

	logger.Info("local source attached", "id", id)
	return p, nil
}
