// stepcount: local pedometer
// Reads accelerometer samples from a source and prints the step count on
// every step.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-stepcount/internal/config"
	"github.com/teslashibe/go-stepcount/internal/log"
	"github.com/teslashibe/go-stepcount/pkg/pedometer"
	"github.com/teslashibe/go-stepcount/pkg/sensor"
	"github.com/teslashibe/go-stepcount/pkg/step"
)

var (
	configPath = flag.String("config", "", "Config file (.yaml or .toml)")
	threshold  = flag.Float64("threshold", step.DefaultThreshold, "Step threshold (summed per-axis delta)")
	backend    = flag.String("backend", "", "Sample source: auto, mock, replay, mqtt")
	interval   = flag.Duration("interval", sensor.DefaultInterval, "Sampling interval")
	recording  = flag.String("replay", "", "CSV recording to replay (x,y,z[,t])")
	broker     = flag.String("broker", "", "MQTT broker (tcp://host:1883)")
	topic      = flag.String("topic", "", "MQTT topic filter")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)
	logger := log.L()

	src, err := sensor.NewSource(cfg.Sensor, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	fmt.Println()
	fmt.Println("👟 stepcount")
	fmt.Printf("   Source:    %s\n", src.Name())
	fmt.Printf("   Threshold: %.2f\n", cfg.Threshold)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pedometer.New(
		step.New(step.WithThreshold(cfg.Threshold)),
		logger,
		pedometer.WithOnStep(func(count uint64) {
			fmt.Printf("Steps: %d\n", count)
		}),
	)

	start := time.Now()
	if err := p.Start(ctx, src); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		fmt.Println("\n👋 Shutting down...")
	case <-p.Subscription().Done():
		logger.Info("source finished")
	}

	stats := p.Subscription().Stats()
	p.Stop()

	fmt.Printf("\nTotal steps: %d (%d samples in %s)\n",
		p.Count(), stats.Samples, time.Since(start).Round(time.Millisecond))
}

// applyFlags lets explicitly set flags win over the config file and env.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "threshold":
			cfg.Threshold = *threshold
		case "backend":
			cfg.Sensor.Backend = sensor.Backend(*backend)
		case "interval":
			cfg.Sensor.Interval = *interval
		case "replay":
			cfg.Sensor.Device = *recording
		case "broker":
			cfg.Sensor.MQTT.Broker = *broker
		case "topic":
			cfg.Sensor.MQTT.Topic = *topic
		}
	})
}
